package race

import (
	"github.com/tendermint/lanerelay/types"
)

// Strategy decides which nonces are delivered by the race and when. It is
// owned by the race loop; none of its methods do any I/O.
type Strategy[SH, TH Header, P, R, PP, TD any] interface {
	// IsEmpty returns true if there is nothing to deliver.
	IsEmpty() bool
	// BestAtSource returns the best nonce at the source. It is only known
	// when it is certain that it is not less than BestAtTarget.
	BestAtSource() (types.Nonce, bool)
	// BestAtTarget returns the best nonce at the target.
	BestAtTarget() (types.Nonce, bool)

	// RequiredSourceHeaderAtTarget returns the source header that must be
	// known to the target before the race is able to make progress.
	RequiredSourceHeaderAtTarget(state State[SH, TH, P]) (SH, bool)

	// SourceNoncesUpdated is called when new nonces are read from the
	// source.
	SourceNoncesUpdated(at SH, nonces SourceClientNonces[R])
	// BestTargetNoncesUpdated is called when nonces are read at the best
	// target header.
	BestTargetNoncesUpdated(nonces TargetClientNonces[TD], state *State[SH, TH, P])
	// FinalizedTargetNoncesUpdated is called when nonces are read at the
	// best finalized target header.
	FinalizedTargetNoncesUpdated(nonces TargetClientNonces[TD], state *State[SH, TH, P])
	// ResetBestTargetNonces forgets the best target nonces, so nothing is
	// selected before they are read again.
	ResetBestTargetNonces()

	// SelectNoncesToDeliver returns the nonces to prove and deliver next,
	// along with the proof parameters.
	SelectNoncesToDeliver(state State[SH, TH, P]) (types.NonceRange, PP, bool)
}

// Selection is a range of nonces selected for delivery, anchored at the
// source header the proof must be generated at.
type Selection[SH, PP any] struct {
	At     SH
	Nonces types.NonceRange
	Params PP
}

// SelectNoncesToDeliver asks the strategy for the nonces to deliver and
// anchors them at the best finalized source header known to the target.
// Nothing is selected while that header is unknown: a proof generated at a
// header the target does not know would be rejected.
func SelectNoncesToDeliver[SH, TH Header, P, R, PP, TD any](
	state State[SH, TH, P],
	strategy Strategy[SH, TH, P, R, PP, TD],
) (Selection[SH, PP], bool) {
	if state.BestFinalizedSourceHeaderIDAtBestTarget == nil {
		return Selection[SH, PP]{}, false
	}
	at := *state.BestFinalizedSourceHeaderIDAtBestTarget

	nonces, params, ok := strategy.SelectNoncesToDeliver(state)
	if !ok {
		return Selection[SH, PP]{}, false
	}
	return Selection[SH, PP]{At: at, Nonces: nonces, Params: params}, true
}
