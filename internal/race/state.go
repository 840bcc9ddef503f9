package race

import (
	"fmt"
	"strings"

	"github.com/tendermint/lanerelay/types"
)

// NoncesToSubmit is a generated proof that waits to be submitted.
type NoncesToSubmit[SH, P any] struct {
	// At is the source header the proof is generated at.
	At     SH
	Nonces types.NonceRange
	Proof  P
}

// State is the state of a race. It is owned by the race loop and is only
// mutated by it, or by a Strategy the loop hands a pointer to.
//
// Nil fields are unknown. A State value is a shallow copy of the race state;
// pointed-to values are never modified in place, so a copy is safe to hand
// out and modify.
type State[SH, TH Header, P any] struct {
	// BestFinalizedSourceHeaderIDAtSource is the best finalized source
	// header at the source.
	BestFinalizedSourceHeaderIDAtSource *SH
	// BestFinalizedSourceHeaderIDAtBestTarget is the best finalized source
	// header known to the best target header.
	BestFinalizedSourceHeaderIDAtBestTarget *SH
	// BestTargetHeaderID is the best target header.
	BestTargetHeaderID *TH
	// BestFinalizedTargetHeaderID is the best finalized target header.
	BestFinalizedTargetHeaderID *TH

	// NoncesToSubmit is the selected and proved range that is not yet
	// submitted.
	NoncesToSubmit *NoncesToSubmit[SH, P]
	// NoncesToSubmitBatch is the batch transaction NoncesToSubmit will be
	// submitted with.
	NoncesToSubmitBatch BatchTransaction[SH]
	// NoncesSubmitted is the range that has been submitted and is waiting
	// to show up at the target.
	NoncesSubmitted *types.NonceRange
}

// SetBestFinalizedSourceHeaderIDAtBestTarget sets the source header known
// to the best target header.
func (s *State[SH, TH, P]) SetBestFinalizedSourceHeaderIDAtBestTarget(id SH) {
	s.BestFinalizedSourceHeaderIDAtBestTarget = &id
}

// NoncesToSubmitRange returns the range of the proof waiting to be
// submitted.
func (s State[SH, TH, P]) NoncesToSubmitRange() (types.NonceRange, bool) {
	if s.NoncesToSubmit == nil {
		return types.NonceRange{}, false
	}
	return s.NoncesToSubmit.Nonces, true
}

// NoncesSubmittedRange returns the submitted range.
func (s State[SH, TH, P]) NoncesSubmittedRange() (types.NonceRange, bool) {
	if s.NoncesSubmitted == nil {
		return types.NonceRange{}, false
	}
	return *s.NoncesSubmitted, true
}

// ResetNoncesToSubmit drops the selected proof together with its batch
// transaction.
func (s *State[SH, TH, P]) ResetNoncesToSubmit() {
	s.NoncesToSubmit = nil
	s.NoncesToSubmitBatch = nil
}

// ResetNoncesSubmitted forgets the submitted range.
func (s *State[SH, TH, P]) ResetNoncesSubmitted() {
	s.NoncesSubmitted = nil
}

func (s State[SH, TH, P]) String() string {
	var sb strings.Builder
	sb.WriteString("State{")
	fmt.Fprintf(&sb, "source_at_source:%s ", optString(s.BestFinalizedSourceHeaderIDAtSource))
	fmt.Fprintf(&sb, "source_at_target:%s ", optString(s.BestFinalizedSourceHeaderIDAtBestTarget))
	fmt.Fprintf(&sb, "best_target:%s ", optString(s.BestTargetHeaderID))
	fmt.Fprintf(&sb, "finalized_target:%s ", optString(s.BestFinalizedTargetHeaderID))
	if s.NoncesToSubmit != nil {
		fmt.Fprintf(&sb, "to_submit:%v@%v ", s.NoncesToSubmit.Nonces, s.NoncesToSubmit.At)
	} else {
		sb.WriteString("to_submit:<nil> ")
	}
	fmt.Fprintf(&sb, "batch:%t ", s.NoncesToSubmitBatch != nil)
	fmt.Fprintf(&sb, "submitted:%s}", optString(s.NoncesSubmitted))
	return sb.String()
}

func optString[T any](v *T) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprint(*v)
}
