// Package race implements a single message race of a lane: the loop that
// proves nonces known to a source ledger to a target ledger.
//
// The idea of a race is simple. Both ledgers have nonces. The race keeps
// asking the source for new nonces and the target for the nonces it has
// already received, selects (with help of a Strategy) a range of nonces
// that the target is ready to accept, generates a proof of that range at
// the source and submits it to the target. Message delivery and the
// delivery confirmation back to the source are both races.
package race

import (
	"context"
	"fmt"

	"github.com/tendermint/lanerelay/types"
)

// Header is an id of a ledger header that the race loop can reason about.
type Header interface {
	comparable
	fmt.Stringer

	// Height returns the header number.
	Height() uint64
}

// NoncesRange is an inclusive range of nonces, possibly carrying extra
// data per nonce.
type NoncesRange[R any] interface {
	// Begin returns the first nonce of the range.
	Begin() types.Nonce
	// End returns the last nonce of the range.
	End() types.Nonce
	// IsEmpty reports whether the range has no nonces.
	IsEmpty() bool
	// GreaterThan returns a new range with the nonces that are greater than
	// the given nonce. It returns false if there are no such nonces.
	GreaterThan(types.Nonce) (R, bool)
}

// SourceClientNonces are the nonces known to the race source.
type SourceClientNonces[R any] struct {
	// NewNonces are the nonces generated after the previous latest nonce
	// passed to SourceClient.Nonces.
	NewNonces R
	// ConfirmedNonce is the latest nonce confirmed to the peer ledger. It
	// only makes sense in some races and is nil in the others.
	ConfirmedNonce *types.Nonce
}

// TargetClientNonces are the nonces known to the race target.
type TargetClientNonces[D any] struct {
	// LatestNonce is the latest nonce received by the target.
	LatestNonce types.Nonce
	// NoncesData is race specific data read from the target.
	NoncesData D
}

// BatchTransaction is a prepared transaction that delivers a required
// source header to the target. It has to be extended with a proof before it
// is submitted.
type BatchTransaction[SH any] interface {
	// RequiredHeaderID returns the source header bundled with the batch.
	RequiredHeaderID() SH
}

// TrackedTransactionStatus is the final status of a submitted transaction.
type TrackedTransactionStatus[TH any] struct {
	// Finalized is false when the transaction has been lost.
	Finalized bool
	// At is the header where the transaction has been finalized.
	At TH
}

// Finalized returns the status of a transaction finalized at the given
// header.
func Finalized[TH any](at TH) TrackedTransactionStatus[TH] {
	return TrackedTransactionStatus[TH]{Finalized: true, At: at}
}

// Lost returns the status of a lost transaction.
func Lost[TH any]() TrackedTransactionStatus[TH] {
	return TrackedTransactionStatus[TH]{}
}

func (s TrackedTransactionStatus[TH]) String() string {
	if !s.Finalized {
		return "Lost"
	}
	return fmt.Sprintf("Finalized(%v)", s.At)
}

// TransactionTracker waits for a submitted transaction to be either
// finalized or lost.
type TransactionTracker[TH any] interface {
	// Wait blocks until the transaction status is known. It resolves only
	// once. If ctx is canceled the transaction is reported as lost.
	Wait(ctx context.Context) TrackedTransactionStatus[TH]
}

// NoncesSubmitArtifacts are returned by TargetClient.SubmitProof.
type NoncesSubmitArtifacts[TH any] struct {
	// Nonces is the submitted range.
	Nonces types.NonceRange
	// TxTracker tracks the submitted transaction.
	TxTracker TransactionTracker[TH]
}

// SourceClient is the race source.
type SourceClient[SH Header, R, PP, P any] interface {
	// Nonces returns the nonces generated after prevLatestNonce at the given
	// header.
	Nonces(ctx context.Context, at SH, prevLatestNonce types.Nonce) (SH, SourceClientNonces[R], error)
	// GenerateProof proves the given nonces at the given header.
	GenerateProof(ctx context.Context, at SH, nonces types.NonceRange, params PP) (SH, types.NonceRange, P, error)
}

// TargetClient is the race target.
type TargetClient[SH, TH Header, TD, P any] interface {
	// RequireSourceHeader asks for the source header to be relayed to the
	// target.
	//
	// A nil BatchTransaction means the caller has to wait until the header
	// shows up at the target. A non-nil one means nothing has happened yet:
	// the caller must attach a proof to the batch and submit it.
	RequireSourceHeader(ctx context.Context, id SH) (BatchTransaction[SH], error)
	// Nonces returns the nonces known to the target at the given header.
	// updateMetrics is set when the nonces are read at the finalized header.
	Nonces(ctx context.Context, at TH, updateMetrics bool) (TH, TargetClientNonces[TD], error)
	// SubmitProof submits the proof of nonces generated at the given source
	// header, together with the batch transaction if it is not nil.
	SubmitProof(
		ctx context.Context,
		batch BatchTransaction[SH],
		generatedAt SH,
		nonces types.NonceRange,
		proof P,
	) (NoncesSubmitArtifacts[TH], error)
}
