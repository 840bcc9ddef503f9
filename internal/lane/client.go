package lane

import (
	"context"

	"github.com/tendermint/lanerelay/types"
)

//go:generate mockery --case underscore --name SourceClient
//go:generate mockery --case underscore --name TargetClient

// SourceClient is the connection to the ledger the lane messages are sent
// from. Every call is made at a given header and returns the header it has
// actually been served at.
//
// Errors that are worth retrying must be classified by
// race.IsConnectionError.
type SourceClient interface {
	// State returns the state of the source ledger.
	State(ctx context.Context) (SourceClientState, error)

	// LatestGeneratedNonce returns the nonce of the latest message sent
	// over the lane.
	LatestGeneratedNonce(ctx context.Context, id HeaderID) (HeaderID, types.Nonce, error)
	// LatestConfirmedReceivedNonce returns the nonce of the latest message
	// the target has confirmed to have received.
	LatestConfirmedReceivedNonce(ctx context.Context, id HeaderID) (HeaderID, types.Nonce, error)
	// GeneratedMessageDetails returns the details of the messages in
	// nonces. Pruned messages are missing from the result.
	GeneratedMessageDetails(ctx context.Context, id HeaderID, nonces types.NonceRange) (MessageDetailsList, error)

	// ProveMessages proves the messages in nonces.
	ProveMessages(
		ctx context.Context,
		id HeaderID,
		nonces types.NonceRange,
		params MessageProofParameters,
	) (HeaderID, types.NonceRange, MessagesProof, error)

	// SubmitMessagesReceivingProof submits the proof of the messages
	// received by the target, optionally together with a batch
	// transaction returned by RequireTargetHeaderOnSource.
	SubmitMessagesReceivingProof(
		ctx context.Context,
		batch BatchTransaction,
		generatedAt HeaderID,
		proof MessagesReceivingProof,
	) (TransactionTracker, error)

	// RequireTargetHeaderOnSource asks for the target header id to be
	// imported by the source. If a batch transaction is returned, nothing
	// has been sent yet and the header is imported once the transaction is
	// submitted together with a proof. Otherwise the caller waits for the
	// header to show up at the source.
	RequireTargetHeaderOnSource(ctx context.Context, id HeaderID) (BatchTransaction, error)
}

// TargetClient is the connection to the ledger the lane messages are
// delivered to.
type TargetClient interface {
	// State returns the state of the target ledger.
	State(ctx context.Context) (TargetClientState, error)

	// LatestReceivedNonce returns the nonce of the latest delivered message.
	LatestReceivedNonce(ctx context.Context, id HeaderID) (HeaderID, types.Nonce, error)
	// LatestConfirmedReceivedNonce returns the nonce of the latest message
	// the target knows to be confirmed at the source.
	LatestConfirmedReceivedNonce(ctx context.Context, id HeaderID) (HeaderID, types.Nonce, error)
	// UnrewardedRelayersState returns the state of the unrewarded relayers
	// set of the inbound lane.
	UnrewardedRelayersState(ctx context.Context, id HeaderID) (HeaderID, UnrewardedRelayersState, error)

	// ProveMessagesReceiving proves the inbound lane state.
	ProveMessagesReceiving(ctx context.Context, id HeaderID) (HeaderID, MessagesReceivingProof, error)

	// SubmitMessagesProof submits the messages proof, optionally together
	// with a batch transaction returned by RequireSourceHeaderOnTarget.
	SubmitMessagesProof(
		ctx context.Context,
		batch BatchTransaction,
		generatedAt HeaderID,
		nonces types.NonceRange,
		proof MessagesProof,
	) (NoncesSubmitArtifacts, error)

	// RequireSourceHeaderOnTarget asks for the source header id to be
	// imported by the target. See SourceClient.RequireTargetHeaderOnSource.
	RequireSourceHeaderOnTarget(ctx context.Context, id HeaderID) (BatchTransaction, error)
}
