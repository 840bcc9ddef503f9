package lane

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

// receivingSource is the source of the receiving race, which confirms the
// delivered messages back to the lane source. It reads the lane target.
type receivingSource struct {
	client  TargetClient
	metrics *Metrics
}

var _ race.SourceClient[HeaderID, types.NonceRange, struct{}, MessagesReceivingProof] = receivingSource{}

func (s receivingSource) Nonces(
	ctx context.Context,
	at HeaderID,
	prevLatestNonce types.Nonce,
) (HeaderID, race.SourceClientNonces[types.NonceRange], error) {
	at, latestReceived, err := s.client.LatestReceivedNonce(ctx, at)
	if err != nil {
		return at, race.SourceClientNonces[types.NonceRange]{}, fmt.Errorf("latest received nonce: %w", err)
	}
	s.metrics.TargetLatestReceivedNonce.Set(float64(latestReceived))
	return at, race.SourceClientNonces[types.NonceRange]{
		NewNonces: types.NewNonceRange(prevLatestNonce+1, latestReceived),
	}, nil
}

func (s receivingSource) GenerateProof(
	ctx context.Context,
	at HeaderID,
	nonces types.NonceRange,
	_ struct{},
) (HeaderID, types.NonceRange, MessagesReceivingProof, error) {
	at, proof, err := s.client.ProveMessagesReceiving(ctx, at)
	return at, nonces, proof, err
}

// receivingTarget is the target of the receiving race: the lane source.
type receivingTarget struct {
	client  SourceClient
	metrics *Metrics
}

var _ race.TargetClient[HeaderID, HeaderID, struct{}, MessagesReceivingProof] = receivingTarget{}

func (t receivingTarget) RequireSourceHeader(ctx context.Context, id HeaderID) (BatchTransaction, error) {
	return t.client.RequireTargetHeaderOnSource(ctx, id)
}

func (t receivingTarget) Nonces(
	ctx context.Context,
	at HeaderID,
	updateMetrics bool,
) (HeaderID, race.TargetClientNonces[struct{}], error) {
	at, latestConfirmed, err := t.client.LatestConfirmedReceivedNonce(ctx, at)
	if err != nil {
		return at, race.TargetClientNonces[struct{}]{}, fmt.Errorf("latest confirmed nonce: %w", err)
	}
	if updateMetrics {
		t.metrics.SourceLatestConfirmedNonce.Set(float64(latestConfirmed))
	}
	return at, race.TargetClientNonces[struct{}]{LatestNonce: latestConfirmed}, nil
}

func (t receivingTarget) SubmitProof(
	ctx context.Context,
	batch BatchTransaction,
	generatedAt HeaderID,
	nonces types.NonceRange,
	proof MessagesReceivingProof,
) (NoncesSubmitArtifacts, error) {
	tracker, err := t.client.SubmitMessagesReceivingProof(ctx, batch, generatedAt, proof)
	if err != nil {
		return NoncesSubmitArtifacts{}, err
	}
	return NoncesSubmitArtifacts{Nonces: nonces, TxTracker: tracker}, nil
}

// runReceivingRace confirms the messages received by the target to the
// source until ctx is canceled or one of the clients fails. Failures are
// reported in terms of the lane, not of the race.
func (l *Loop) runReceivingRace(
	ctx context.Context,
	targetUpdates <-chan TargetClientState,
	sourceUpdates <-chan SourceClientState,
) error {
	err := race.Run[HeaderID, HeaderID, MessagesReceivingProof, types.NonceRange, struct{}, struct{}](
		ctx,
		receivingSource{client: l.target, metrics: l.metrics},
		targetUpdates,
		receivingTarget{client: l.source, metrics: l.metrics},
		sourceUpdates,
		race.NewBasicStrategy[HeaderID, HeaderID, MessagesReceivingProof, types.NonceRange, struct{}](),
		l.raceOptions("receiving", "Target", "Source")...,
	)

	var fc types.FailedClient
	if err == nil || !errors.As(err, &fc) {
		return err
	}
	return fmt.Errorf("%w: receiving race: %v", swapFailedClient(fc), err)
}

// swapFailedClient translates a failure of the receiving race to the lane
// sides.
func swapFailedClient(fc types.FailedClient) types.FailedClient {
	switch fc {
	case types.FailedSource:
		return types.FailedTarget
	case types.FailedTarget:
		return types.FailedSource
	default:
		return fc
	}
}
