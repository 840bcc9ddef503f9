package lane

import (
	"context"
	"fmt"

	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

// deliverySource is the source of the messages delivery race: the lane
// source ledger.
type deliverySource struct {
	client  SourceClient
	metrics *Metrics
}

var _ race.SourceClient[HeaderID, MessageDetailsList, MessageProofParameters, MessagesProof] = deliverySource{}

func (s deliverySource) Nonces(
	ctx context.Context,
	at HeaderID,
	prevLatestNonce types.Nonce,
) (HeaderID, deliverySourceNonces, error) {
	at, latestGenerated, err := s.client.LatestGeneratedNonce(ctx, at)
	if err != nil {
		return at, deliverySourceNonces{}, fmt.Errorf("latest generated nonce: %w", err)
	}
	at, latestConfirmed, err := s.client.LatestConfirmedReceivedNonce(ctx, at)
	if err != nil {
		return at, deliverySourceNonces{}, fmt.Errorf("latest confirmed nonce: %w", err)
	}

	s.metrics.SourceLatestGeneratedNonce.Set(float64(latestGenerated))
	s.metrics.SourceLatestConfirmedNonce.Set(float64(latestConfirmed))

	newNonces := MessageDetailsList{}
	if latestGenerated > prevLatestNonce {
		newNonces, err = s.client.GeneratedMessageDetails(ctx, at, types.NewNonceRange(prevLatestNonce+1, latestGenerated))
		if err != nil {
			return at, deliverySourceNonces{}, fmt.Errorf("message details: %w", err)
		}
	}

	return at, deliverySourceNonces{
		NewNonces:      newNonces,
		ConfirmedNonce: &latestConfirmed,
	}, nil
}

func (s deliverySource) GenerateProof(
	ctx context.Context,
	at HeaderID,
	nonces types.NonceRange,
	params MessageProofParameters,
) (HeaderID, types.NonceRange, MessagesProof, error) {
	return s.client.ProveMessages(ctx, at, nonces, params)
}

// deliveryTarget is the target of the messages delivery race: the lane
// target ledger.
type deliveryTarget struct {
	client  TargetClient
	metrics *Metrics
}

var _ race.TargetClient[HeaderID, HeaderID, DeliveryRaceTargetNoncesData, MessagesProof] = deliveryTarget{}

func (t deliveryTarget) RequireSourceHeader(ctx context.Context, id HeaderID) (BatchTransaction, error) {
	return t.client.RequireSourceHeaderOnTarget(ctx, id)
}

func (t deliveryTarget) Nonces(
	ctx context.Context,
	at HeaderID,
	updateMetrics bool,
) (HeaderID, deliveryTargetNonces, error) {
	at, latestReceived, err := t.client.LatestReceivedNonce(ctx, at)
	if err != nil {
		return at, deliveryTargetNonces{}, fmt.Errorf("latest received nonce: %w", err)
	}
	at, latestConfirmed, err := t.client.LatestConfirmedReceivedNonce(ctx, at)
	if err != nil {
		return at, deliveryTargetNonces{}, fmt.Errorf("latest confirmed nonce: %w", err)
	}
	at, relayers, err := t.client.UnrewardedRelayersState(ctx, at)
	if err != nil {
		return at, deliveryTargetNonces{}, fmt.Errorf("unrewarded relayers: %w", err)
	}

	if updateMetrics {
		t.metrics.TargetLatestReceivedNonce.Set(float64(latestReceived))
		t.metrics.TargetLatestConfirmedNonce.Set(float64(latestConfirmed))
	}

	return at, deliveryTargetNonces{
		LatestNonce: latestReceived,
		NoncesData: DeliveryRaceTargetNoncesData{
			ConfirmedNonce:     latestConfirmed,
			UnrewardedRelayers: relayers,
		},
	}, nil
}

func (t deliveryTarget) SubmitProof(
	ctx context.Context,
	batch BatchTransaction,
	generatedAt HeaderID,
	nonces types.NonceRange,
	proof MessagesProof,
) (NoncesSubmitArtifacts, error) {
	return t.client.SubmitMessagesProof(ctx, batch, generatedAt, nonces, proof)
}

// runDeliveryRace delivers messages from the source to the target until
// ctx is canceled or one of the clients fails.
func (l *Loop) runDeliveryRace(
	ctx context.Context,
	sourceUpdates <-chan SourceClientState,
	targetUpdates <-chan TargetClientState,
) error {
	return race.Run[HeaderID, HeaderID, MessagesProof, MessageDetailsList, MessageProofParameters, DeliveryRaceTargetNoncesData](
		ctx,
		deliverySource{client: l.source, metrics: l.metrics},
		sourceUpdates,
		deliveryTarget{client: l.target, metrics: l.metrics},
		targetUpdates,
		NewDeliveryStrategy(l.params.Delivery),
		l.raceOptions("delivery", "Source", "Target")...,
	)
}
