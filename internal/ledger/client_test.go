package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

func TestFaults(t *testing.T) {
	var none *Faults
	assert.NoError(t, none.check("state"))

	f := NewFaults(0, 1)
	assert.NoError(t, f.check("state"))

	f.Disconnect()
	err := f.check("state")
	assert.True(t, race.IsConnectionError(err))
	assert.ErrorIs(t, err, ErrDisconnected)

	f.Reconnect()
	assert.NoError(t, f.check("state"))

	f.SetFailureRate(1)
	assert.True(t, race.IsConnectionError(f.check("state")))
}

func TestClientFailsWhenDisconnected(t *testing.T) {
	ctx := context.Background()
	source := newTestChain(t, "source", DefaultParams())
	target := newTestChain(t, "target", DefaultParams())

	faults := NewFaults(0, 1)
	sourceClient := NewSourceClient(source, target, WithFaults(faults))

	faults.Disconnect()
	_, err := sourceClient.State(ctx)
	assert.True(t, race.IsConnectionError(err))
	_, _, err = sourceClient.LatestGeneratedNonce(ctx, source.Best().ID())
	assert.True(t, race.IsConnectionError(err))

	faults.Reconnect()
	st, err := sourceClient.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, source.Best().ID(), st.BestSelf)
}

func TestClientRequireHeader(t *testing.T) {
	ctx := context.Background()
	source := newTestChain(t, "source", DefaultParams())
	target := newTestChain(t, "target", DefaultParams())
	required := advance(t, source, 3).ID()

	t.Run("batched", func(t *testing.T) {
		targetClient := NewTargetClient(target, source, WithHeaderBatches())
		batch, err := targetClient.RequireSourceHeaderOnTarget(ctx, required)
		require.NoError(t, err)
		require.NotNil(t, batch)
		assert.Equal(t, required, batch.RequiredHeaderID())

		// nothing is imported until the batch is submitted
		advance(t, target, 1)
		assert.Nil(t, target.BestState().Peer)
	})

	t.Run("imported", func(t *testing.T) {
		targetClient := NewTargetClient(target, source)
		batch, err := targetClient.RequireSourceHeaderOnTarget(ctx, required)
		require.NoError(t, err)
		assert.Nil(t, batch)

		advance(t, target, 1)
		st, err := targetClient.State(ctx)
		require.NoError(t, err)
		require.NotNil(t, st.BestFinalizedPeerAtBestSelf)
		assert.Equal(t, required, *st.BestFinalizedPeerAtBestSelf)

		// the header is there already
		batch, err = targetClient.RequireSourceHeaderOnTarget(ctx, types.NewHeaderID(2, types.Hash{}))
		require.NoError(t, err)
		assert.Nil(t, batch)
	})

	t.Run("unknown header", func(t *testing.T) {
		targetClient := NewTargetClient(target, source)
		_, err := targetClient.RequireSourceHeaderOnTarget(ctx, types.NewHeaderID(100, types.Hash{}))
		assert.ErrorIs(t, err, ErrUnknownHeader)
	})
}

func TestClientDeliversWithBatchedHeader(t *testing.T) {
	ctx := context.Background()
	source := newTestChain(t, "source", testChainParams())
	target := newTestChain(t, "target", testChainParams())
	sendMessages(t, source, 2)
	at := advance(t, source, 1).ID()

	sourceClient := NewSourceClient(source, target)
	targetClient := NewTargetClient(target, source, WithHeaderBatches(), WithRelayer("alice"))

	batch, err := targetClient.RequireSourceHeaderOnTarget(ctx, at)
	require.NoError(t, err)
	require.NotNil(t, batch)

	_, nonces, proof, err := sourceClient.ProveMessages(ctx, at, types.NewNonceRange(1, 2), lane.MessageProofParameters{})
	require.NoError(t, err)

	// without the batch the header is unknown to the target
	_, err = targetClient.SubmitMessagesProof(ctx, nil, at, nonces, proof)
	assert.ErrorIs(t, err, ErrUnknownHeader)

	artifacts, err := targetClient.SubmitMessagesProof(ctx, batch, at, nonces, proof)
	require.NoError(t, err)
	assert.Equal(t, nonces, artifacts.Nonces)
	advance(t, target, 1+int(target.Params().FinalityDepth))

	status := artifacts.TxTracker.Wait(ctx)
	require.True(t, status.Finalized)
	_, received, err := targetClient.LatestReceivedNonce(ctx, status.At)
	require.NoError(t, err)
	assert.EqualValues(t, 2, received)

	_, relayers, err := targetClient.UnrewardedRelayersState(ctx, target.Best().ID())
	require.NoError(t, err)
	assert.EqualValues(t, 1, relayers.UnrewardedRelayerEntries)
	assert.EqualValues(t, 2, relayers.TotalMessages)
}
