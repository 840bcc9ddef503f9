package lane

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/types"
)

func headerID(n uint64) HeaderID {
	var h types.Hash
	binary.BigEndian.PutUint64(h[:], n)
	return types.NewHeaderID(n, h)
}

func headerIDPtr(n uint64) *HeaderID {
	id := headerID(n)
	return &id
}

func messageDetails(first, last types.Nonce) MessageDetailsList {
	list := MessageDetailsList{}
	for n := first; n <= last && first <= last; n++ {
		list = append(list, MessageDetails{Nonce: n, DispatchWeight: 1, Size: 1})
	}
	return list
}

func deliverySourceNoncesAt(first, last, confirmed types.Nonce) deliverySourceNonces {
	return deliverySourceNonces{NewNonces: messageDetails(first, last), ConfirmedNonce: &confirmed}
}

func deliveryTargetNoncesAt(latest, confirmed types.Nonce, relayers UnrewardedRelayersState) deliveryTargetNonces {
	return deliveryTargetNonces{
		LatestNonce: latest,
		NoncesData: DeliveryRaceTargetNoncesData{
			ConfirmedNonce:     confirmed,
			UnrewardedRelayers: relayers,
		},
	}
}

func testDeliveryParams() DeliveryParams {
	return DeliveryParams{
		MaxUnrewardedRelayerEntriesAtTarget: 4,
		MaxUnconfirmedNoncesAtTarget:        4,
		MaxMessagesInSingleBatch:            4,
		MaxMessagesWeightInSingleBatch:      4,
		MaxMessagesSizeInSingleBatch:        4,
	}
}

// prepareStrategy returns a strategy with messages 20..=23 generated at
// source header #1, while the target has received and confirmed 19
// messages.
func prepareStrategy(t *testing.T, params DeliveryParams) (deliveryState, *DeliveryStrategy) {
	t.Helper()
	state := deliveryState{
		BestFinalizedSourceHeaderIDAtSource:     headerIDPtr(1),
		BestFinalizedSourceHeaderIDAtBestTarget: headerIDPtr(1),
		BestTargetHeaderID:                      headerIDPtr(1),
		BestFinalizedTargetHeaderID:             headerIDPtr(1),
	}

	strategy := NewDeliveryStrategy(params)
	strategy.SourceNoncesUpdated(headerID(1), deliverySourceNoncesAt(20, 23, 19))
	nonces := deliveryTargetNoncesAt(19, 19, UnrewardedRelayersState{})
	strategy.BestTargetNoncesUpdated(nonces, &state)
	strategy.FinalizedTargetNoncesUpdated(nonces, &state)
	require.Len(t, strategy.latestConfirmedNoncesAtSource, 1)

	return state, strategy
}

func proofParams(required bool, weight uint64) MessageProofParameters {
	return MessageProofParameters{OutboundStateProofRequired: required, DispatchWeight: weight}
}

func assertSelected(t *testing.T, strategy *DeliveryStrategy, state deliveryState, expected types.NonceRange, params MessageProofParameters) {
	t.Helper()
	nonces, actual, ok := strategy.SelectNoncesToDeliver(state)
	require.True(t, ok, "nothing is selected at %v", state)
	assert.Equal(t, expected, nonces)
	assert.Equal(t, params, actual)
}

func assertNothingSelected(t *testing.T, strategy *DeliveryStrategy, state deliveryState) {
	t.Helper()
	nonces, _, ok := strategy.SelectNoncesToDeliver(state)
	require.False(t, ok, "%v is selected at %v", nonces, state)
}

func TestMessageDetailsListAsNoncesRange(t *testing.T) {
	list := NewMessageDetailsList(
		MessageDetails{Nonce: 22},
		MessageDetails{Nonce: 20},
		MessageDetails{Nonce: 21},
		MessageDetails{Nonce: 30},
	)
	assert.EqualValues(t, 20, list.Begin())
	assert.EqualValues(t, 30, list.End())
	assert.False(t, list.IsEmpty())

	testCases := []struct {
		nonce    types.Nonce
		expected MessageDetailsList
		ok       bool
	}{
		{10, list, true},
		{19, list, true},
		{20, list[1:], true},
		{25, list[3:], true},
		{29, list[3:], true},
		{30, nil, false},
	}
	for _, tc := range testCases {
		rest, ok := list.GreaterThan(tc.nonce)
		require.Equal(t, tc.ok, ok, "nonce %d", tc.nonce)
		assert.Equal(t, tc.expected, rest, "nonce %d", tc.nonce)
	}

	assert.True(t, MessageDetailsList{}.IsEmpty())
	assert.EqualValues(t, 0, MessageDetailsList{}.End())
}

func TestDeliveryStrategySelectsMessagesToDeliver(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(false, 4))
}

func TestDeliveryStrategySelectsNothingWhileSubmitting(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	withProof := state
	withProof.NoncesToSubmit = &race.NoncesToSubmit[HeaderID, MessagesProof]{At: headerID(1), Nonces: types.NewNonceRange(20, 23)}
	assertNothingSelected(t, strategy, withProof)

	submitted := state
	nonces := types.NewNonceRange(20, 23)
	submitted.NoncesSubmitted = &nonces
	assertNothingSelected(t, strategy, submitted)

	strategy.ResetBestTargetNonces()
	assertNothingSelected(t, strategy, state)
}

func TestDeliveryStrategyIncludesOutboundStateProofWhenNewConfirmationsAreAvailable(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	// the target doesn't know about the latest confirmation yet
	strategy.targetNonces.NoncesData.ConfirmedNonce = 18
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(true, 4))
}

func TestDeliveryStrategySelectsNothingWithTooManyUnrewardedRelayers(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	strategy.targetNonces.NoncesData.UnrewardedRelayers = UnrewardedRelayersState{
		UnrewardedRelayerEntries: 4,
		MessagesInOldestEntry:    4,
	}
	assertNothingSelected(t, strategy, state)
}

func TestDeliveryStrategySelectsNothingWhenProvedRewardsAreNotEnough(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	// a single reward is proved, while the oldest entry has 4 messages
	strategy.targetNonces.NoncesData.ConfirmedNonce = 18
	strategy.targetNonces.NoncesData.UnrewardedRelayers = UnrewardedRelayersState{
		UnrewardedRelayerEntries: 4,
		MessagesInOldestEntry:    4,
	}
	assertNothingSelected(t, strategy, state)
}

func TestDeliveryStrategyIncludesOutboundStateProofWhenProvedRewardsAreEnough(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	strategy.targetNonces.NoncesData.ConfirmedNonce = 16
	strategy.targetNonces.NoncesData.UnrewardedRelayers = UnrewardedRelayersState{
		UnrewardedRelayerEntries: 4,
		MessagesInOldestEntry:    3,
	}
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(true, 4))
}

func TestDeliveryStrategyBatchLimits(t *testing.T) {
	testCases := map[string]struct {
		modify   func(*DeliveryParams, *DeliveryStrategy)
		expected types.NonceRange
		params   MessageProofParameters
	}{
		"limited by weight": {
			modify:   func(p *DeliveryParams, _ *DeliveryStrategy) { p.MaxMessagesWeightInSingleBatch = 3 },
			expected: types.NewNonceRange(20, 22),
			params:   proofParams(false, 3),
		},
		"single message overflowing weight": {
			modify: func(_ *DeliveryParams, s *DeliveryStrategy) {
				s.base.SourceQueue()[0].Nonces[0].DispatchWeight = 10
			},
			expected: types.NewNonceRange(20, 20),
			params:   proofParams(false, 10),
		},
		"limited by size": {
			modify:   func(p *DeliveryParams, _ *DeliveryStrategy) { p.MaxMessagesSizeInSingleBatch = 3 },
			expected: types.NewNonceRange(20, 22),
			params:   proofParams(false, 3),
		},
		"single message overflowing size": {
			modify: func(_ *DeliveryParams, s *DeliveryStrategy) {
				s.base.SourceQueue()[0].Nonces[0].Size = 10
			},
			expected: types.NewNonceRange(20, 20),
			params:   proofParams(false, 1),
		},
		"limited by count": {
			modify:   func(p *DeliveryParams, _ *DeliveryStrategy) { p.MaxMessagesInSingleBatch = 3 },
			expected: types.NewNonceRange(20, 22),
			params:   proofParams(false, 3),
		},
		"limited by unconfirmed nonces": {
			// one confirmation is still missing at the source
			modify: func(_ *DeliveryParams, s *DeliveryStrategy) {
				s.latestConfirmedNoncesAtSource = []confirmedNonce{{at: headerID(1), nonce: 18}}
				s.targetNonces.NoncesData.ConfirmedNonce = 18
			},
			expected: types.NewNonceRange(20, 22),
			params:   proofParams(false, 3),
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			state, strategy := prepareStrategy(t, testDeliveryParams())
			tc.modify(&strategy.params, strategy)
			assertSelected(t, strategy, state, tc.expected, tc.params)
		})
	}
}

func TestDeliveryStrategyWaitsForConfirmedNonceHeaderAtTarget(t *testing.T) {
	setup := func(t *testing.T) (deliveryState, *DeliveryStrategy) {
		state, strategy := prepareStrategy(t, testDeliveryParams())
		strategy.latestConfirmedNoncesAtSource = []confirmedNonce{
			{at: headerID(1), nonce: 18},
			{at: headerID(2), nonce: 19},
		}
		strategy.targetNonces.NoncesData.ConfirmedNonce = 18
		return state, strategy
	}

	// the confirmation of 19 happened at source header #2, which is unknown
	// to the target, so only 3 messages fit
	state, strategy := setup(t)
	assertSelected(t, strategy, state, types.NewNonceRange(20, 22), proofParams(false, 3))

	// once #2 is known, the confirmation is proved along with all messages
	state, strategy = setup(t)
	state.BestFinalizedSourceHeaderIDAtSource = headerIDPtr(2)
	state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(2))
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(true, 4))
}

func TestDeliveryStrategyRequiresSourceHeaderWhenConfirmationsAreRequired(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())

	// messages 20..=23 have been generated at #1 and delivered
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(false, 4))
	strategy.FinalizedTargetNoncesUpdated(deliveryTargetNoncesAt(23, 19, UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		MessagesInOldestEntry:    4,
		TotalMessages:            4,
	}), &state)

	// nothing to deliver, no headers required
	assertNothingSelected(t, strategy, state)
	_, ok := strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)

	moveTo := func(n uint64) {
		state.BestFinalizedSourceHeaderIDAtSource = headerIDPtr(n)
		state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(n))
		state.BestTargetHeaderID = headerIDPtr(n)
		state.BestFinalizedTargetHeaderID = headerIDPtr(n)
	}

	// messages 24..=25 are generated at #2, but 20..=23 are not confirmed
	// at the source, so there's no room at the target
	moveTo(2)
	strategy.SourceNoncesUpdated(headerID(2), deliverySourceNoncesAt(24, 25, 19))
	assertNothingSelected(t, strategy, state)
	_, ok = strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)

	moveTo(3)
	assertNothingSelected(t, strategy, state)
	_, ok = strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)

	// 20..=23 are confirmed at #4
	moveTo(4)
	strategy.SourceNoncesUpdated(headerID(4), deliverySourceNoncesAt(24, 25, 23))
	assertSelected(t, strategy, state, types.NewNonceRange(24, 25), proofParams(true, 2))
	_, ok = strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)
}

func TestDeliveryStrategyUsesWholeQueueToSelectNonces(t *testing.T) {
	state, strategy := prepareStrategy(t, DeliveryParams{
		MaxUnrewardedRelayerEntriesAtTarget: 100,
		MaxUnconfirmedNoncesAtTarget:        100,
		MaxMessagesInSingleBatch:            5,
		MaxMessagesWeightInSingleBatch:      100,
		MaxMessagesSizeInSingleBatch:        100,
	})
	strategy.SourceNoncesUpdated(headerID(2), deliverySourceNoncesAt(24, 25, 19))
	state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(2))

	// the batch limit applies to messages from both queue entries
	assertSelected(t, strategy, state, types.NewNonceRange(20, 24), proofParams(false, 5))
}

func TestDeliveryStrategyRequiresNothingForEmptyLane(t *testing.T) {
	state, _ := prepareStrategy(t, testDeliveryParams())

	strategy := NewDeliveryStrategy(testDeliveryParams())
	strategy.SourceNoncesUpdated(headerID(10), deliverySourceNoncesAt(1, 0, 0))
	require.Equal(t, []confirmedNonce{{at: headerID(10), nonce: 0}}, strategy.latestConfirmedNoncesAtSource)

	_, ok := strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)
}

func TestDeliveryStrategySelectsPreviousNoncesAfterTargetReorg(t *testing.T) {
	state, strategy := prepareStrategy(t, DeliveryParams{
		MaxUnrewardedRelayerEntriesAtTarget: 5,
		MaxUnconfirmedNoncesAtTarget:        5,
		MaxMessagesInSingleBatch:            5,
		MaxMessagesWeightInSingleBatch:      5,
		MaxMessagesSizeInSingleBatch:        5,
	})
	assertSelected(t, strategy, state, types.NewNonceRange(20, 23), proofParams(false, 4))

	submitted := types.NewNonceRange(20, 23)
	state.NoncesSubmitted = &submitted

	// 24 is generated at #2
	state.BestFinalizedSourceHeaderIDAtSource = headerIDPtr(2)
	strategy.SourceNoncesUpdated(headerID(2), deliverySourceNonces{
		NewNonces: MessageDetailsList{{Nonce: 24, DispatchWeight: 1}},
	})

	// 23 shows up at the best target header, which is then retracted
	data := deliveryTargetNoncesAt(23, 19, UnrewardedRelayersState{})
	state.BestTargetHeaderID = headerIDPtr(2)
	strategy.BestTargetNoncesUpdated(data, &state)
	require.Nil(t, state.NoncesSubmitted)
	data.LatestNonce = 19
	strategy.BestTargetNoncesUpdated(data, &state)

	// a fork with 19 received messages is finalized
	state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(2))
	state.BestTargetHeaderID = headerIDPtr(21)
	state.BestFinalizedTargetHeaderID = headerIDPtr(21)
	strategy.FinalizedTargetNoncesUpdated(data, &state)

	assertSelected(t, strategy, state, types.NewNonceRange(20, 24), proofParams(false, 5))
}

func TestDeliveryStrategyUnblocksLane(t *testing.T) {
	const (
		maxEntries     = 4
		maxUnconfirmed = 4
	)

	// messages 20..=23 are delivered at target #2, and the delivery is
	// confirmed at source #2
	prepare := func(t *testing.T, entries, messages uint64) (deliveryState, *DeliveryStrategy) {
		state, strategy := prepareStrategy(t, testDeliveryParams())

		nonces := deliveryTargetNoncesAt(23, 19, UnrewardedRelayersState{
			UnrewardedRelayerEntries: entries,
			TotalMessages:            messages,
		})
		state.BestTargetHeaderID = headerIDPtr(2)
		state.BestFinalizedTargetHeaderID = headerIDPtr(2)
		strategy.BestTargetNoncesUpdated(nonces, &state)
		strategy.FinalizedTargetNoncesUpdated(nonces, &state)

		confirmed := types.Nonce(23)
		state.BestFinalizedSourceHeaderIDAtSource = headerIDPtr(2)
		strategy.SourceNoncesUpdated(headerID(2), deliverySourceNonces{ConfirmedNonce: &confirmed})
		return state, strategy
	}

	// source #2 is finalized at target #3
	atTarget3 := func(state deliveryState) deliveryState {
		state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(2))
		state.BestTargetHeaderID = headerIDPtr(3)
		state.BestFinalizedTargetHeaderID = headerIDPtr(3)
		return state
	}

	testCases := map[string]struct {
		entries, messages uint64
		blocked           bool
	}{
		"not blocked":              {entries: maxEntries - 1, messages: maxUnconfirmed - 1},
		"no relayer slots":         {entries: maxEntries, messages: maxUnconfirmed - 1, blocked: true},
		"no message slots":         {entries: maxEntries - 1, messages: maxUnconfirmed, blocked: true},
		"no relayer nor msg slots": {entries: maxEntries, messages: maxUnconfirmed, blocked: true},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			state, strategy := prepare(t, tc.entries, tc.messages)

			required, ok := strategy.RequiredSourceHeaderAtTarget(state)
			if !tc.blocked {
				require.False(t, ok)
				assertNothingSelected(t, strategy, atTarget3(state))
				return
			}
			require.True(t, ok)
			require.Equal(t, headerID(2), required)
			// the empty selection starts right after the latest received nonce
			assertSelected(t, strategy, atTarget3(state), types.NewNonceRange(24, 23), proofParams(true, 0))
		})
	}

	t.Run("proof is ready", func(t *testing.T) {
		state, strategy := prepare(t, maxEntries-1, maxUnconfirmed)
		state.NoncesToSubmit = &race.NoncesToSubmit[HeaderID, MessagesProof]{At: headerID(2), Nonces: types.NewNonceRange(24, 23)}
		_, ok := strategy.RequiredSourceHeaderAtTarget(state)
		require.False(t, ok)
		assertNothingSelected(t, strategy, atTarget3(state))
	})

	t.Run("unblock is submitted", func(t *testing.T) {
		state, strategy := prepare(t, maxEntries-1, maxUnconfirmed)
		submitted := types.NewNonceRange(24, 23)
		state.NoncesSubmitted = &submitted
		_, ok := strategy.RequiredSourceHeaderAtTarget(state)
		require.False(t, ok)
		assertNothingSelected(t, strategy, atTarget3(state))
	})
}

func TestDeliveryStrategySkipsOutboundStateProofWithoutNewConfirmations(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())
	strategy.latestConfirmedNoncesAtSource = nil

	// 20..=21 are delivered
	nonces := deliveryTargetNoncesAt(21, 19, UnrewardedRelayersState{
		UnrewardedRelayerEntries: 1,
		TotalMessages:            2,
	})
	state.BestTargetHeaderID = headerIDPtr(2)
	state.BestFinalizedTargetHeaderID = headerIDPtr(2)
	strategy.BestTargetNoncesUpdated(nonces, &state)
	strategy.FinalizedTargetNoncesUpdated(nonces, &state)

	assertSelected(t, strategy, state, types.NewNonceRange(22, 23), proofParams(false, 2))
}

func TestDeliveryStrategyPrunesConfirmationsKnownToTarget(t *testing.T) {
	state, strategy := prepareStrategy(t, testDeliveryParams())
	strategy.SourceNoncesUpdated(headerID(2), deliverySourceNoncesAt(1, 0, 20))
	strategy.SourceNoncesUpdated(headerID(3), deliverySourceNoncesAt(1, 0, 20))
	strategy.SourceNoncesUpdated(headerID(4), deliverySourceNoncesAt(1, 0, 21))
	require.Len(t, strategy.latestConfirmedNoncesAtSource, 3)

	state.SetBestFinalizedSourceHeaderIDAtBestTarget(headerID(3))
	strategy.FinalizedTargetNoncesUpdated(deliveryTargetNoncesAt(19, 19, UnrewardedRelayersState{}), &state)
	require.Equal(t, []confirmedNonce{{at: headerID(4), nonce: 21}}, strategy.latestConfirmedNoncesAtSource)

	// the finalized nonce also moves the best known target nonce forward
	strategy.FinalizedTargetNoncesUpdated(deliveryTargetNoncesAt(21, 19, UnrewardedRelayersState{}), &state)
	assert.EqualValues(t, 21, strategy.targetNonces.LatestNonce)
}
