package race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lanerelay/types"
)

func newTestStrategy() *testStrategy {
	return NewBasicStrategy[testHeader, testHeader, testProof, types.NonceRange, struct{}]()
}

func queuedRanges(s *testStrategy) []types.NonceRange {
	ranges := []types.NonceRange{}
	for _, q := range s.SourceQueue() {
		ranges = append(ranges, q.Nonces)
	}
	return ranges
}

func TestBasicStrategyBestAtSourceIsUnknownUntilTargetIsKnown(t *testing.T) {
	strategy := newTestStrategy()
	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 5))

	_, ok := strategy.BestAtSource()
	require.False(t, ok)

	var state testState
	strategy.BestTargetNoncesUpdated(targetNonces(10), &state)
	best, ok := strategy.BestAtSource()
	require.True(t, ok)
	assert.EqualValues(t, 10, best)

	strategy.SourceNoncesUpdated(header(2), sourceNonces(11, 20))
	best, ok = strategy.BestAtSource()
	require.True(t, ok)
	assert.EqualValues(t, 20, best)
}

func TestBasicStrategyQueuesOnlyNewNonces(t *testing.T) {
	strategy := newTestStrategy()
	require.True(t, strategy.IsEmpty())

	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 5))
	strategy.SourceNoncesUpdated(header(2), sourceNonces(1, 5))
	strategy.SourceNoncesUpdated(header(3), sourceNonces(4, 7))
	strategy.SourceNoncesUpdated(header(4), sourceNonces(8, 7))

	require.False(t, strategy.IsEmpty())
	require.Equal(t, []types.NonceRange{
		types.NewNonceRange(1, 5),
		types.NewNonceRange(6, 7),
	}, queuedRanges(strategy))

	var state testState
	strategy.BestTargetNoncesUpdated(targetNonces(9), &state)
	strategy.SourceNoncesUpdated(header(5), sourceNonces(8, 12))
	require.Equal(t, []types.NonceRange{
		types.NewNonceRange(1, 5),
		types.NewNonceRange(6, 7),
		types.NewNonceRange(10, 12),
	}, queuedRanges(strategy))
}

func TestBasicStrategyFinalizedNoncesArePruned(t *testing.T) {
	strategy := newTestStrategy()
	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 5))
	strategy.SourceNoncesUpdated(header(2), sourceNonces(6, 10))

	var state testState
	strategy.FinalizedTargetNoncesUpdated(targetNonces(7), &state)
	require.Equal(t, []types.NonceRange{types.NewNonceRange(8, 10)}, queuedRanges(strategy))

	best, ok := strategy.BestAtTarget()
	require.True(t, ok)
	assert.EqualValues(t, 7, best)

	// the finalized nonce never moves the best nonce back
	strategy.BestTargetNoncesUpdated(targetNonces(9), &state)
	strategy.FinalizedTargetNoncesUpdated(targetNonces(8), &state)
	best, _ = strategy.BestAtTarget()
	assert.EqualValues(t, 9, best)

	strategy.FinalizedTargetNoncesUpdated(targetNonces(10), &state)
	require.True(t, strategy.IsEmpty())
}

func TestBasicStrategyBestTargetNoncesResetState(t *testing.T) {
	testCases := map[string]struct {
		latest           types.Nonce
		toSubmit         types.NonceRange
		submitted        types.NonceRange
		expectToSubmit   bool
		expectSubmitted  bool
		expectBatchReset bool
	}{
		"target has nothing new": {
			latest:          4,
			toSubmit:        types.NewNonceRange(8, 9),
			submitted:       types.NewNonceRange(5, 7),
			expectToSubmit:  true,
			expectSubmitted: true,
		},
		"target has some of the submitted nonces": {
			latest:          5,
			toSubmit:        types.NewNonceRange(8, 9),
			submitted:       types.NewNonceRange(5, 7),
			expectToSubmit:  true,
			expectSubmitted: false,
		},
		"target has some of the nonces to submit": {
			latest:           8,
			toSubmit:         types.NewNonceRange(8, 9),
			submitted:        types.NewNonceRange(5, 7),
			expectToSubmit:   false,
			expectSubmitted:  false,
			expectBatchReset: true,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			submitted := tc.submitted
			state := testState{
				NoncesToSubmit:      &NoncesToSubmit[testHeader, testProof]{At: header(1), Nonces: tc.toSubmit},
				NoncesToSubmitBatch: &testBatch{required: header(1)},
				NoncesSubmitted:     &submitted,
			}

			strategy := newTestStrategy()
			strategy.BestTargetNoncesUpdated(targetNonces(tc.latest), &state)

			_, ok := state.NoncesToSubmitRange()
			assert.Equal(t, tc.expectToSubmit, ok)
			_, ok = state.NoncesSubmittedRange()
			assert.Equal(t, tc.expectSubmitted, ok)
			assert.Equal(t, tc.expectBatchReset, state.NoncesToSubmitBatch == nil)

			best, ok := strategy.BestAtTarget()
			require.True(t, ok)
			assert.Equal(t, tc.latest, best)
		})
	}
}

func TestBasicStrategySelectsNothingWhileSubmitting(t *testing.T) {
	strategy := newTestStrategy()
	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 10))

	state := testState{BestFinalizedSourceHeaderIDAtBestTarget: headerPtr(1)}

	// unknown best target nonce
	_, _, ok := strategy.SelectNoncesToDeliver(state)
	require.False(t, ok)

	strategy.BestTargetNoncesUpdated(targetNonces(0), &state)
	nonces, _, ok := strategy.SelectNoncesToDeliver(state)
	require.True(t, ok)
	require.Equal(t, types.NewNonceRange(1, 10), nonces)

	withProof := state
	withProof.NoncesToSubmit = &NoncesToSubmit[testHeader, testProof]{At: header(1), Nonces: nonces}
	_, _, ok = strategy.SelectNoncesToDeliver(withProof)
	require.False(t, ok)

	submitted := state
	submitted.NoncesSubmitted = &nonces
	_, _, ok = strategy.SelectNoncesToDeliver(submitted)
	require.False(t, ok)

	strategy.ResetBestTargetNonces()
	_, _, ok = strategy.SelectNoncesToDeliver(state)
	require.False(t, ok)
}

func TestBasicStrategySelectsNoncesKnownToTarget(t *testing.T) {
	strategy := newTestStrategy()
	var state testState
	strategy.BestTargetNoncesUpdated(targetNonces(0), &state)
	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 3))
	strategy.SourceNoncesUpdated(header(3), sourceNonces(4, 6))
	strategy.SourceNoncesUpdated(header(5), sourceNonces(7, 9))

	testCases := []struct {
		anchor   uint64
		best     types.Nonce
		limit    uint64
		expected types.NonceRange
		ok       bool
	}{
		{anchor: 0, best: 0, ok: false},
		{anchor: 1, best: 0, expected: types.NewNonceRange(1, 3), ok: true},
		{anchor: 2, best: 0, expected: types.NewNonceRange(1, 3), ok: true},
		{anchor: 4, best: 0, expected: types.NewNonceRange(1, 6), ok: true},
		{anchor: 5, best: 0, expected: types.NewNonceRange(1, 9), ok: true},
		{anchor: 5, best: 4, expected: types.NewNonceRange(5, 9), ok: true},
		{anchor: 5, best: 4, limit: 2, expected: types.NewNonceRange(5, 6), ok: true},
		{anchor: 3, best: 6, ok: false},
		{anchor: 5, best: 9, ok: false},
	}

	for _, tc := range testCases {
		strategy.ResetBestTargetNonces()
		strategy.BestTargetNoncesUpdated(targetNonces(tc.best), &state)
		state.SetBestFinalizedSourceHeaderIDAtBestTarget(header(tc.anchor))

		nonces, ok := strategy.SelectNonces(state, tc.limit)
		require.Equal(t, tc.ok, ok, "anchor %d best %d", tc.anchor, tc.best)
		if tc.ok {
			require.Equal(t, tc.expected, nonces, "anchor %d best %d", tc.anchor, tc.best)
		}
	}
}

func TestBasicStrategyRequiredSourceHeader(t *testing.T) {
	strategy := newTestStrategy()
	var state testState

	// nothing is known about the target
	strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 3))
	_, ok := strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)

	// the queued nonces may be delivered right now
	state.SetBestFinalizedSourceHeaderIDAtBestTarget(header(1))
	strategy.BestTargetNoncesUpdated(targetNonces(0), &state)
	_, ok = strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)

	strategy.BestTargetNoncesUpdated(targetNonces(3), &state)
	strategy.SourceNoncesUpdated(header(7), sourceNonces(4, 5))
	required, ok := strategy.RequiredSourceHeaderAtTarget(state)
	require.True(t, ok)
	require.Equal(t, header(7), required)

	// nothing is required while a transaction is being mined
	submitted := types.NewNonceRange(4, 5)
	pending := state
	pending.NoncesSubmitted = &submitted
	_, ok = strategy.RequiredSourceHeaderAtTarget(pending)
	require.False(t, ok)

	state.SetBestFinalizedSourceHeaderIDAtBestTarget(header(7))
	_, ok = strategy.RequiredSourceHeaderAtTarget(state)
	require.False(t, ok)
}

func TestBasicStrategyResubmitsSameRange(t *testing.T) {
	strategy := newTestStrategy()
	state := testState{BestFinalizedSourceHeaderIDAtBestTarget: headerPtr(2)}
	strategy.BestTargetNoncesUpdated(targetNonces(4), &state)
	strategy.SourceNoncesUpdated(header(2), sourceNonces(5, 9))

	first, _, ok := strategy.SelectNoncesToDeliver(state)
	require.True(t, ok)

	// the range is proved, submitted and then lost
	state.NoncesSubmitted = &first
	state.ResetNoncesSubmitted()

	second, _, ok := strategy.SelectNoncesToDeliver(state)
	require.True(t, ok)
	require.Equal(t, first, second)
}
