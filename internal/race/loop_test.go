package race

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lanerelay/types"
)

type clientStates = chan types.ClientState[testHeader, testHeader]

func TestStateUpdates(t *testing.T) {
	l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, newTestStrategy())

	l.sourceStateUpdated(clientState(5, 3, nil))
	require.Equal(t, header(3), *l.state.BestFinalizedSourceHeaderIDAtSource)
	require.True(t, l.sourceNoncesRequired)

	l.sourceNoncesRequired = false
	l.sourceStateUpdated(clientState(6, 3, nil))
	require.False(t, l.sourceNoncesRequired)

	l.targetStateUpdated(clientState(7, 6, headerPtr(2)))
	require.Equal(t, header(7), *l.state.BestTargetHeaderID)
	require.Equal(t, header(6), *l.state.BestFinalizedTargetHeaderID)
	require.Equal(t, header(2), *l.state.BestFinalizedSourceHeaderIDAtBestTarget)
	require.True(t, l.targetBestNoncesRequired)
	require.True(t, l.targetFinalizedNoncesRequired)

	// the source header at target is only read together with a new best
	// target header
	l.targetBestNoncesRequired, l.targetFinalizedNoncesRequired = false, false
	l.targetStateUpdated(clientState(7, 6, headerPtr(3)))
	require.Equal(t, header(2), *l.state.BestFinalizedSourceHeaderIDAtBestTarget)
	require.False(t, l.targetBestNoncesRequired)
	require.False(t, l.targetFinalizedNoncesRequired)

	l.targetStateUpdated(clientState(8, 6, nil))
	require.Nil(t, l.state.BestFinalizedSourceHeaderIDAtBestTarget)
	require.True(t, l.targetBestNoncesRequired)
	require.False(t, l.targetFinalizedNoncesRequired)
}

func TestRequiredHeaderIsAskedAgainOnNewTargetHeader(t *testing.T) {
	l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, newTestStrategy())

	l.sourceRequiredHeader = headerPtr(5)
	l.sourceRequiredHeaderAsked = true

	l.targetStateUpdated(clientState(8, 8, headerPtr(4)))
	require.Equal(t, header(5), *l.sourceRequiredHeader)
	require.False(t, l.sourceRequiredHeaderAsked)

	l.targetStateUpdated(clientState(9, 9, headerPtr(5)))
	require.Nil(t, l.sourceRequiredHeader)
}

func TestBatchTransactionIsSubmittedWithProof(t *testing.T) {
	testCases := map[string]struct {
		submitErr error
	}{
		"submitted": {},
		"rejected":  {submitErr: errLogical},
		"offline":   {submitErr: connErr()},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			batch := &testBatch{required: header(20)}
			source := &testSourceClient{latestNonce: 5}
			target := &testTargetClient{batch: batch, submitErrs: errQueue{tc.submitErr}}
			strategy := newTestStrategy()
			l := newTestLoop(t, source, target, strategy)

			l.state.BestTargetHeaderID = headerPtr(100)
			l.state.SetBestFinalizedSourceHeaderIDAtBestTarget(header(10))
			strategy.BestTargetNoncesUpdated(targetNonces(0), &l.state)
			strategy.SourceNoncesUpdated(header(20), sourceNonces(1, 5))

			// the nonces are generated at a header the target does not know
			_, ok := SelectNoncesToDeliver[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}](l.state, strategy)
			require.False(t, ok)
			l.updateRequiredSourceHeader()
			require.Equal(t, header(20), *l.sourceRequiredHeader)

			// the target prepares a batch transaction with the header
			l.dispatchTarget(ctx)
			require.NotNil(t, l.targetRequireHeader)
			require.NoError(t, l.requiredHeaderReceived(<-l.targetRequireHeader))
			l.targetRequireHeader = nil
			require.Nil(t, l.sourceRequiredHeader)
			require.Equal(t, batch, l.targetBatch)

			// the proof is generated at the header the batch delivers and the
			// batch is consumed
			l.dispatchSource(ctx)
			require.Nil(t, l.targetBatch)
			require.NotNil(t, l.sourceProof)
			require.NoError(t, l.proofGenerated(<-l.sourceProof))
			l.sourceProof = nil
			require.Equal(t, []testHeader{header(20)}, source.provedAt)
			require.Equal(t, header(20), l.state.NoncesToSubmit.At)
			require.Equal(t, batch, l.state.NoncesToSubmitBatch)

			// the confirmed header at the target is not changed
			require.Equal(t, header(10), *l.state.BestFinalizedSourceHeaderIDAtBestTarget)

			// the batch is submitted with the proof
			l.dispatchTarget(ctx)
			require.NotNil(t, l.targetSubmit)
			l.proofSubmitted(ctx, <-l.targetSubmit)
			l.targetSubmit = nil
			require.Len(t, target.submittedBatches, 1)
			require.Equal(t, batch, target.submittedBatches[0])
			require.Equal(t, types.NewNonceRange(1, 5), target.submittedNonces[0])

			// and it is dropped whatever the outcome is
			require.Nil(t, l.state.NoncesToSubmit)
			require.Nil(t, l.state.NoncesToSubmitBatch)

			if tc.submitErr == nil {
				require.Equal(t, types.NewNonceRange(1, 5), *l.state.NoncesSubmitted)
				require.NotNil(t, l.targetTxTracker)
			} else {
				require.Nil(t, l.state.NoncesSubmitted)
				require.False(t, l.tgt.online)
			}
		})
	}
}

func TestSubmittedTransactionResolution(t *testing.T) {
	testCases := map[string]struct {
		out         txOutcome[testHeader]
		expectReset bool
	}{
		"finalized and delivered": {
			out: txOutcome[testHeader]{status: Finalized(header(50)), latestNonce: 9},
		},
		"finalized and delivered more": {
			out: txOutcome[testHeader]{status: Finalized(header(50)), latestNonce: 12},
		},
		"finalized without effect": {
			out:         txOutcome[testHeader]{status: Finalized(header(50)), latestNonce: 7},
			expectReset: true,
		},
		"target nonces unknown": {
			out:         txOutcome[testHeader]{status: Finalized(header(50)), err: connErr()},
			expectReset: true,
		},
		"lost": {
			out:         txOutcome[testHeader]{status: Lost[testHeader]()},
			expectReset: true,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, newTestStrategy())
			submitted := types.NewNonceRange(5, 9)
			l.state.NoncesSubmitted = &submitted

			l.transactionResolved(tc.out)

			if tc.expectReset {
				require.Nil(t, l.state.NoncesSubmitted)
			} else {
				require.Equal(t, submitted, *l.state.NoncesSubmitted)
			}
		})
	}
}

func TestFinalizedTransactionIsCheckedAtFinalizationHeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target := &testTargetClient{receivedNonce: 7}
	l := newTestLoop(t, &testSourceClient{}, target, newTestStrategy())
	submitted := types.NewNonceRange(5, 9)
	l.state.NoncesSubmitted = &submitted

	at := header(finalityBase + 1)
	status := <-l.trackTransaction(ctx, testTracker{status: Finalized(at)})
	require.Equal(t, Finalized(at), status)

	// the check waits for the target call in flight
	l.transactionTracked(status)
	require.NotNil(t, l.pendingTxCheck)
	l.tgt.online = false
	l.dispatchTarget(ctx)
	require.Nil(t, l.targetTxCheck)

	// and goes before any other target call
	l.tgt.online = true
	l.targetBestNoncesRequired = true
	l.state.BestTargetHeaderID = headerPtr(10)
	l.dispatchTarget(ctx)
	require.NotNil(t, l.targetTxCheck)
	require.Nil(t, l.targetBestNonces)
	require.False(t, l.tgt.online)

	// nothing else is sent to the target until the check is done
	l.dispatchTarget(ctx)
	require.Nil(t, l.targetBestNonces)

	res := <-l.targetTxCheck
	l.targetTxCheck = nil
	require.Equal(t, at, res.value.at)
	l.transactionChecked(res)
	require.Nil(t, l.pendingTxCheck)
	require.True(t, l.tgt.online)
	require.Nil(t, l.state.NoncesSubmitted)
}

func TestTransactionCheckIsDroppedOnceNoncesAreSeen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, newTestStrategy())
	submitted := types.NewNonceRange(1, 3)
	l.state.NoncesSubmitted = &submitted

	l.transactionTracked(Finalized(header(finalityBase + 1)))
	require.NotNil(t, l.pendingTxCheck)

	l.state.ResetNoncesSubmitted()
	l.dispatchTarget(ctx)
	require.Nil(t, l.pendingTxCheck)
	require.Nil(t, l.targetTxCheck)
	require.True(t, l.tgt.online)
}

func TestLostTransactionIsNotChecked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, newTestStrategy())
	submitted := types.NewNonceRange(1, 3)
	l.state.NoncesSubmitted = &submitted

	l.transactionTracked(Lost[testHeader]())
	require.Nil(t, l.pendingTxCheck)
	require.Nil(t, l.state.NoncesSubmitted)

	l.dispatchTarget(ctx)
	require.Nil(t, l.targetTxCheck)
}

func TestRejectedProofResetsBestTargetNonces(t *testing.T) {
	testCases := map[string]struct {
		err          error
		expectResets int
	}{
		"rejected":         {err: errLogical, expectResets: 1},
		"connection error": {err: connErr(), expectResets: 0},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			strategy := newSpyStrategy()
			l := newTestLoop(t, &testSourceClient{}, &testTargetClient{}, strategy)
			defer l.tgt.stop()

			l.state.SetBestFinalizedSourceHeaderIDAtBestTarget(header(1))
			strategy.BestTargetNoncesUpdated(targetNonces(0), &l.state)
			strategy.SourceNoncesUpdated(header(1), sourceNonces(1, 5))
			nonces := types.NewNonceRange(1, 5)
			l.state.NoncesToSubmit = &NoncesToSubmit[testHeader, testProof]{At: header(1), Nonces: nonces, Proof: nonces}
			l.state.NoncesToSubmitBatch = &testBatch{required: header(1)}

			l.proofSubmitted(ctx, result[NoncesSubmitArtifacts[testHeader]]{err: tc.err})

			require.Nil(t, l.state.NoncesToSubmit)
			require.Nil(t, l.state.NoncesToSubmitBatch)
			require.Nil(t, l.state.NoncesSubmitted)
			require.Equal(t, tc.expectResets, strategy.resets)
			require.False(t, l.tgt.online)
			require.NotNil(t, l.tgt.retryC)

			_, ok := SelectNoncesToDeliver[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}](l.state, strategy)
			require.Equal(t, tc.expectResets == 0, ok)
			if tc.expectResets > 0 {
				l.dispatchSource(ctx)
				require.Nil(t, l.sourceProof)
			}
		})
	}
}

func TestLogicalErrorFailsRace(t *testing.T) {
	testCases := map[string]struct {
		source *testSourceClient
		target *testTargetClient
		// sourceAhead makes the target require a newer source header
		sourceAhead bool
		expected    types.FailedClient
	}{
		"source nonces": {
			source:   &testSourceClient{latestNonce: 5, noncesErrs: errQueue{errLogical}},
			target:   &testTargetClient{},
			expected: types.FailedSource,
		},
		"source proof": {
			source:   &testSourceClient{latestNonce: 5, proofErrs: errQueue{connErr(), errLogical}},
			target:   &testTargetClient{},
			expected: types.FailedSource,
		},
		"target nonces": {
			source:   &testSourceClient{latestNonce: 5},
			target:   &testTargetClient{noncesErrs: errQueue{connErr(), errLogical}},
			expected: types.FailedTarget,
		},
		"required source header": {
			source:      &testSourceClient{latestNonce: 5},
			target:      &testTargetClient{requireErrs: errQueue{errLogical}},
			sourceAhead: true,
			expected:    types.FailedTarget,
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			defer leaktest.Check(t)()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sourceUpdates, targetUpdates := make(clientStates, 1), make(clientStates, 1)
			errCh := runTestRace(ctx, t, tc.source, sourceUpdates, tc.target, targetUpdates)
			if tc.sourceAhead {
				sourceUpdates <- clientState(2, 2, nil)
			} else {
				sourceUpdates <- clientState(1, 1, nil)
			}
			targetUpdates <- clientState(1, 1, headerPtr(1))

			select {
			case err := <-errCh:
				var failed types.FailedClient
				require.True(t, errors.As(err, &failed), "unexpected error %v", err)
				require.Equal(t, tc.expected, failed)
				require.Contains(t, err.Error(), tc.expected.String()+" client has failed")
				require.Contains(t, err.Error(), errLogical.Error())
			case <-time.After(5 * time.Second):
				t.Fatal("race has not failed")
			}
		})
	}
}

func TestConnectionErrorsAreRetried(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(errQueue, 256)
	for i := range errs {
		errs[i] = connErr()
	}
	source := &testSourceClient{latestNonce: 5, noncesErrs: errs}
	target := &testTargetClient{}

	sourceUpdates, targetUpdates := make(clientStates, 1), make(clientStates, 1)
	errCh := runTestRace(ctx, t, source, sourceUpdates, target, targetUpdates)
	sourceUpdates <- clientState(1, 1, nil)
	targetUpdates <- clientState(1, 1, headerPtr(1))

	require.Eventually(t, func() bool {
		return target.received() == 5
	}, 10*time.Second, 10*time.Millisecond)
	require.GreaterOrEqual(t, source.calls(), 257)

	cancel()
	require.NoError(t, <-errCh)
}

func TestEndedStateUpdatesFailRace(t *testing.T) {
	testCases := map[string]struct {
		closeSource bool
		expected    types.FailedClient
	}{
		"source": {closeSource: true, expected: types.FailedSource},
		"target": {closeSource: false, expected: types.FailedTarget},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			defer leaktest.Check(t)()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sourceUpdates, targetUpdates := make(clientStates), make(clientStates)
			errCh := runTestRace(ctx, t, &testSourceClient{}, sourceUpdates, &testTargetClient{}, targetUpdates)
			if tc.closeSource {
				close(sourceUpdates)
			} else {
				close(targetUpdates)
			}

			err := <-errCh
			require.ErrorIs(t, err, tc.expected)
			require.EqualError(t, err, tc.expected.Error()+": state updates have ended")
		})
	}
}

func TestRaceDeliversAllNonces(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const expected = 60

	source := &testSourceClient{noncesErrs: errQueue{connErr(), connErr()}}
	target := &testTargetClient{noncesErrs: errQueue{connErr()}}

	sourceUpdates, targetUpdates := make(clientStates, 100), make(clientStates, 100)
	errCh := runTestRace(ctx, t, source, sourceUpdates, target, targetUpdates)

	var height uint64 = 1
	require.Eventually(t, func() bool {
		height++

		source.mtx.Lock()
		if source.latestNonce < expected {
			source.latestNonce += 3
		}
		source.mtx.Unlock()

		// the target lags one source header behind
		select {
		case sourceUpdates <- clientState(height, height, nil):
		default:
		}
		select {
		case targetUpdates <- clientState(height, height, headerPtr(height-1)):
		default:
		}

		return target.received() == expected
	}, 20*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, source.flight.maximum(), 1)
	assert.LessOrEqual(t, target.flight.maximum(), 1)

	cancel()
	require.NoError(t, <-errCh)
}
