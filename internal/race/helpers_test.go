package race

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/types"
)

type (
	testHeader   = types.HeaderID
	testProof    = types.NonceRange
	testState    = State[testHeader, testHeader, testProof]
	testStrategy = BasicStrategy[testHeader, testHeader, testProof, types.NonceRange, struct{}]
	testLoop     = raceLoop[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}]
)

// finalityBase is added to the number of the header a test transaction is
// finalized at, so it never collides with the headers of the state updates.
const finalityBase = 1_000_000

func header(n uint64) testHeader {
	var h types.Hash
	binary.BigEndian.PutUint64(h[:], n)
	return types.NewHeaderID(n, h)
}

func headerPtr(n uint64) *testHeader {
	h := header(n)
	return &h
}

func sourceNonces(first, last types.Nonce) SourceClientNonces[types.NonceRange] {
	return SourceClientNonces[types.NonceRange]{NewNonces: types.NewNonceRange(first, last)}
}

func targetNonces(latest types.Nonce) TargetClientNonces[struct{}] {
	return TargetClientNonces[struct{}]{LatestNonce: latest}
}

var errLogical = errors.New("unexpected response")

func connErr() error { return NewConnectionError(errors.New("connection refused")) }

// errQueue pops errors in order, returning nil once it is empty.
type errQueue []error

func (q *errQueue) pop() error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

// inFlight counts concurrent calls.
type inFlight struct {
	cur, max int32
}

// enter registers a call and keeps it running for a moment, so calls that
// overlap are noticed.
func (f *inFlight) enter() {
	cur := atomic.AddInt32(&f.cur, 1)
	for {
		prev := atomic.LoadInt32(&f.max)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.max, prev, cur) {
			break
		}
	}
	time.Sleep(100 * time.Microsecond)
}

func (f *inFlight) leave() { atomic.AddInt32(&f.cur, -1) }

func (f *inFlight) maximum() int { return int(atomic.LoadInt32(&f.max)) }

type testBatch struct {
	required testHeader
}

func (b *testBatch) RequiredHeaderID() testHeader { return b.required }

type testTracker struct {
	status TrackedTransactionStatus[testHeader]
}

func (t testTracker) Wait(ctx context.Context) TrackedTransactionStatus[testHeader] {
	select {
	case <-ctx.Done():
		return Lost[testHeader]()
	default:
		return t.status
	}
}

// testSourceClient is a source with nonces 1..latestNonce.
type testSourceClient struct {
	mtx sync.Mutex

	latestNonce types.Nonce
	noncesErrs  errQueue
	proofErrs   errQueue

	noncesCalls int
	provedAt    []testHeader
	flight      inFlight
}

func (s *testSourceClient) Nonces(
	ctx context.Context,
	at testHeader,
	prev types.Nonce,
) (testHeader, SourceClientNonces[types.NonceRange], error) {
	s.flight.enter()
	defer s.flight.leave()
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.noncesCalls++
	if err := s.noncesErrs.pop(); err != nil {
		return at, SourceClientNonces[types.NonceRange]{}, err
	}
	return at, sourceNonces(prev+1, s.latestNonce), nil
}

func (s *testSourceClient) GenerateProof(
	ctx context.Context,
	at testHeader,
	nonces types.NonceRange,
	_ struct{},
) (testHeader, types.NonceRange, testProof, error) {
	s.flight.enter()
	defer s.flight.leave()
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if err := s.proofErrs.pop(); err != nil {
		return at, nonces, testProof{}, err
	}
	s.provedAt = append(s.provedAt, at)
	return at, nonces, nonces, nil
}

func (s *testSourceClient) calls() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.noncesCalls
}

// testTargetClient accepts proofs of the nonces that directly follow its
// latest received nonce.
type testTargetClient struct {
	mtx sync.Mutex

	receivedNonce types.Nonce
	batch         BatchTransaction[testHeader]
	requireErrs   errQueue
	noncesErrs    errQueue
	submitErrs    errQueue
	// lose makes submitted transactions lost.
	lose bool
	// ineffective makes submitted transactions finalized without changing
	// the received nonce.
	ineffective bool

	submittedBatches []BatchTransaction[testHeader]
	submittedNonces  []types.NonceRange
	flight           inFlight
}

func (c *testTargetClient) RequireSourceHeader(
	ctx context.Context,
	id testHeader,
) (BatchTransaction[testHeader], error) {
	c.flight.enter()
	defer c.flight.leave()
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.requireErrs.pop(); err != nil {
		return nil, err
	}
	return c.batch, nil
}

func (c *testTargetClient) Nonces(
	ctx context.Context,
	at testHeader,
	_ bool,
) (testHeader, TargetClientNonces[struct{}], error) {
	c.flight.enter()
	defer c.flight.leave()
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if err := c.noncesErrs.pop(); err != nil {
		return at, TargetClientNonces[struct{}]{}, err
	}
	return at, targetNonces(c.receivedNonce), nil
}

func (c *testTargetClient) SubmitProof(
	ctx context.Context,
	batch BatchTransaction[testHeader],
	_ testHeader,
	nonces types.NonceRange,
	proof testProof,
) (NoncesSubmitArtifacts[testHeader], error) {
	c.flight.enter()
	defer c.flight.leave()
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.submittedBatches = append(c.submittedBatches, batch)
	c.submittedNonces = append(c.submittedNonces, nonces)
	if err := c.submitErrs.pop(); err != nil {
		return NoncesSubmitArtifacts[testHeader]{}, err
	}

	status := Finalized(header(finalityBase + uint64(len(c.submittedNonces))))
	switch {
	case c.lose:
		status = Lost[testHeader]()
	case c.ineffective:
	case proof.Begin() <= c.receivedNonce+1 && proof.End() > c.receivedNonce:
		c.receivedNonce = proof.End()
	}
	return NoncesSubmitArtifacts[testHeader]{
		Nonces:    nonces,
		TxTracker: testTracker{status: status},
	}, nil
}

func (c *testTargetClient) received() types.Nonce {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.receivedNonce
}

// spyStrategy records the calls the loop makes.
type spyStrategy struct {
	*BasicStrategy[testHeader, testHeader, testProof, types.NonceRange, struct{}]

	resets int
}

func newSpyStrategy() *spyStrategy {
	return &spyStrategy{BasicStrategy: NewBasicStrategy[testHeader, testHeader, testProof, types.NonceRange, struct{}]()}
}

func (s *spyStrategy) ResetBestTargetNonces() {
	s.resets++
	s.BasicStrategy.ResetBestTargetNonces()
}

func zeroBackoff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newTestLoop(
	t *testing.T,
	source *testSourceClient,
	target *testTargetClient,
	strategy Strategy[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}],
) *testLoop {
	t.Helper()
	return newRaceLoop[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}](
		source, target, strategy,
		Logger(log.NewTestingLogger(t)),
		RetryBackoff(zeroBackoff),
	)
}

func runTestRace(
	ctx context.Context,
	t *testing.T,
	source *testSourceClient,
	sourceUpdates <-chan types.ClientState[testHeader, testHeader],
	target *testTargetClient,
	targetUpdates <-chan types.ClientState[testHeader, testHeader],
) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	logger := log.NewTestingLogger(t)
	go func() {
		errCh <- Run[testHeader, testHeader, testProof, types.NonceRange, struct{}, struct{}](
			ctx,
			source, sourceUpdates,
			target, targetUpdates,
			NewBasicStrategy[testHeader, testHeader, testProof, types.NonceRange, struct{}](),
			Logger(logger),
			RetryBackoff(zeroBackoff),
			Names("TestSource", "TestTarget"),
		)
	}()
	return errCh
}

func clientState(best, finalized uint64, peer *testHeader) types.ClientState[testHeader, testHeader] {
	return types.ClientState[testHeader, testHeader]{
		BestSelf:                    header(best),
		BestFinalizedSelf:           header(finalized),
		BestFinalizedPeerAtBestSelf: peer,
	}
}
