package race

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/types"
)

// result is the outcome of a client call running on its own goroutine.
type result[T any] struct {
	value T
	err   error
}

// spawn runs fn on a new goroutine. The returned channel receives exactly
// one result and is never closed.
func spawn[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan result[T] {
	ch := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- result[T]{value: v, err: err}
	}()
	return ch
}

type headerNonces[H, N any] struct {
	at     H
	nonces N
}

type generatedProof[SH, P any] struct {
	at     SH
	nonces types.NonceRange
	proof  P
	batch  BatchTransaction[SH]
}

type txOutcome[TH any] struct {
	status TrackedTransactionStatus[TH]
	// latestNonce is the latest nonce at the target at the header the
	// transaction is finalized at.
	latestNonce types.Nonce
	err         error
}

// txCheck is a finalized transaction whose effect has not been read at the
// target yet.
type txCheck[TH any] struct {
	at TH
	// running is set once the nonces are asked for.
	running bool
}

// side is the bookkeeping of one of the race clients.
type side struct {
	name    string
	failure types.FailedClient
	backoff backoff.BackOff

	// online is false while a call is pending or a retry timer runs.
	online bool
	retry  *time.Timer
	// retryC is nil unless a retry timer is armed.
	retryC <-chan time.Time
}

func (s *side) goOffline(d time.Duration) {
	s.online = false
	s.retry = time.NewTimer(d)
	s.retryC = s.retry.C
}

func (s *side) wakeUp() {
	s.online = true
	s.retry = nil
	s.retryC = nil
}

func (s *side) stop() {
	if s.retry != nil {
		s.retry.Stop()
	}
}

// raceLoop is the state of a running race. It is only touched by the
// goroutine running run.
type raceLoop[SH, TH Header, P, R, PP, TD any] struct {
	opts    options
	logger  log.Logger
	metrics *Metrics

	source   SourceClient[SH, R, PP, P]
	target   TargetClient[SH, TH, TD, P]
	strategy Strategy[SH, TH, P, R, PP, TD]

	state      State[SH, TH, P]
	progressAt time.Time

	src                       side
	sourceNoncesRequired      bool
	sourceRequiredHeader      *SH
	sourceRequiredHeaderAsked bool
	sourceNonces              <-chan result[headerNonces[SH, SourceClientNonces[R]]]
	sourceProof               <-chan result[generatedProof[SH, P]]

	tgt                           side
	targetBestNoncesRequired      bool
	targetFinalizedNoncesRequired bool
	targetBatch                   BatchTransaction[SH]
	targetRequireHeader           <-chan result[BatchTransaction[SH]]
	targetBestNonces              <-chan result[headerNonces[TH, TargetClientNonces[TD]]]
	targetFinalizedNonces         <-chan result[headerNonces[TH, TargetClientNonces[TD]]]
	targetSubmit                  <-chan result[NoncesSubmitArtifacts[TH]]
	targetTxTracker               <-chan TrackedTransactionStatus[TH]
	targetTxCheck                 <-chan result[headerNonces[TH, TargetClientNonces[TD]]]
	pendingTxCheck                *txCheck[TH]
}

// Run runs the race loop until ctx is canceled, in which case it returns
// nil, or until one of the clients fails in a way that can not be retried.
// In the latter case the returned error wraps a types.FailedClient.
//
// The race state is created empty and is dropped when Run returns. The
// loop is expected to be rebuilt from scratch after a failure.
func Run[SH, TH Header, P, R, PP, TD any](
	ctx context.Context,
	source SourceClient[SH, R, PP, P],
	sourceUpdates <-chan types.ClientState[SH, TH],
	target TargetClient[SH, TH, TD, P],
	targetUpdates <-chan types.ClientState[TH, SH],
	strategy Strategy[SH, TH, P, R, PP, TD],
	opts ...Option,
) error {
	l := newRaceLoop(source, target, strategy, opts...)
	return l.run(ctx, sourceUpdates, targetUpdates)
}

func newRaceLoop[SH, TH Header, P, R, PP, TD any](
	source SourceClient[SH, R, PP, P],
	target TargetClient[SH, TH, TD, P],
	strategy Strategy[SH, TH, P, R, PP, TD],
	opts ...Option,
) *raceLoop[SH, TH, P, R, PP, TD] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &raceLoop[SH, TH, P, R, PP, TD]{
		opts:       o,
		logger:     o.logger.With("source", o.sourceName, "target", o.targetName),
		metrics:    o.metrics,
		source:     source,
		target:     target,
		strategy:   strategy,
		progressAt: time.Now(),
		src: side{
			name:    o.sourceName,
			failure: types.FailedSource,
			backoff: o.backoff(),
			online:  true,
		},
		tgt: side{
			name:    o.targetName,
			failure: types.FailedTarget,
			backoff: o.backoff(),
			online:  true,
		},
	}
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) run(
	ctx context.Context,
	sourceUpdates <-chan types.ClientState[SH, TH],
	targetUpdates <-chan types.ClientState[TH, SH],
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer l.src.stop()
	defer l.tgt.stop()

	for {
		var err error

		select {
		case <-ctx.Done():
			return nil

		// when headers ids are updated
		case st, ok := <-sourceUpdates:
			if !ok {
				l.logger.Error("source state updates have ended")
				return fmt.Errorf("%w: state updates have ended", types.FailedSource)
			}
			l.sourceStateUpdated(st)
		case st, ok := <-targetUpdates:
			if !ok {
				l.logger.Error("target state updates have ended")
				return fmt.Errorf("%w: state updates have ended", types.FailedTarget)
			}
			l.targetStateUpdated(st)

		// when nonces are updated
		case res := <-l.sourceNonces:
			l.sourceNonces = nil
			err = l.sourceNoncesReceived(res)
		case res := <-l.targetBestNonces:
			l.targetBestNonces = nil
			err = l.targetBestNoncesReceived(res)
		case res := <-l.targetFinalizedNonces:
			l.targetFinalizedNonces = nil
			err = l.targetFinalizedNoncesReceived(res)

		// proof generation and submission
		case res := <-l.targetRequireHeader:
			l.targetRequireHeader = nil
			err = l.requiredHeaderReceived(res)
		case res := <-l.sourceProof:
			l.sourceProof = nil
			err = l.proofGenerated(res)
		case res := <-l.targetSubmit:
			l.targetSubmit = nil
			l.proofSubmitted(ctx, res)
		case status := <-l.targetTxTracker:
			l.targetTxTracker = nil
			l.transactionTracked(status)
		case res := <-l.targetTxCheck:
			l.targetTxCheck = nil
			l.transactionChecked(res)

		// when we're ready to retry request
		case <-l.src.retryC:
			l.src.wakeUp()
		case <-l.tgt.retryC:
			l.tgt.wakeUp()
		}

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		l.printProgress()
		l.dispatchSource(ctx)
		l.dispatchTarget(ctx)
	}
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) sourceStateUpdated(st types.ClientState[SH, TH]) {
	known := l.state.BestFinalizedSourceHeaderIDAtSource
	if known != nil && *known == st.BestFinalizedSelf {
		return
	}

	id := st.BestFinalizedSelf
	l.state.BestFinalizedSourceHeaderIDAtSource = &id
	l.sourceNoncesRequired = true
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) targetStateUpdated(st types.ClientState[TH, SH]) {
	if best := l.state.BestTargetHeaderID; best == nil || *best != st.BestSelf {
		id := st.BestSelf
		l.state.BestTargetHeaderID = &id
		l.state.BestFinalizedSourceHeaderIDAtBestTarget = nil
		if st.BestFinalizedPeerAtBestSelf != nil {
			l.state.SetBestFinalizedSourceHeaderIDAtBestTarget(*st.BestFinalizedPeerAtBestSelf)
		}
		l.targetBestNoncesRequired = true
		l.requiredHeaderRetry()
	}

	if finalized := l.state.BestFinalizedTargetHeaderID; finalized == nil || *finalized != st.BestFinalizedSelf {
		id := st.BestFinalizedSelf
		l.state.BestFinalizedTargetHeaderID = &id
		l.targetFinalizedNoncesRequired = true
	}
}

// requiredHeaderRetry allows the required source header to be asked for
// again, or drops the requirement if the target already has the header.
func (l *raceLoop[SH, TH, P, R, PP, TD]) requiredHeaderRetry() {
	if l.sourceRequiredHeader == nil {
		return
	}

	atTarget := l.state.BestFinalizedSourceHeaderIDAtBestTarget
	if atTarget != nil && (*atTarget).Height() >= (*l.sourceRequiredHeader).Height() {
		l.logger.Debug("required source header is known to the target", "header", *l.sourceRequiredHeader)
		l.sourceRequiredHeader = nil
	}
	l.sourceRequiredHeaderAsked = false
}

// updateRequiredSourceHeader asks the strategy whether the target needs a
// newer source header to make progress.
func (l *raceLoop[SH, TH, P, R, PP, TD]) updateRequiredSourceHeader() {
	id, ok := l.strategy.RequiredSourceHeaderAtTarget(l.state)
	if !ok {
		l.sourceRequiredHeader = nil
		l.sourceRequiredHeaderAsked = false
		return
	}
	if l.sourceRequiredHeader != nil && *l.sourceRequiredHeader == id {
		return
	}
	l.sourceRequiredHeader = &id
	l.sourceRequiredHeaderAsked = false
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) sourceNoncesReceived(
	res result[headerNonces[SH, SourceClientNonces[R]]],
) error {
	if err := l.process(&l.src, res.err, "error retrieving nonces from source"); err != nil {
		return err
	}

	if res.err == nil {
		l.sourceNoncesRequired = false
		l.logger.Debug("received nonces from source",
			"at", res.value.at,
			"nonces", res.value.nonces.NewNonces)
		l.strategy.SourceNoncesUpdated(res.value.at, res.value.nonces)
		l.updateNonceMetrics()
	}

	// ask for more headers if we have nonces to deliver and required headers
	// are missing
	l.updateRequiredSourceHeader()
	return nil
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) targetBestNoncesReceived(
	res result[headerNonces[TH, TargetClientNonces[TD]]],
) error {
	if err := l.process(&l.tgt, res.err, "error retrieving best nonces from target"); err != nil {
		return err
	}
	if res.err != nil {
		return nil
	}

	l.targetBestNoncesRequired = false
	l.logger.Debug("received best nonces from target",
		"at", res.value.at,
		"latest_nonce", res.value.nonces.LatestNonce)
	l.strategy.BestTargetNoncesUpdated(res.value.nonces, &l.state)
	l.updateNonceMetrics()
	l.updateRequiredSourceHeader()
	return nil
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) targetFinalizedNoncesReceived(
	res result[headerNonces[TH, TargetClientNonces[TD]]],
) error {
	if err := l.process(&l.tgt, res.err, "error retrieving finalized nonces from target"); err != nil {
		return err
	}
	if res.err != nil {
		return nil
	}

	l.targetFinalizedNoncesRequired = false
	l.logger.Debug("received finalized nonces from target",
		"at", res.value.at,
		"latest_nonce", res.value.nonces.LatestNonce)
	l.strategy.FinalizedTargetNoncesUpdated(res.value.nonces, &l.state)
	l.updateNonceMetrics()
	return nil
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) requiredHeaderReceived(res result[BatchTransaction[SH]]) error {
	if err := l.process(&l.tgt, res.err, "error asking for source headers at target"); err != nil {
		return err
	}
	if res.err != nil {
		return nil
	}

	if res.value == nil {
		// wait for the header to show up at the target
		l.logger.Debug("target has been asked for more source headers", "batch_tx", false)
		l.sourceRequiredHeaderAsked = true
		return nil
	}

	l.logger.Debug("target has been asked for more source headers",
		"batch_tx", true,
		"required_header", res.value.RequiredHeaderID())
	l.sourceRequiredHeader = nil
	l.sourceRequiredHeaderAsked = false
	l.targetBatch = res.value
	return nil
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) proofGenerated(res result[generatedProof[SH, P]]) error {
	if err := l.process(&l.src, res.err, "error generating proof at source"); err != nil {
		return err
	}
	if res.err != nil {
		return nil
	}

	proof := res.value
	if submitted := l.state.NoncesSubmitted; submitted != nil && submitted.Overlaps(proof.nonces) {
		l.logger.Error("dropping proof of nonces that are already submitted",
			"nonces", proof.nonces,
			"submitted", *submitted)
		return nil
	}

	l.logger.Debug("received proof from source", "nonces", proof.nonces, "at", proof.at)
	l.metrics.ProofsGenerated.Add(1)
	l.state.NoncesToSubmit = &NoncesToSubmit[SH, P]{
		At:     proof.at,
		Nonces: proof.nonces,
		Proof:  proof.proof,
	}
	l.state.NoncesToSubmitBatch = proof.batch
	return nil
}

// proofSubmitted never fails the race: a rejected proof is retried once the
// best target nonces are read again.
func (l *raceLoop[SH, TH, P, R, PP, TD]) proofSubmitted(ctx context.Context, res result[NoncesSubmitArtifacts[TH]]) {
	// we don't need to retry submitting the same nonces again until we read
	// nonces from the target client
	defer l.state.ResetNoncesToSubmit()

	switch {
	case res.err == nil:
		l.process(&l.tgt, nil, "") //nolint:errcheck
		nonces := res.value.Nonces
		l.logger.Debug("submitted proof to target", "nonces", nonces)
		l.metrics.ProofsSubmitted.Add(1)
		l.metrics.NoncesSubmitted.Add(float64(nonces.Len()))
		l.state.NoncesSubmitted = &nonces
		l.targetTxTracker = l.trackTransaction(ctx, res.value.TxTracker)

	case IsConnectionError(res.err):
		l.process(&l.tgt, res.err, "error submitting proof to target") //nolint:errcheck

	default:
		d := nextDelay(l.tgt.backoff)
		l.logger.Error("proof has been rejected by target",
			"err", res.err,
			"retry_in", d)
		l.metrics.ClientErrors.With("side", l.tgt.failure.String(), "kind", "rejected").Add(1)
		l.tgt.goOffline(d)
		// the best target nonces may be wrong; read them before selecting
		// nonces again
		l.strategy.ResetBestTargetNonces()
	}
}

// trackTransaction waits for the transaction on its own goroutine.
func (l *raceLoop[SH, TH, P, R, PP, TD]) trackTransaction(
	ctx context.Context,
	tracker TransactionTracker[TH],
) <-chan TrackedTransactionStatus[TH] {
	ch := make(chan TrackedTransactionStatus[TH], 1)
	go func() {
		ch <- tracker.Wait(ctx)
	}()
	return ch
}

// transactionTracked resolves a lost transaction right away. A finalized one
// is resolved after the target nonces are read at the finalization header,
// which is a target call like any other and waits for the target to be idle.
func (l *raceLoop[SH, TH, P, R, PP, TD]) transactionTracked(status TrackedTransactionStatus[TH]) {
	if !status.Finalized || l.state.NoncesSubmitted == nil {
		l.transactionResolved(txOutcome[TH]{status: status})
		return
	}
	l.pendingTxCheck = &txCheck[TH]{at: status.At}
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) transactionChecked(res result[headerNonces[TH, TargetClientNonces[TD]]]) {
	check := l.pendingTxCheck
	l.pendingTxCheck = nil
	if check == nil {
		return
	}

	if res.err == nil || IsConnectionError(res.err) {
		l.process(&l.tgt, res.err, "error reading nonces of finalized transaction") //nolint:errcheck
	} else {
		l.tgt.online = true
	}

	l.transactionResolved(txOutcome[TH]{
		status:      Finalized(check.at),
		latestNonce: res.value.nonces.LatestNonce,
		err:         res.err,
	})
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) transactionResolved(out txOutcome[TH]) {
	submitted := l.state.NoncesSubmitted

	switch {
	case !out.status.Finalized:
		l.logger.Info("race transaction has been lost", "state", l.state)
		l.metrics.TransactionsFailed.With("outcome", "lost").Add(1)
		l.state.ResetNoncesSubmitted()

	case submitted == nil:
		// the submitted nonces have already been seen at the target

	case out.err != nil:
		l.logger.Error("race transaction failed",
			"err", fmt.Errorf("failed to read nonces from target: %w", out.err))
		l.metrics.TransactionsFailed.With("outcome", "unknown").Add(1)
		l.state.ResetNoncesSubmitted()

	case out.latestNonce < submitted.End():
		l.logger.Error("race transaction failed",
			"best_nonce_at_target", out.latestNonce,
			"submitted", *submitted,
			"at", out.status.At)
		l.metrics.TransactionsFailed.With("outcome", "ineffective").Add(1)
		l.state.ResetNoncesSubmitted()

	default:
		l.logger.Debug("race transaction has been finalized",
			"submitted", *submitted,
			"at", out.status.At)
	}
}

// process handles the outcome of a client call. On success the backoff of
// the side is reset. On a connection error the side goes offline until the
// retry timer fires. Any other error is returned wrapped into the side's
// types.FailedClient.
func (l *raceLoop[SH, TH, P, R, PP, TD]) process(s *side, err error, msg string) error {
	if err == nil {
		s.backoff.Reset()
		s.online = true
		return nil
	}

	if IsConnectionError(err) {
		d := nextDelay(s.backoff)
		l.logger.Error(msg, "err", err, "retry_in", d)
		l.metrics.ClientErrors.With("side", s.failure.String(), "kind", "connection").Add(1)
		s.goOffline(d)
		return nil
	}

	l.logger.Error(msg, "err", err)
	l.metrics.ClientErrors.With("side", s.failure.String(), "kind", "fatal").Add(1)
	s.online = false
	return fmt.Errorf("%w: %s: %v", s.failure, msg, err)
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) dispatchSource(ctx context.Context) {
	if !l.src.online {
		return
	}

	// the batch transaction is consumed here: if it can not be used with the
	// current state, it will never be usable later
	batch := l.targetBatch
	l.targetBatch = nil

	expected := l.state
	if batch != nil {
		// assume the required source header is already at the target
		expected.SetBestFinalizedSourceHeaderIDAtBestTarget(batch.RequiredHeaderID())
	}

	if sel, ok := SelectNoncesToDeliver(expected, l.strategy); ok {
		l.logger.Debug("asking source to prove nonces", "nonces", sel.Nonces, "at", sel.At)
		l.src.online = false
		l.sourceProof = spawn(ctx, func(ctx context.Context) (generatedProof[SH, P], error) {
			at, nonces, proof, err := l.source.GenerateProof(ctx, sel.At, sel.Nonces, sel.Params)
			return generatedProof[SH, P]{at: at, nonces: nonces, proof: proof, batch: batch}, err
		})
		return
	}

	bestAtSource, ok := l.strategy.BestAtSource()
	if !l.sourceNoncesRequired || !ok {
		return
	}

	at := l.state.BestFinalizedSourceHeaderIDAtSource
	if at == nil {
		l.logger.Error("source nonces are required before any source header is known")
		l.sourceNoncesRequired = false
		return
	}
	if bestAtTarget, ok := l.strategy.BestAtTarget(); ok && bestAtSource < bestAtTarget {
		l.logger.Error("best nonce at source is behind the best nonce at target",
			"best_at_source", bestAtSource,
			"best_at_target", bestAtTarget)
		bestAtSource = bestAtTarget
	}

	l.logger.Debug("asking source about nonces", "at", *at, "prev_latest_nonce", bestAtSource)
	l.src.online = false
	atHeader := *at
	l.sourceNonces = spawn(ctx, func(ctx context.Context) (headerNonces[SH, SourceClientNonces[R]], error) {
		h, nonces, err := l.source.Nonces(ctx, atHeader, bestAtSource)
		return headerNonces[SH, SourceClientNonces[R]]{at: h, nonces: nonces}, err
	})
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) dispatchTarget(ctx context.Context) {
	if !l.tgt.online {
		return
	}

	if check := l.pendingTxCheck; check != nil && !check.running && l.state.NoncesSubmitted == nil {
		// the submitted nonces have already been seen at the target
		l.pendingTxCheck = nil
	}

	switch {
	case l.pendingTxCheck != nil && !l.pendingTxCheck.running:
		at := l.pendingTxCheck.at
		l.pendingTxCheck.running = true
		l.logger.Debug("asking target about nonces at finalized transaction", "at", at)
		l.targetTxCheck = l.spawnTargetNonces(ctx, at, false)

	case l.state.NoncesToSubmit != nil:
		toSubmit, batch := *l.state.NoncesToSubmit, l.state.NoncesToSubmitBatch
		if batch != nil {
			l.logger.Debug("submitting proof to target",
				"nonces", toSubmit.Nonces,
				"batched_with_header", batch.RequiredHeaderID())
		} else {
			l.logger.Debug("submitting proof to target", "nonces", toSubmit.Nonces)
		}
		l.targetSubmit = spawn(ctx, func(ctx context.Context) (NoncesSubmitArtifacts[TH], error) {
			return l.target.SubmitProof(ctx, batch, toSubmit.At, toSubmit.Nonces, toSubmit.Proof)
		})

	case l.sourceRequiredHeader != nil && !l.sourceRequiredHeaderAsked:
		id := *l.sourceRequiredHeader
		l.logger.Debug("requiring source header at target", "header", id)
		l.targetRequireHeader = spawn(ctx, func(ctx context.Context) (BatchTransaction[SH], error) {
			return l.target.RequireSourceHeader(ctx, id)
		})

	case l.targetBestNoncesRequired && l.state.BestTargetHeaderID != nil:
		at := *l.state.BestTargetHeaderID
		l.logger.Debug("asking target about best nonces", "at", at)
		l.targetBestNonces = l.spawnTargetNonces(ctx, at, false)

	case l.targetFinalizedNoncesRequired && l.state.BestFinalizedTargetHeaderID != nil:
		at := *l.state.BestFinalizedTargetHeaderID
		l.logger.Debug("asking target about finalized nonces", "at", at)
		l.targetFinalizedNonces = l.spawnTargetNonces(ctx, at, true)

	default:
		return
	}

	l.tgt.online = false
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) spawnTargetNonces(
	ctx context.Context,
	at TH,
	finalized bool,
) <-chan result[headerNonces[TH, TargetClientNonces[TD]]] {
	return spawn(ctx, func(ctx context.Context) (headerNonces[TH, TargetClientNonces[TD]], error) {
		h, nonces, err := l.target.Nonces(ctx, at, finalized)
		return headerNonces[TH, TargetClientNonces[TD]]{at: h, nonces: nonces}, err
	})
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) updateNonceMetrics() {
	if n, ok := l.strategy.BestAtSource(); ok {
		l.metrics.BestNonceAtSource.Set(float64(n))
	}
	if n, ok := l.strategy.BestAtTarget(); ok {
		l.metrics.BestNonceAtTarget.Set(float64(n))
	}
}

func (l *raceLoop[SH, TH, P, R, PP, TD]) printProgress() {
	now := time.Now()
	if now.Sub(l.progressAt) <= l.opts.progressInterval {
		return
	}
	l.progressAt = now

	l.logger.Info("synced nonces",
		"best_at_target", optNonce(l.strategy.BestAtTarget()),
		"best_at_source", optNonce(l.strategy.BestAtSource()))
}

func optNonce(n types.Nonce, ok bool) string {
	if !ok {
		return "<nil>"
	}
	return fmt.Sprint(n)
}
