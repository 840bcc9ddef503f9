package lane

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/creachadair/taskgroup"

	"github.com/tendermint/lanerelay/internal/race"
	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/types"
)

// Loop relays the messages of a single lane. It runs the delivery race, the
// receiving race and the watchers of both ledger states. A Loop holds no
// race state between runs.
type Loop struct {
	params Params
	source SourceClient
	target TargetClient

	logger  log.Logger
	metrics *Metrics
	backoff race.BackoffFactory
}

// LoopOption sets an optional parameter on the Loop.
type LoopOption func(*Loop)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) LoopOption {
	return func(l *Loop) { l.metrics = metrics }
}

// WithBackoff sets the factory of the retry policies used after connection
// errors, both by the state watchers and by the races.
func WithBackoff(f race.BackoffFactory) LoopOption {
	return func(l *Loop) { l.backoff = f }
}

// NewLoop returns a lane loop between the given clients.
func NewLoop(
	params Params,
	source SourceClient,
	target TargetClient,
	logger log.Logger,
	options ...LoopOption,
) *Loop {
	l := &Loop{
		params:  params,
		source:  source,
		target:  target,
		logger:  logger.With("lane", params.Lane),
		metrics: NopMetrics(),
		backoff: race.DefaultBackoff,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Run runs the loop until ctx is canceled, in which case it returns nil, or
// until a client fails. In the latter case the error wraps the
// types.FailedClient. If the tasks of the loop report different failures
// before they stop, the error wraps types.FailedBoth.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		deliverySource  = make(chan SourceClientState)
		deliveryTarget  = make(chan TargetClientState)
		receivingSource = make(chan TargetClientState)
		receivingTarget = make(chan SourceClientState)
	)

	var errs []error
	g := taskgroup.New(taskgroup.Listen(func(err error) {
		errs = append(errs, err)
		cancel()
	}))
	g.Go(func() error {
		return l.watchState(ctx, "Source", types.FailedSource, l.params.SourceTick,
			l.source.State, l.metrics.updateSourceState, deliverySource, receivingTarget)
	})
	g.Go(func() error {
		return l.watchState(ctx, "Target", types.FailedTarget, l.params.TargetTick,
			l.target.State, l.metrics.updateTargetState, deliveryTarget, receivingSource)
	})
	g.Go(func() error {
		return l.runDeliveryRace(ctx, deliverySource, deliveryTarget)
	})
	g.Go(func() error {
		return l.runReceivingRace(ctx, receivingSource, receivingTarget)
	})

	g.Wait() //nolint:errcheck
	return mergeFailures(errs)
}

// mergeFailures returns the first error, wrapping types.FailedBoth instead
// of its own failure when the errors blame different clients.
func mergeFailures(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	var merged types.FailedClient
	for _, err := range errs {
		var fc types.FailedClient
		if errors.As(err, &fc) {
			merged = merged.Merge(fc)
		}
	}
	if merged == types.FailedBoth && len(errs) > 1 {
		return fmt.Errorf("%w: %v", types.FailedBoth, errs[0])
	}
	return errs[0]
}

// watchState reads the ledger state every tick and sends it to the races.
// Connection errors are retried with a backoff. Any other error stops the
// watcher with the given failure.
func (l *Loop) watchState(
	ctx context.Context,
	name string,
	failure types.FailedClient,
	tick time.Duration,
	fetch func(context.Context) (types.ClientState[HeaderID, HeaderID], error),
	updateMetrics func(types.ClientState[HeaderID, HeaderID]),
	outs ...chan<- types.ClientState[HeaderID, HeaderID],
) error {
	logger := l.logger.With("client", name)
	retry := l.backoff()

	for {
		st, err := fetch(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := tick
		switch {
		case err == nil:
			retry.Reset()
			logger.Debug("received state", "state", st)
			updateMetrics(st)
			for _, out := range outs {
				select {
				case out <- st:
				case <-ctx.Done():
					return nil
				}
			}

		case race.IsConnectionError(err):
			if delay = retry.NextBackOff(); delay == backoff.Stop {
				delay = race.DefaultRetryMaxInterval
			}
			logger.Error("failed to read state; retrying", "err", err, "retry_in", delay)

		default:
			logger.Error("failed to read state", "err", err)
			return fmt.Errorf("%w: reading state: %v", failure, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) raceOptions(name, sourceName, targetName string) []race.Option {
	return []race.Option{
		race.Logger(l.logger.With("race", name)),
		race.WithMetrics(l.metrics.Race.ForRace(name)),
		race.RetryBackoff(l.backoff),
		race.Names(sourceName, targetName),
	}
}
