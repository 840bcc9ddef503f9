package lane

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/libs/service"
	"github.com/tendermint/lanerelay/types"
)

// ClientsFactory connects to both ledgers of a lane. It is called before
// every run of the lane loop, so a failed client is never reused.
type ClientsFactory func(ctx context.Context) (SourceClient, TargetClient, error)

// Relay is a service that keeps relaying the messages of a lane. Whenever
// the lane loop fails, the clients are rebuilt and the loop is restarted
// from scratch after the reconnect delay.
type Relay struct {
	service.BaseService

	params  Params
	connect ClientsFactory
	options []LoopOption
	logger  log.Logger
	metrics *Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay returns a relay of the lane described by params.
func NewRelay(
	params Params,
	connect ClientsFactory,
	logger log.Logger,
	metrics *Metrics,
	options ...LoopOption,
) *Relay {
	if metrics == nil {
		metrics = NopMetrics()
	}
	r := &Relay{
		params:  params,
		connect: connect,
		options: append([]LoopOption{WithMetrics(metrics)}, options...),
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
	r.BaseService = *service.NewBaseService(logger, "LaneRelay", r)
	return r
}

// OnStart implements service.Service.
func (r *Relay) OnStart(ctx context.Context) error {
	if err := r.params.ValidateBasic(); err != nil {
		return err
	}

	ctx, r.cancel = context.WithCancel(ctx)
	go r.relayRoutine(ctx)
	return nil
}

// OnStop implements service.Service. It waits until the running lane loop
// has returned.
func (r *Relay) OnStop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Relay) relayRoutine(ctx context.Context) {
	defer close(r.done)

	for {
		runID := uuid.New()
		logger := r.logger.With("run", runID.String())

		err := r.runOnce(ctx, logger)
		if ctx.Err() != nil {
			return
		}

		var fc types.FailedClient
		if errors.As(err, &fc) {
			logger.Error("lane loop has failed", "failed", fc.String(), "err", err)
		} else {
			logger.Error("lane loop has failed", "err", err)
		}
		r.metrics.Restarts.Add(1)

		timer := time.NewTimer(r.params.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Relay) runOnce(ctx context.Context, logger log.Logger) error {
	source, target, err := r.connect(ctx)
	if err != nil {
		return err
	}

	logger.Info("starting lane loop")
	err = NewLoop(r.params, source, target, logger, r.options...).Run(ctx)
	if err == nil && ctx.Err() == nil {
		return errors.New("lane loop has stopped")
	}
	return err
}
