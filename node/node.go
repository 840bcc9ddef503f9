// Package node runs a lane relay between a pair of simulated ledgers.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/lanerelay/config"
	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/internal/ledger"
	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/libs/service"
)

// Node is the devnet relay: the source and target ledgers, a message
// generator at the source and the relay of the lane between them.
type Node struct {
	service.BaseService

	config *config.Config
	logger log.Logger

	sourceDB, targetDB dbm.DB
	source, target     *ledger.Chain
	relay              *lane.Relay
	faults             *ledger.Faults

	prometheusSrv *http.Server

	cancel context.CancelFunc
	tasks  *taskgroup.Group
}

var (
	_ service.Service        = (*Node)(nil)
	_ config.ServiceProvider = New
)

// New builds a node from the config, opening both ledgers with the default
// db provider.
func New(ctx context.Context, conf *config.Config, logger log.Logger) (service.Service, error) {
	return NewWithProvider(conf, config.DefaultLedgerDBProvider, logger)
}

// NewWithProvider builds a node from the config.
func NewWithProvider(conf *config.Config, dbProvider config.LedgerDBProvider, logger log.Logger) (*Node, error) {
	laneParams, err := conf.LaneParams()
	if err != nil {
		return nil, err
	}
	chainParams, err := conf.ChainParams()
	if err != nil {
		return nil, err
	}

	n := &Node{
		config: conf,
		logger: logger,
		faults: ledger.NewFaults(conf.Devnet.FailureRate, time.Now().UnixNano()),
	}
	if n.sourceDB, n.source, err = openChain("source", conf, dbProvider, chainParams, logger); err != nil {
		return nil, err
	}
	if n.targetDB, n.target, err = openChain("target", conf, dbProvider, chainParams, logger); err != nil {
		_ = n.sourceDB.Close()
		return nil, err
	}

	n.relay = lane.NewRelay(
		laneParams,
		n.connect,
		logger.With("module", "relay", "lane", laneParams.Lane.String()),
		metricsProvider(conf)(laneParams.Lane),
		lane.WithBackoff(conf.Retry.Backoff()),
	)
	n.BaseService = *service.NewBaseService(logger, "Node", n)
	return n, nil
}

func openChain(
	name string,
	conf *config.Config,
	dbProvider config.LedgerDBProvider,
	params ledger.Params,
	logger log.Logger,
) (dbm.DB, *ledger.Chain, error) {
	db, err := dbProvider(name, conf.BaseConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s db: %w", name, err)
	}
	chain, err := ledger.NewChain(name, db, params, logger.With("module", "ledger", "chain", name))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, chain, nil
}

// connect builds fresh clients of both ledgers for every run of the lane
// loop.
func (n *Node) connect(ctx context.Context) (lane.SourceClient, lane.TargetClient, error) {
	options := []ledger.ClientOption{ledger.WithRelayer(n.config.Lane.Relayer)}
	if n.config.Lane.HeaderBatches {
		options = append(options, ledger.WithHeaderBatches())
	}
	if n.config.Devnet.FailureRate > 0 {
		options = append(options, ledger.WithFaults(n.faults))
	}
	return ledger.NewSourceClient(n.source, n.target, options...),
		ledger.NewTargetClient(n.target, n.source, options...),
		nil
}

// OnStart implements service.Service.
func (n *Node) OnStart(ctx context.Context) error {
	ctx, n.cancel = context.WithCancel(ctx)

	if n.config.Instrumentation.Prometheus {
		n.prometheusSrv = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
	}

	devnet := n.config.Devnet
	n.tasks = taskgroup.New(nil)
	n.tasks.Go(func() error { return n.source.Run(ctx, devnet.BlockTime) })
	n.tasks.Go(func() error { return n.target.Run(ctx, devnet.BlockTime) })
	if devnet.MessageInterval > 0 {
		n.tasks.Go(func() error { return n.generateMessages(ctx) })
	}

	if err := n.relay.Start(ctx); err != nil {
		n.cancel()
		_ = n.tasks.Wait()
		return err
	}
	return nil
}

// OnStop implements service.Service.
func (n *Node) OnStop() {
	n.logger.Info("stopping node")

	if n.relay.IsRunning() {
		if err := n.relay.Stop(); err != nil {
			n.logger.Error("error stopping relay", "err", err)
		}
	}
	n.relay.Wait()
	n.cancel()
	if err := n.tasks.Wait(); err != nil {
		n.logger.Error("ledger has failed", "err", err)
	}

	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.prometheusSrv.Shutdown(ctx); err != nil {
			// Error from closing listeners, or context timeout:
			n.logger.Error("Prometheus HTTP server Shutdown", "err", err)
		}
	}

	for _, db := range []dbm.DB{n.sourceDB, n.targetDB} {
		if err := db.Close(); err != nil {
			n.logger.Error("error closing db", "err", err)
		}
	}
}

// generateMessages sends a message at the source every message interval.
func (n *Node) generateMessages(ctx context.Context) error {
	devnet := n.config.Devnet
	ticker := time.NewTicker(devnet.MessageInterval)
	defer ticker.Stop()

	for i := 1; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		payload := make([]byte, devnet.MessageSize)
		copy(payload, fmt.Sprintf("message %d", i))
		if _, err := n.source.SendMessage(payload, devnet.MessageWeight, devnet.MessageReward); err != nil {
			n.logger.Error("failed to send message", "err", err)
			continue
		}
		n.logger.Debug("sent message", "message", i)
	}
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on addr.
func (n *Node) startPrometheusServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			n.logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// Source returns the source ledger.
func (n *Node) Source() *ledger.Chain { return n.source }

// Target returns the target ledger.
func (n *Node) Target() *ledger.Chain { return n.target }

// Faults returns the faults injected into the ledger clients when the
// failure rate is positive.
func (n *Node) Faults() *ledger.Faults { return n.faults }

// metricsProvider returns the lane metrics, registered with Prometheus if
// instrumentation is enabled.
func metricsProvider(conf *config.Config) func(lane.ID) *lane.Metrics {
	return func(id lane.ID) *lane.Metrics {
		if conf.Instrumentation.Prometheus {
			return lane.PrometheusMetrics(conf.Instrumentation.Namespace, "lane", id.String())
		}
		return lane.NopMetrics()
	}
}
