package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/lanerelay/config"
	"github.com/tendermint/lanerelay/libs/log"
	tmos "github.com/tendermint/lanerelay/libs/os"
)

// addLaneFlags exposes the options of the relayed lane on the command-line.
func addLaneFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("lane.id", conf.Lane.ID, "hex encoded id of the relayed lane")
	cmd.Flags().String("lane.relayer", conf.Lane.Relayer, "name of the rewarded relayer")
	cmd.Flags().Bool(
		"lane.header-batches",
		conf.Lane.HeaderBatches,
		"submit required headers together with the next proof")
}

// AddNodeFlags exposes some common configuration options on the command-line
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	addLaneFlags(cmd, conf)

	// devnet flags
	cmd.Flags().Duration("devnet.block-time", conf.Devnet.BlockTime, "interval at which both ledgers produce headers")
	cmd.Flags().Duration(
		"devnet.message-interval",
		conf.Devnet.MessageInterval,
		"interval at which the source sends a message (0 disables the generator)")
	cmd.Flags().Float64(
		"devnet.failure-rate",
		conf.Devnet.FailureRate,
		"share of client calls that fail with a connection error")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")
	cmd.Flags().String(
		"instrumentation.prometheus-listen-addr",
		conf.Instrumentation.PrometheusListenAddr,
		"Prometheus listen address")

	addDBFlags(cmd, conf)
}

func addDBFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String(
		"db-backend",
		conf.DBBackend,
		"database backend: goleveldb | memdb")
	cmd.Flags().String(
		"db-dir",
		conf.DBPath,
		"database directory")
}

// NewRunNodeCmd returns the command that allows the CLI to start a relay.
func NewRunNodeCmd(nodeProvider config.ServiceProvider, conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the devnet relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			n, err := nodeProvider(ctx, conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("started node", "node", n.String(), "lane", conf.Lane.ID)

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			// Run until the node is stopped.
			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
