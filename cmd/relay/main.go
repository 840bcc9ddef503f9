package main

import (
	"context"
	"os"

	"github.com/tendermint/lanerelay/cmd/relay/commands"
	"github.com/tendermint/lanerelay/config"
	"github.com/tendermint/lanerelay/libs/cli"
	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/node"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
	if err != nil {
		panic(err)
	}

	rootCmd := commands.RootCommand(conf, logger)
	rootCmd.AddCommand(
		commands.MakeInitFilesCommand(conf, logger),
		commands.MakeVersionCommand(),
		// Create & start a relay of the devnet.
		commands.NewRunNodeCmd(node.New, conf, logger),
	)

	if err := cli.RunWithTrace(ctx, rootCmd); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}
