package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tendermint/lanerelay/config"
	"github.com/tendermint/lanerelay/libs/log"
	tmos "github.com/tendermint/lanerelay/libs/os"
)

// MakeInitFilesCommand returns the command that initializes a fresh relay
// home directory.
func MakeInitFilesCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initializes a relay home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFilesWithConfig(conf, logger)
		},
	}
	addLaneFlags(cmd, conf)
	return cmd
}

func initFilesWithConfig(conf *config.Config, logger log.Logger) error {
	configFile := filepath.Join(conf.RootDir, "config", "config.toml")
	if tmos.FileExists(configFile) {
		logger.Info("Found config file", "path", configFile)
		return nil
	}

	// write config file
	if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
		return err
	}
	logger.Info("Generated config", "path", configFile, "lane", conf.Lane.ID)
	return nil
}
