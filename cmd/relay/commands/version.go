package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendermint/lanerelay/version"
)

const versionCmdName = "version"

// MakeVersionCommand returns the command that prints the version.
func MakeVersionCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   versionCmdName,
		Short: "Show version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return nil
			}
			values, err := json.MarshalIndent(struct {
				Relay          string `json:"relay"`
				GitCommit      string `json:"git_commit"`
				LaneProtocol   uint64 `json:"lane_protocol"`
				LedgerProtocol uint64 `json:"ledger_protocol"`
			}{
				Relay:          version.RelaySemVer,
				GitCommit:      version.GitCommit,
				LaneProtocol:   version.LaneProtocol.Uint64(),
				LedgerProtocol: version.LedgerProtocol.Uint64(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(values))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
	return cmd
}
