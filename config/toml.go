package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/tendermint/lanerelay/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/relay/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return tmos.WriteFileAtomic(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myawesomeapp/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.lanerelay" by default, but could be changed via $RELAY_HOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Database backend of the simulated ledgers: goleveldb | memdb
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging: debug | info | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###               Lane Configuration Options        ###
#######################################################
[lane]

# Hex encoded id of the lane
id = "{{ .Lane.ID }}"

# Intervals at which the source and target states are read
source-tick = "{{ .Lane.SourceTick }}"
target-tick = "{{ .Lane.TargetTick }}"

# Delay between a failure of the lane loop and its restart
reconnect-delay = "{{ .Lane.ReconnectDelay }}"

# Name of the relayer that gets rewarded for the delivered messages
relayer = "{{ js .Lane.Relayer }}"

# If true, required headers are submitted together with the next proof
# instead of in a transaction of their own
header-batches = {{ .Lane.HeaderBatches }}

#######################################################
###          Delivery Configuration Options         ###
#######################################################
[delivery]

# Limits of the target ledger. The relay stops delivering messages once
# either of them is reached, until the rewards are confirmed at the source.
max-unrewarded-relayer-entries-at-target = {{ .Delivery.MaxUnrewardedRelayerEntriesAtTarget }}
max-unconfirmed-nonces-at-target = {{ .Delivery.MaxUnconfirmedNoncesAtTarget }}

# Limits of a single delivery transaction
max-messages-in-single-batch = {{ .Delivery.MaxMessagesInSingleBatch }}
max-messages-weight-in-single-batch = {{ .Delivery.MaxMessagesWeightInSingleBatch }}
max-messages-size-in-single-batch = {{ .Delivery.MaxMessagesSizeInSingleBatch }}

#######################################################
###            Retry Configuration Options          ###
#######################################################
[retry]

# Exponential backoff after connection errors. Retries never give up.
initial-interval = "{{ .Retry.InitialInterval }}"
max-interval = "{{ .Retry.MaxInterval }}"
multiplier = {{ .Retry.Multiplier }}

#######################################################
###           Devnet Configuration Options          ###
#######################################################
[devnet]

# Interval at which both ledgers produce headers
block-time = "{{ .Devnet.BlockTime }}"

# Number of headers after which a header is finalized
finality-depth = {{ .Devnet.FinalityDepth }}

# Interval at which the source sends a message. "0s" disables the generator.
message-interval = "{{ .Devnet.MessageInterval }}"

# Payload size, dispatch weight and reward of the generated messages
message-size = {{ .Devnet.MessageSize }}
message-weight = {{ .Devnet.MessageWeight }}
message-reward = {{ .Devnet.MessageReward }}

# Share of client calls that fail with a connection error, in [0, 1)
failure-rate = {{ .Devnet.FailureRate }}

# Number of headers whose lane trees are cached by each ledger
proof-cache-size = {{ .Devnet.ProofCacheSize }}

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a unique test directory with the default config
// file in it.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under os.TempDir()
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	// Write default config file if missing.
	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	return config, nil
}
