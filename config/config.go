package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tendermint/lanerelay/internal/lane"
	"github.com/tendermint/lanerelay/internal/ledger"
	"github.com/tendermint/lanerelay/internal/race"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultRelayDir  = ".lanerelay"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName = "config.toml"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
)

// Config defines the top level configuration of a lane relay.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Lane            *LaneConfig            `mapstructure:"lane"`
	Delivery        *DeliveryConfig        `mapstructure:"delivery"`
	Retry           *RetryConfig           `mapstructure:"retry"`
	Devnet          *DevnetConfig          `mapstructure:"devnet"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration of a lane relay.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Lane:            DefaultLaneConfig(),
		Delivery:        DefaultDeliveryConfig(),
		Retry:           DefaultRetryConfig(),
		Devnet:          DefaultDevnetConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Lane:            TestLaneConfig(),
		Delivery:        TestDeliveryConfig(),
		Retry:           TestRetryConfig(),
		Devnet:          TestDevnetConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Lane.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [lane] section: %w", err)
	}
	if err := cfg.Delivery.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [delivery] section: %w", err)
	}
	if err := cfg.Retry.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [retry] section: %w", err)
	}
	if err := cfg.Devnet.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [devnet] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

// LaneParams returns the params of the lane loop.
func (cfg *Config) LaneParams() (lane.Params, error) {
	id, err := lane.ParseID(cfg.Lane.ID)
	if err != nil {
		return lane.Params{}, err
	}
	return lane.Params{
		Lane:           id,
		SourceTick:     cfg.Lane.SourceTick,
		TargetTick:     cfg.Lane.TargetTick,
		ReconnectDelay: cfg.Lane.ReconnectDelay,
		Delivery:       cfg.Delivery.Params(),
	}, nil
}

// ChainParams returns the params of both simulated ledgers.
func (cfg *Config) ChainParams() (ledger.Params, error) {
	id, err := lane.ParseID(cfg.Lane.ID)
	if err != nil {
		return ledger.Params{}, err
	}
	return ledger.Params{
		Lane:                        id,
		FinalityDepth:               cfg.Devnet.FinalityDepth,
		MaxUnrewardedRelayerEntries: cfg.Delivery.MaxUnrewardedRelayerEntriesAtTarget,
		MaxUnconfirmedMessages:      cfg.Delivery.MaxUnconfirmedNoncesAtTarget,
		ProofCacheSize:              cfg.Devnet.ProofCacheSize,
	}, nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration of a lane relay.
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Database backend of the simulated ledgers: goleveldb | memdb
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`
}

// DefaultBaseConfig returns a default base configuration of a lane relay.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a lane relay.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case "debug", "info", "error":
	default:
		return errors.New("unknown log level (must be 'debug', 'info' or 'error')")
	}
	return nil
}

// DefaultLogLevel is the log level used unless configured otherwise.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// LaneConfig

// LaneConfig defines the lane the relay serves and how often both ledgers
// are polled.
type LaneConfig struct {
	// Hex encoded id of the lane.
	ID string `mapstructure:"id"`

	// Interval at which the source state is read.
	SourceTick time.Duration `mapstructure:"source-tick"`

	// Interval at which the target state is read.
	TargetTick time.Duration `mapstructure:"target-tick"`

	// Delay between a failure of the lane loop and its restart.
	ReconnectDelay time.Duration `mapstructure:"reconnect-delay"`

	// Name of the relayer that gets rewarded for the delivered messages.
	Relayer string `mapstructure:"relayer"`

	// If true, required headers are submitted together with the next proof
	// instead of in a transaction of their own.
	HeaderBatches bool `mapstructure:"header-batches"`
}

// DefaultLaneConfig returns a default configuration of the lane.
func DefaultLaneConfig() *LaneConfig {
	return &LaneConfig{
		ID:             "00000001",
		SourceTick:     time.Second,
		TargetTick:     time.Second,
		ReconnectDelay: 10 * time.Second,
		Relayer:        "relayer",
		HeaderBatches:  false,
	}
}

// TestLaneConfig returns a configuration of the lane for testing.
func TestLaneConfig() *LaneConfig {
	cfg := DefaultLaneConfig()
	cfg.SourceTick = 10 * time.Millisecond
	cfg.TargetTick = 10 * time.Millisecond
	cfg.ReconnectDelay = 10 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *LaneConfig) ValidateBasic() error {
	if _, err := lane.ParseID(cfg.ID); err != nil {
		return err
	}
	if cfg.SourceTick <= 0 {
		return errors.New("source-tick must be positive")
	}
	if cfg.TargetTick <= 0 {
		return errors.New("target-tick must be positive")
	}
	if cfg.ReconnectDelay < 0 {
		return errors.New("reconnect-delay can't be negative")
	}
	if cfg.Relayer == "" {
		return errors.New("relayer can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// DeliveryConfig

// DeliveryConfig limits the messages delivered by a single transaction.
// The limits must match the limits of the target ledger.
type DeliveryConfig struct {
	MaxUnrewardedRelayerEntriesAtTarget uint64 `mapstructure:"max-unrewarded-relayer-entries-at-target"`
	MaxUnconfirmedNoncesAtTarget        uint64 `mapstructure:"max-unconfirmed-nonces-at-target"`
	MaxMessagesInSingleBatch            uint64 `mapstructure:"max-messages-in-single-batch"`
	MaxMessagesWeightInSingleBatch      uint64 `mapstructure:"max-messages-weight-in-single-batch"`
	MaxMessagesSizeInSingleBatch        uint32 `mapstructure:"max-messages-size-in-single-batch"`
}

// DefaultDeliveryConfig returns the default delivery limits.
func DefaultDeliveryConfig() *DeliveryConfig {
	return &DeliveryConfig{
		MaxUnrewardedRelayerEntriesAtTarget: 16,
		MaxUnconfirmedNoncesAtTarget:        128,
		MaxMessagesInSingleBatch:            32,
		MaxMessagesWeightInSingleBatch:      1_000_000,
		MaxMessagesSizeInSingleBatch:        1 << 20,
	}
}

// TestDeliveryConfig returns delivery limits for testing.
func TestDeliveryConfig() *DeliveryConfig {
	return &DeliveryConfig{
		MaxUnrewardedRelayerEntriesAtTarget: 4,
		MaxUnconfirmedNoncesAtTarget:        8,
		MaxMessagesInSingleBatch:            4,
		MaxMessagesWeightInSingleBatch:      1000,
		MaxMessagesSizeInSingleBatch:        1024,
	}
}

// Params returns the params of the delivery race.
func (cfg *DeliveryConfig) Params() lane.DeliveryParams {
	return lane.DeliveryParams{
		MaxUnrewardedRelayerEntriesAtTarget: cfg.MaxUnrewardedRelayerEntriesAtTarget,
		MaxUnconfirmedNoncesAtTarget:        cfg.MaxUnconfirmedNoncesAtTarget,
		MaxMessagesInSingleBatch:            cfg.MaxMessagesInSingleBatch,
		MaxMessagesWeightInSingleBatch:      cfg.MaxMessagesWeightInSingleBatch,
		MaxMessagesSizeInSingleBatch:        cfg.MaxMessagesSizeInSingleBatch,
	}
}

// ValidateBasic performs basic validation.
func (cfg *DeliveryConfig) ValidateBasic() error {
	return cfg.Params().ValidateBasic()
}

//-----------------------------------------------------------------------------
// RetryConfig

// RetryConfig defines the exponential backoff used after connection errors.
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial-interval"`
	MaxInterval     time.Duration `mapstructure:"max-interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// DefaultRetryConfig returns the default backoff.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialInterval: race.DefaultRetryInitialInterval,
		MaxInterval:     race.DefaultRetryMaxInterval,
		Multiplier:      backoff.DefaultMultiplier,
	}
}

// TestRetryConfig returns a fast backoff for testing.
func TestRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      backoff.DefaultMultiplier,
	}
}

// ValidateBasic performs basic validation.
func (cfg *RetryConfig) ValidateBasic() error {
	if cfg.InitialInterval <= 0 {
		return errors.New("initial-interval must be positive")
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return errors.New("max-interval can't be less than initial-interval")
	}
	if cfg.Multiplier < 1 {
		return errors.New("multiplier can't be less than 1")
	}
	return nil
}

// Backoff returns the factory of the backoff policies. The policies never
// give up.
func (cfg *RetryConfig) Backoff() race.BackoffFactory {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.InitialInterval
		b.MaxInterval = cfg.MaxInterval
		b.Multiplier = cfg.Multiplier
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}

//-----------------------------------------------------------------------------
// DevnetConfig

// DevnetConfig defines the pair of simulated ledgers `relay start` runs the
// lane between.
type DevnetConfig struct {
	// Interval at which both ledgers produce headers.
	BlockTime time.Duration `mapstructure:"block-time"`

	// Number of headers after which a header is finalized.
	FinalityDepth uint64 `mapstructure:"finality-depth"`

	// Interval at which the source sends a message. Zero disables the
	// message generator.
	MessageInterval time.Duration `mapstructure:"message-interval"`

	// Payload size, dispatch weight and reward of generated messages.
	MessageSize   int    `mapstructure:"message-size"`
	MessageWeight uint64 `mapstructure:"message-weight"`
	MessageReward uint64 `mapstructure:"message-reward"`

	// Share of client calls that fail with a connection error.
	FailureRate float64 `mapstructure:"failure-rate"`

	// Number of headers whose lane trees are cached by each ledger.
	ProofCacheSize int `mapstructure:"proof-cache-size"`
}

// DefaultDevnetConfig returns the default devnet.
func DefaultDevnetConfig() *DevnetConfig {
	return &DevnetConfig{
		BlockTime:       time.Second,
		FinalityDepth:   2,
		MessageInterval: 3 * time.Second,
		MessageSize:     64,
		MessageWeight:   1000,
		MessageReward:   10,
		FailureRate:     0,
		ProofCacheSize:  64,
	}
}

// TestDevnetConfig returns a fast devnet for testing.
func TestDevnetConfig() *DevnetConfig {
	cfg := DefaultDevnetConfig()
	cfg.BlockTime = 10 * time.Millisecond
	cfg.MessageInterval = 10 * time.Millisecond
	cfg.MessageWeight = 10
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *DevnetConfig) ValidateBasic() error {
	switch {
	case cfg.BlockTime <= 0:
		return errors.New("block-time must be positive")
	case cfg.MessageInterval < 0:
		return errors.New("message-interval can't be negative")
	case cfg.MessageSize < 0:
		return errors.New("message-size can't be negative")
	case cfg.FailureRate < 0 || cfg.FailureRate >= 1:
		return errors.New("failure-rate must be in [0, 1)")
	case cfg.ProofCacheSize <= 0:
		return errors.New("proof-cache-size must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "lanerelay",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus-listen-addr can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
