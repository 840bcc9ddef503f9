package config

import (
	"context"

	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/lanerelay/libs/log"
	"github.com/tendermint/lanerelay/libs/service"
)

// ServiceProvider takes a config and a logger and returns the service run by
// the start command.
type ServiceProvider func(context.Context, *Config, log.Logger) (service.Service, error)

// LedgerDBProvider opens the database of the named simulated ledger.
type LedgerDBProvider func(chain string, cfg BaseConfig) (dbm.DB, error)

// DefaultLedgerDBProvider opens "<chain>_ledger" with the DBBackend and in
// the DBDir of the config.
func DefaultLedgerDBProvider(chain string, cfg BaseConfig) (dbm.DB, error) {
	return dbm.NewDB(chain+"_ledger", dbm.BackendType(cfg.DBBackend), cfg.DBDir())
}
