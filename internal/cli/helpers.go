package cli

import (
	"fmt"
	"time"

	"github.com/lazypower/memkeep/internal/config"
	"github.com/lazypower/memkeep/internal/engine"
	"github.com/lazypower/memkeep/internal/store"
)

// openEngine loads configuration, opens the store, and wires the
// engine. The returned closer releases the store handle.
func openEngine() (*engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	dir := cfg.StorageDir
	if dir == "" {
		dir, err = store.DefaultDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve store dir: %w", err)
		}
	}

	st, err := store.Open(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	eng := engine.New(st, policyFromConfig(cfg), time.Duration(cfg.SessionCacheSeconds)*time.Second)
	return eng, func() { st.Close() }, nil
}

func policyFromConfig(cfg config.Config) engine.Policy {
	return engine.Policy{
		MaxAgeHours:           cfg.Decay.MaxAgeHours,
		ImportanceThreshold:   cfg.Decay.ImportanceThreshold,
		MaxMemoriesPerUser:    cfg.Decay.MaxMemoriesPerUser,
		CompressionEnabled:    cfg.Decay.CompressionEnabled,
		AutoSummarizeSessions: cfg.Decay.AutoSummarizeSessions,
	}
}
