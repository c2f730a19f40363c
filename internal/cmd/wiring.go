package cmd

import (
	"fmt"

	"github.com/zb-pm/zb/internal/api"
	"github.com/zb-pm/zb/internal/db"
	"github.com/zb-pm/zb/internal/installer"
	"github.com/zb-pm/zb/internal/tap"
	"github.com/zb-pm/zb/internal/config"
)

// stack bundles the collaborators every formula-mutating command needs.
// Callers must Close it once done to release the sqlite connection.
type stack struct {
	db   *db.DB
	inst *installer.Installer
}

func (s *stack) Close() error {
	return s.db.Close()
}

// newAPIClient builds an API client backed by cfg's on-disk conditional
// cache (cache/http/), shared by every command that talks to the
// formula index so repeat invocations reuse ETag/Last-Modified state.
func newAPIClient(cfg *config.Config) *api.Client {
	return api.NewClient(api.WithCache(api.NewFileCache(cfg.HTTPCacheDir())))
}

// newStack opens the metadata database and wires an Installer against cfg.
func newStack(cfg *config.Config) (*stack, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}
	database, err := db.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	apiClient := newAPIClient(cfg)
	tapManager := tap.NewManager(cfg)
	inst := installer.New(cfg, apiClient, tapManager, database)
	return &stack{db: database, inst: inst}, nil
}
