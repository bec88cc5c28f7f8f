package app

import (
	"context"
	"errors"
	"fmt"

	"weekendwill/internal/config"
	"weekendwill/internal/repo"
)

// ResolveConfig loads the stored compliance config, seeding the default when
// none exists yet. An explicit config file override wins over the DB copy.
func ResolveConfig(ctx context.Context, r repo.Repo, overridePath string) (*config.Config, error) {
	if overridePath != "" {
		cfg, err := config.FromFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", overridePath, err)
		}
		if err := r.UpsertComplianceConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("store config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := r.GetComplianceConfig(ctx)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		cfg = config.Default()
		if err := r.UpsertComplianceConfig(ctx, cfg); err != nil {
			return nil, fmt.Errorf("seed config: %w", err)
		}
	}
	return cfg, nil
}
