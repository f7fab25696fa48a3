package seller

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Sellers []Seller `yaml:"sellers"`
}

// SeedFromFile loads sellers from a YAML file and upserts them into the
// store. Used by local development and first deployments; existing rows are
// overwritten so the file stays the source of truth for seeded sellers.
func SeedFromFile(ctx context.Context, store Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range f.Sellers {
		sl := f.Sellers[i]
		if sl.ID == "" {
			return 0, fmt.Errorf("seed file entry %d: id is required", i)
		}
		if err := store.Upsert(ctx, &sl); err != nil {
			return 0, fmt.Errorf("seed seller %s: %w", sl.ID, err)
		}
	}
	return len(f.Sellers), nil
}
