package storage

import (
	"context"
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/tenantdesk/internal/models"
)

// Fixture is a YAML document of tenants, their objects and records used to
// seed a local SQLite store.
type Fixture struct {
	Tenants []FixtureTenant `yaml:"tenants"`
}

// FixtureTenant is one tenant's catalog.
type FixtureTenant struct {
	ID      string          `yaml:"id"`
	Objects []FixtureObject `yaml:"objects"`
}

// FixtureObject is a catalog entry with its records.
type FixtureObject struct {
	ID      string          `yaml:"id"`
	Name    string          `yaml:"name"`
	Records []FixtureRecord `yaml:"records"`
}

// FixtureRecord is one record. An empty ID is generated on insert.
type FixtureRecord struct {
	ID   string        `yaml:"id"`
	Data models.Fields `yaml:"data"`
}

// SeedStats counts what Seed wrote.
type SeedStats struct {
	Tenants int `json:"tenants"`
	Objects int `json:"objects"`
	Records int `json:"records"`
}

// Validate checks that every tenant and object is identified.
func (f *Fixture) Validate() error {
	for i := range f.Tenants {
		t := &f.Tenants[i]
		if err := validation.ValidateStruct(t,
			validation.Field(&t.ID, validation.Required),
		); err != nil {
			return fmt.Errorf("tenant %d: %w", i, err)
		}
		for j := range t.Objects {
			o := &t.Objects[j]
			if err := validation.ValidateStruct(o,
				validation.Field(&o.ID, validation.Required),
				validation.Field(&o.Name, validation.Required),
			); err != nil {
				return fmt.Errorf("tenant %s object %d: %w", t.ID, j, err)
			}
		}
	}
	return nil
}

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("storage: parse fixture %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("storage: fixture %s: %w", path, err)
	}
	return &f, nil
}

// Seed writes every object and record of f. Objects are upserted; a record
// id that already exists fails the seed.
func (s *SQLite) Seed(ctx context.Context, f *Fixture) (SeedStats, error) {
	var stats SeedStats
	for _, t := range f.Tenants {
		stats.Tenants++
		for _, o := range t.Objects {
			if err := s.CreateObject(ctx, t.ID, o.ID, o.Name); err != nil {
				return stats, err
			}
			stats.Objects++
			for _, r := range o.Records {
				if _, err := s.InsertRecord(ctx, t.ID, o.ID, r.ID, r.Data); err != nil {
					return stats, fmt.Errorf("tenant %s object %s: %w", t.ID, o.ID, err)
				}
				stats.Records++
			}
		}
	}
	return stats, nil
}
