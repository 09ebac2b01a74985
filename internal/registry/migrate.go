package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/giantswarm/kubedeck/internal/logging"
)

// MigrationFailure records a context that could not be migrated.
type MigrationFailure struct {
	ContextName string `json:"contextName"`
	SourceFile  string `json:"sourceFile"`
	Error       string `json:"error"`
}

// MigrationReport is the outcome of MigrateLegacy.
type MigrationReport struct {
	// Migrated lists the context names registered by this run.
	Migrated []string `json:"migrated"`
	// Skipped lists context names that were already registered.
	Skipped []string           `json:"skipped"`
	Failed  []MigrationFailure `json:"failed"`
}

// MigrateLegacy registers every context found under dir whose name is not
// registered yet. Each new context is extracted into the vault under a fresh
// id. A failing context is recorded in the report and does not stop the run.
// A missing dir yields an empty report.
func (s *Store) MigrateLegacy(ctx context.Context, dir string) (*MigrationReport, error) {
	report := &MigrationReport{
		Migrated: []string{},
		Skipped:  []string{},
		Failed:   []MigrationFailure{},
	}

	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to access legacy directory %s: %w", dir, err)
	}

	discovered, err := s.vault.DiscoverContextsInFolder(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover legacy contexts: %w", err)
	}

	existing, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	registered := make(map[string]bool, len(existing))
	for _, rec := range existing {
		registered[rec.ContextName] = true
	}

	for _, dc := range discovered {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if registered[dc.ContextName] {
			report.Skipped = append(report.Skipped, dc.ContextName)
			continue
		}

		fail := func(err error) {
			s.logger.Warn("Failed to migrate legacy context",
				logging.Context(dc.ContextName),
				logging.Path(dc.SourceFile),
				logging.Err(err))
			report.Failed = append(report.Failed, MigrationFailure{
				ContextName: dc.ContextName,
				SourceFile:  dc.SourceFile,
				Error:       err.Error(),
			})
		}

		id := NewID()
		dest, err := s.vault.ExtractContext(dc.SourceFile, dc.ContextName, id)
		if err != nil {
			fail(err)
			continue
		}

		_, err = s.Add(ctx, ClusterRecord{
			ID:             id,
			Name:           dc.ContextName,
			ContextName:    dc.ContextName,
			CredentialPath: dest,
		})
		if err != nil {
			if rmErr := s.vault.Remove(dest); rmErr != nil {
				s.logger.Warn("Failed to clean up extracted credential", logging.Path(dest), logging.Err(rmErr))
			}
			fail(err)
			continue
		}

		registered[dc.ContextName] = true
		report.Migrated = append(report.Migrated, dc.ContextName)
	}

	s.logger.Info("Legacy migration finished",
		"migrated", len(report.Migrated),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))

	return report, nil
}
