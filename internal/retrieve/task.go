package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/forcemeta/sfmeta/internal/history"
	"github.com/forcemeta/sfmeta/internal/manifest"
	"github.com/forcemeta/sfmeta/internal/permissions"
)

// Resolver maps profile names to manifest categories and members.
type Resolver interface {
	Resolve(ctx context.Context, profiles []string) (map[string][]string, error)
}

// Recorder persists one completed retrieval. Satisfied by *history.Store.
type Recorder interface {
	Record(ctx context.Context, r history.Retrieval) error
}

// Task is the end-to-end profile retrieval: resolve the permission
// closure, build the manifest, call the metadata API, unpack the archive,
// record the run.
type Task struct {
	Resolver   Resolver
	Metadata   MetadataAPI
	History    Recorder // optional; a failed history write never fails the run
	APIVersion string
	OutputDir  string
	Logger     *slog.Logger
}

// Result summarizes one completed retrieval.
type Result struct {
	RunID       string
	PackageXML  string
	Categories  map[string][]string
	MemberCount int
	OutputDir   string
}

// Run retrieves the given profiles into the task's output directory.
func (t *Task) Run(ctx context.Context, profiles []string) (*Result, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one profile is required")
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entities, err := t.Resolver.Resolve(ctx, profiles)
	if err != nil {
		return nil, fmt.Errorf("resolve permissionable entities: %w", err)
	}
	entities[permissions.CategoryProfile] = profiles

	memberCount := 0
	for _, members := range entities {
		memberCount += len(members)
	}
	logger.Info("permission closure resolved",
		"profiles", profiles, "categories", len(entities), "members", memberCount)

	packageXML := manifest.Build(entities, t.APIVersion)
	archive, err := t.Metadata.Retrieve(ctx, packageXML, t.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("retrieve metadata: %w", err)
	}

	if err := Extract(archive, t.OutputDir); err != nil {
		return nil, fmt.Errorf("unpack archive: %w", err)
	}
	logger.Info("profiles unpacked", "profiles", profiles, "dir", t.OutputDir)

	result := &Result{
		RunID:       uuid.NewString(),
		PackageXML:  packageXML,
		Categories:  entities,
		MemberCount: memberCount,
		OutputDir:   t.OutputDir,
	}

	if t.History != nil {
		record := history.Retrieval{
			ID:          result.RunID,
			CreatedAt:   time.Now(),
			Profiles:    profiles,
			MemberCount: memberCount,
			OutputDir:   t.OutputDir,
		}
		if err := t.History.Record(ctx, record); err != nil {
			logger.Warn("failed to record retrieval history", "error", err)
		}
	}

	return result, nil
}
