package permissions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forcemeta/sfmeta/internal/salesforce"
	"github.com/forcemeta/sfmeta/internal/soql"
)

// Fixed names for the discovery queries. Result rows are read back under
// these keys after the batch completes.
const (
	setupEntityQueryName = "setupEntityAccess"
	sObjectQueryName     = "sObject"
	customTabQueryName   = "customTab"
)

// profileNameField is the relationship path from permission-assignment
// rows to the owning profile's name.
const profileNameField = "Parent.Profile.Name"

// QueryRunner executes a named batch of queries and returns query name to
// result rows, or fails as a whole.
type QueryRunner interface {
	Run(ctx context.Context, queries map[string]string) (map[string][]salesforce.Row, error)
}

// Resolver maps profile names to the manifest categories and members their
// permissions reference, using a two-phase query fan-out: discovery of
// entity IDs by type, then per-type resolution of IDs to names.
type Resolver struct {
	runner      QueryRunner
	descriptors map[string]EntityDescriptor
	logger      *slog.Logger
}

// NewResolver creates a resolver over the given query runner with the
// built-in entity descriptors.
func NewResolver(runner QueryRunner) *Resolver {
	return &Resolver{
		runner:      runner,
		descriptors: DefaultDescriptors(),
		logger:      slog.Default(),
	}
}

// Resolve returns manifest category to member names for everything the
// given profiles can access. The result always carries the CustomObject
// and CustomTab categories (possibly empty); setup-entity categories
// appear only when at least one entity of that type was discovered. The
// Profile category itself is the caller's to add.
func (r *Resolver) Resolve(ctx context.Context, profiles []string) (map[string][]string, error) {
	profileFilter := soql.In(profileNameField, profiles)

	queries := make(map[string]string, 3)
	var err error
	queries[setupEntityQueryName], err = soql.Build(
		[]string{"SetupEntityId", "SetupEntityType"}, "SetupEntityAccess", profileFilter)
	if err != nil {
		return nil, fmt.Errorf("build setup entity query: %w", err)
	}
	queries[sObjectQueryName], err = soql.Build(
		[]string{"SObjectType"}, "ObjectPermissions", profileFilter)
	if err != nil {
		return nil, fmt.Errorf("build object permissions query: %w", err)
	}
	queries[customTabQueryName], err = soql.Build(
		[]string{"Name"}, "PermissionSetTabSetting", profileFilter)
	if err != nil {
		return nil, fmt.Errorf("build tab settings query: %w", err)
	}

	r.logger.Debug("running discovery queries", "profiles", profiles)
	results, err := r.runner.Run(ctx, queries)
	if err != nil {
		return nil, err
	}

	entities, err := r.resolveSetupEntities(ctx, results[setupEntityQueryName])
	if err != nil {
		return nil, err
	}
	entities[CategoryCustomObject] = objectTypeMembers(results[sObjectQueryName])
	entities[CategoryCustomTab] = tabMembers(results[customTabQueryName])
	return entities, nil
}

// resolveSetupEntities classifies discovery rows into per-type ID buckets,
// builds one resolution query per non-empty bucket, and assembles the
// resolved rows into category member lists.
func (r *Resolver) resolveSetupEntities(ctx context.Context, rows []salesforce.Row) (map[string][]string, error) {
	buckets := make(map[string][]string)
	for _, row := range rows {
		entityType, ok := stringField(row, "SetupEntityType")
		if !ok {
			continue
		}
		entityID, ok := stringField(row, "SetupEntityId")
		if !ok {
			continue
		}
		if _, known := r.descriptors[entityType]; !known {
			// Entity types this tool does not resolve yet are skipped, not
			// errors.
			r.logger.Debug("skipping unknown setup entity type", "type", entityType)
			continue
		}
		buckets[entityType] = append(buckets[entityType], entityID)
	}

	// One resolution query per non-empty bucket. An empty bucket would
	// produce an invalid empty IN-list, so it builds nothing.
	queries := make(map[string]string)
	for _, entityType := range setupEntityOrder {
		ids := buckets[entityType]
		if len(ids) == 0 {
			continue
		}
		desc := r.descriptors[entityType]
		query, err := soql.Build(desc.Columns, desc.SourceTable, soql.In(desc.IDField, ids))
		if err != nil {
			return nil, fmt.Errorf("build resolution query for %s: %w", entityType, err)
		}
		queries[entityType] = query
	}

	resolved := make(map[string][]string)
	if len(queries) == 0 {
		return resolved, nil
	}

	r.logger.Debug("running resolution queries", "count", len(queries))
	results, err := r.runner.Run(ctx, queries)
	if err != nil {
		return nil, err
	}

	for _, entityType := range setupEntityOrder {
		rows, ok := results[entityType]
		if !ok {
			continue
		}
		desc := r.descriptors[entityType]
		if _, present := resolved[desc.ManifestCategory]; !present {
			resolved[desc.ManifestCategory] = []string{}
		}
		for _, row := range rows {
			member, ok := memberName(row, desc)
			if !ok {
				continue
			}
			resolved[desc.ManifestCategory] = append(resolved[desc.ManifestCategory], member)
		}
	}
	return resolved, nil
}

// memberName assembles the manifest member identifier for one resolved
// row: prefix__name when the descriptor has a namespace column and the row
// carries a non-null value for it, otherwise the bare name.
func memberName(row salesforce.Row, desc EntityDescriptor) (string, bool) {
	name, ok := stringField(row, desc.Columns[0])
	if !ok {
		return "", false
	}
	if len(desc.Columns) > 1 {
		if prefix, ok := stringField(row, desc.Columns[1]); ok {
			return prefix + "__" + name, true
		}
	}
	return name, true
}

// objectTypeMembers extracts object API names from object-permission rows.
// These rows already carry the display name; no further lookup is needed.
func objectTypeMembers(rows []salesforce.Row) []string {
	members := make([]string, 0, len(rows))
	for _, row := range rows {
		// The API spells this field SobjectType in result rows even though
		// the query selects SObjectType.
		name, ok := stringField(row, "SobjectType")
		if !ok {
			name, ok = stringField(row, "SObjectType")
		}
		if ok {
			members = append(members, name)
		}
	}
	return members
}

// tabMembers extracts tab names from tab-setting rows.
func tabMembers(rows []salesforce.Row) []string {
	members := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := stringField(row, "Name"); ok {
			members = append(members, name)
		}
	}
	return members
}

// stringField reads a non-null, non-empty string field from a row.
func stringField(row salesforce.Row, field string) (string, bool) {
	value, ok := row[field]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
