// Package batch runs named sets of SOQL queries concurrently against the
// Salesforce query APIs, falling back from the synchronous endpoint to the
// asynchronous bulk path per query when the synchronous API cannot serve
// it.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/forcemeta/sfmeta/internal/salesforce"
	"github.com/forcemeta/sfmeta/internal/soql"
)

// poolSize bounds the number of queries in flight at once.
const poolSize = 4

// SyncQuerier runs one query against the synchronous endpoint, reporting a
// tagged outcome so the executor can dispatch the bulk fallback on
// QueryUnsupported without inspecting error types.
type SyncQuerier interface {
	Query(ctx context.Context, soql string) salesforce.QueryResult
}

// BulkQuerier is the asynchronous bulk-query job lifecycle.
type BulkQuerier interface {
	CreateQueryJob(ctx context.Context, object string) (string, error)
	AddBatch(ctx context.Context, jobID, soql string) (string, error)
	AwaitBatch(ctx context.Context, jobID, batchID string) error
	CloseJob(ctx context.Context, jobID string) error
	BatchRows(ctx context.Context, jobID, batchID string) ([]salesforce.Row, error)
}

// Executor fans a batch of named queries out over a fixed-size worker pool.
type Executor struct {
	sync   SyncQuerier
	bulk   BulkQuerier
	logger *slog.Logger
}

// New creates an executor over the given query clients.
func New(sync SyncQuerier, bulk BulkQuerier) *Executor {
	return &Executor{sync: sync, bulk: bulk, logger: slog.Default()}
}

// job pairs a query name with its text for the worker pool.
type job struct {
	name string
	soql string
}

// outcome is one finished query, success or failure.
type outcome struct {
	name string
	rows []salesforce.Row
	err  error
}

// Run executes every query in the batch, at most poolSize concurrently,
// and returns query name to result rows. Query names must be unique, which
// the map type already enforces. Completion order is unconstrained.
//
// All outcomes are drained before failure is decided: if any query failed,
// Run returns a BatchError naming every failed query, and no results are
// returned.
func (e *Executor) Run(ctx context.Context, queries map[string]string) (map[string][]salesforce.Row, error) {
	if len(queries) == 0 {
		return map[string][]salesforce.Row{}, nil
	}

	jobs := make(chan job)
	outcomes := make(chan outcome, len(queries))

	var wg sync.WaitGroup
	workers := poolSize
	if len(queries) < workers {
		workers = len(queries)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				rows, err := e.runOne(ctx, j.soql)
				outcomes <- outcome{name: j.name, rows: rows, err: err}
			}
		}()
	}

	for name, text := range queries {
		jobs <- job{name: name, soql: text}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	results := make(map[string][]salesforce.Row, len(queries))
	var failures []QueryFailure
	for o := range outcomes {
		if o.err != nil {
			failures = append(failures, QueryFailure{Name: o.name, Err: o.err})
			continue
		}
		results[o.name] = o.rows
	}

	if len(failures) > 0 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].Name < failures[j].Name })
		return nil, &BatchError{Failures: failures}
	}
	return results, nil
}

// runOne tries the synchronous endpoint first and dispatches to the bulk
// path only when the endpoint reports it cannot serve the query.
func (e *Executor) runOne(ctx context.Context, query string) ([]salesforce.Row, error) {
	result := e.sync.Query(ctx, query)
	switch result.Outcome {
	case salesforce.QueryOK:
		return result.Rows, nil
	case salesforce.QueryUnsupported:
		e.logger.Debug("sync endpoint declined query, using bulk path", "query", query)
		return e.runBulk(ctx, query)
	default:
		return nil, result.Err
	}
}

// runBulk executes one query through the bulk job lifecycle: create the
// job against the query's FROM table, submit the query as a batch, wait,
// close the job, fetch all result pages.
func (e *Executor) runBulk(ctx context.Context, query string) ([]salesforce.Row, error) {
	table, err := soql.ExtractTable(query)
	if err != nil {
		return nil, err
	}

	jobID, err := e.bulk.CreateQueryJob(ctx, table)
	if err != nil {
		return nil, err
	}

	batchID, err := e.bulk.AddBatch(ctx, jobID, query)
	if err != nil {
		return nil, err
	}

	if err := e.bulk.AwaitBatch(ctx, jobID, batchID); err != nil {
		return nil, err
	}

	if err := e.bulk.CloseJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("close bulk job: %w", err)
	}

	return e.bulk.BatchRows(ctx, jobID, batchID)
}
