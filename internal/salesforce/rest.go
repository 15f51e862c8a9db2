package salesforce

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Row is a single query result record: field name to value. Fields may be
// missing or null; consumers must not assume presence.
type Row map[string]any

// QueryOutcome tags the result of a synchronous query attempt.
type QueryOutcome int

const (
	// QueryOK means the query succeeded and Rows holds the records.
	QueryOK QueryOutcome = iota + 1

	// QueryUnsupported means the synchronous API cannot serve this query;
	// the caller should try the bulk query path instead.
	QueryUnsupported

	// QueryFailed means the query failed outright; Err holds the cause.
	QueryFailed
)

// QueryResult is the explicit, tagged outcome of a synchronous query.
// Exactly one of Rows or Err is meaningful, selected by Outcome;
// QueryUnsupported carries neither.
type QueryResult struct {
	Outcome QueryOutcome
	Rows    []Row
	Err     error
}

// Client runs SOQL queries against the synchronous REST query endpoint.
type Client struct {
	transport *transport
}

// NewClient creates a REST query client. A nil config uses defaults, which
// is only useful in tests that inject a Transport.
func NewClient(config *ClientConfig) *Client {
	return &Client{transport: newTransport(config)}
}

// queryResponse is one page of the REST query endpoint's response.
type queryResponse struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []Row  `json:"records"`
}

// Query runs a SOQL query and returns a tagged result. All result pages
// are followed and merged into one row list. An error the API reports as
// unserveable by this endpoint yields QueryUnsupported rather than
// QueryFailed, so the caller can dispatch to the bulk path.
func (c *Client) Query(ctx context.Context, soql string) QueryResult {
	path := fmt.Sprintf("/services/data/v%s/query", c.transport.config.APIVersion)
	params := url.Values{"q": []string{soql}}

	var rows []Row
	for {
		resp, err := c.transport.do(ctx, "GET", path, params, "", nil)
		if err != nil {
			if apiErr, ok := AsAPIError(err); ok && apiErr.UnsupportedQuery() {
				return QueryResult{Outcome: QueryUnsupported}
			}
			return QueryResult{Outcome: QueryFailed, Err: err}
		}

		var page queryResponse
		if err := resp.json(&page); err != nil {
			return QueryResult{
				Outcome: QueryFailed,
				Err:     fmt.Errorf("decode query response: %w", err),
			}
		}
		rows = append(rows, page.Records...)

		if page.Done || page.NextRecordsURL == "" {
			break
		}
		// nextRecordsUrl is an instance-relative path with the locator baked in.
		path = strings.TrimPrefix(page.NextRecordsURL, "/")
		params = nil
	}

	return QueryResult{Outcome: QueryOK, Rows: rows}
}
