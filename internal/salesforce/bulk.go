package salesforce

import (
	"context"
	"fmt"
	"time"
)

// BulkClient runs SOQL queries through the asynchronous Bulk 1.0 job API:
// create a query job, add the query as a batch, wait for the batch, close
// the job, then fetch the result pages.
type BulkClient struct {
	transport *transport
}

// NewBulkClient creates a bulk query client sharing the same configuration
// shape as the REST client.
func NewBulkClient(config *ClientConfig) *BulkClient {
	return &BulkClient{transport: newTransport(config)}
}

func (c *BulkClient) jobPath(parts ...string) string {
	path := fmt.Sprintf("/services/async/%s/job", c.transport.config.APIVersion)
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

// CreateQueryJob opens a JSON-content query job against the given object.
// Returns the job ID.
func (c *BulkClient) CreateQueryJob(ctx context.Context, object string) (string, error) {
	body := fmt.Sprintf(`{"operation":"query","object":%q,"contentType":"JSON"}`, object)
	resp, err := c.transport.do(ctx, "POST", c.jobPath(), nil, "application/json", []byte(body))
	if err != nil {
		return "", fmt.Errorf("create query job for %s: %w", object, err)
	}

	var job struct {
		ID string `json:"id"`
	}
	if err := resp.json(&job); err != nil {
		return "", fmt.Errorf("decode job response: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("create query job for %s: response carried no job id", object)
	}
	return job.ID, nil
}

// AddBatch submits the query text as a batch of the given job. Returns the
// batch ID.
func (c *BulkClient) AddBatch(ctx context.Context, jobID, soql string) (string, error) {
	resp, err := c.transport.do(ctx, "POST", c.jobPath(jobID, "batch"), nil, "application/json", []byte(soql))
	if err != nil {
		return "", fmt.Errorf("add batch to job %s: %w", jobID, err)
	}

	var batch struct {
		ID string `json:"id"`
	}
	if err := resp.json(&batch); err != nil {
		return "", fmt.Errorf("decode batch response: %w", err)
	}
	if batch.ID == "" {
		return "", fmt.Errorf("add batch to job %s: response carried no batch id", jobID)
	}
	return batch.ID, nil
}

// batchStatus is the Bulk API's view of a batch.
type batchStatus struct {
	State        string `json:"state"`
	StateMessage string `json:"stateMessage"`
}

// AwaitBatch polls the batch until it reaches a terminal state. Returns an
// error if the batch failed or was not processed, or if the context is
// cancelled while waiting.
func (c *BulkClient) AwaitBatch(ctx context.Context, jobID, batchID string) error {
	ticker := time.NewTicker(c.transport.config.PollInterval)
	defer ticker.Stop()

	for {
		resp, err := c.transport.do(ctx, "GET", c.jobPath(jobID, "batch", batchID), nil, "", nil)
		if err != nil {
			return fmt.Errorf("check batch %s state: %w", batchID, err)
		}

		var status batchStatus
		if err := resp.json(&status); err != nil {
			return fmt.Errorf("decode batch state: %w", err)
		}

		switch status.State {
		case "Completed":
			return nil
		case "Failed", "Not Processed":
			return fmt.Errorf("batch %s ended in state %s: %s", batchID, status.State, status.StateMessage)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CloseJob marks the job closed so the org can release its resources.
func (c *BulkClient) CloseJob(ctx context.Context, jobID string) error {
	body := []byte(`{"state":"Closed"}`)
	if _, err := c.transport.do(ctx, "POST", c.jobPath(jobID), nil, "application/json", body); err != nil {
		return fmt.Errorf("close job %s: %w", jobID, err)
	}
	return nil
}

// BatchRows fetches every result page of a completed batch and merges the
// parsed records into a single row list, preserving page order.
func (c *BulkClient) BatchRows(ctx context.Context, jobID, batchID string) ([]Row, error) {
	resp, err := c.transport.do(ctx, "GET", c.jobPath(jobID, "batch", batchID, "result"), nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("list batch %s results: %w", batchID, err)
	}

	var resultIDs []string
	if err := resp.json(&resultIDs); err != nil {
		return nil, fmt.Errorf("decode batch result list: %w", err)
	}

	var rows []Row
	for _, resultID := range resultIDs {
		page, err := c.transport.do(ctx, "GET", c.jobPath(jobID, "batch", batchID, "result", resultID), nil, "", nil)
		if err != nil {
			return nil, fmt.Errorf("fetch batch result %s: %w", resultID, err)
		}

		var records []Row
		if err := page.json(&records); err != nil {
			return nil, fmt.Errorf("decode batch result %s: %w", resultID, err)
		}
		rows = append(rows, records...)
	}
	return rows, nil
}
