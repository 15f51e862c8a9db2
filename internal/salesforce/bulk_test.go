package salesforce

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkQueryLifecycle(t *testing.T) {
	transport := &stubTransport{handle: func(call int, req *http.Request) *http.Response {
		path := req.URL.Path
		switch {
		case req.Method == "POST" && path == "/services/async/58.0/job":
			return jsonResponse(201, `{"id":"750-job"}`)
		case req.Method == "POST" && path == "/services/async/58.0/job/750-job/batch":
			return jsonResponse(201, `{"id":"751-batch"}`)
		case req.Method == "GET" && path == "/services/async/58.0/job/750-job/batch/751-batch":
			if call < 4 {
				return jsonResponse(200, `{"state":"InProgress"}`)
			}
			return jsonResponse(200, `{"state":"Completed"}`)
		case req.Method == "POST" && path == "/services/async/58.0/job/750-job":
			return jsonResponse(200, `{"id":"750-job","state":"Closed"}`)
		case req.Method == "GET" && path == "/services/async/58.0/job/750-job/batch/751-batch/result":
			return jsonResponse(200, `["752-r1","752-r2"]`)
		case req.Method == "GET" && path == "/services/async/58.0/job/750-job/batch/751-batch/result/752-r1":
			return jsonResponse(200, `[{"Id":"1"},{"Id":"2"}]`)
		case req.Method == "GET" && path == "/services/async/58.0/job/750-job/batch/751-batch/result/752-r2":
			return jsonResponse(200, `[{"Id":"3"}]`)
		}
		return jsonResponse(404, `[{"message":"no route","errorCode":"NOT_FOUND"}]`)
	}}
	client := NewBulkClient(testConfig(transport))
	ctx := context.Background()

	jobID, err := client.CreateQueryJob(ctx, "BigObject__b")
	require.NoError(t, err)
	assert.Equal(t, "750-job", jobID)

	// Job creation names the object and asks for JSON content.
	createBody, err := io.ReadAll(transport.requests[0].Body)
	require.NoError(t, err)
	assert.Contains(t, string(createBody), `"object":"BigObject__b"`)
	assert.Contains(t, string(createBody), `"contentType":"JSON"`)
	assert.Equal(t, "tok", transport.requests[0].Header.Get("X-SFDC-Session"))

	batchID, err := client.AddBatch(ctx, jobID, "SELECT Id from BigObject__b")
	require.NoError(t, err)
	assert.Equal(t, "751-batch", batchID)

	batchBody, err := io.ReadAll(transport.requests[1].Body)
	require.NoError(t, err)
	assert.Equal(t, "SELECT Id from BigObject__b", string(batchBody))

	require.NoError(t, client.AwaitBatch(ctx, jobID, batchID))
	require.NoError(t, client.CloseJob(ctx, jobID))

	rows, err := client.BatchRows(ctx, jobID, batchID)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"Id": "1"}, {"Id": "2"}, {"Id": "3"}}, rows)
}

func TestAwaitBatchFailedState(t *testing.T) {
	transport := &stubTransport{handle: func(call int, req *http.Request) *http.Response {
		return jsonResponse(200, `{"state":"Failed","stateMessage":"InvalidBatch: query too broad"}`)
	}}
	client := NewBulkClient(testConfig(transport))

	err := client.AwaitBatch(context.Background(), "j", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query too broad")
}

func TestAwaitBatchContextCancelled(t *testing.T) {
	transport := &stubTransport{handle: func(call int, req *http.Request) *http.Response {
		return jsonResponse(200, `{"state":"InProgress"}`)
	}}
	client := NewBulkClient(testConfig(transport))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.AwaitBatch(ctx, "j", "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateQueryJobMissingID(t *testing.T) {
	transport := &stubTransport{handle: func(call int, req *http.Request) *http.Response {
		return jsonResponse(201, `{}`)
	}}
	client := NewBulkClient(testConfig(transport))

	_, err := client.CreateQueryJob(context.Background(), "Account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job id")
}
