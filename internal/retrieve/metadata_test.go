package retrieve

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport serves canned responses per call index.
type scriptedTransport struct {
	mu       sync.Mutex
	calls    int
	requests []*http.Request
	respond  func(call int, req *http.Request) *http.Response
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.respond(call, req), nil
}

func httpResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRetrievePollsUntilDone(t *testing.T) {
	archive := makeZip(t, map[string]string{"profiles/Admin.profile": "<Profile/>"})
	encoded := base64.StdEncoding.EncodeToString(archive)

	transport := &scriptedTransport{respond: func(call int, req *http.Request) *http.Response {
		switch call {
		case 0:
			return httpResponse(200, "<result><done>false</done><id>09S000000000001</id></result>")
		case 1:
			return httpResponse(200, "<result><done>false</done><id>09S000000000001</id><status>InProgress</status></result>")
		default:
			return httpResponse(200,
				"<result><done>true</done><id>09S000000000001</id><status>Succeeded</status><zipFile>"+encoded+"</zipFile></result>")
		}
	}}

	client := NewMetadataClient("https://example.my.salesforce.com", "token",
		WithTransport(transport), WithPollInterval(time.Millisecond))

	packageXML := `<?xml version="1.0" encoding="UTF-8"?>
<Package xmlns="http://soap.sforce.com/2006/04/metadata">
    <types>
        <members>Admin</members>
        <name>Profile</name>
    </types>
    <version>58.0</version>
</Package>
`
	got, err := client.Retrieve(context.Background(), packageXML, "58.0")
	require.NoError(t, err)
	assert.Equal(t, archive, got)
	assert.GreaterOrEqual(t, transport.calls, 3)

	// The retrieve request embeds the manifest's inner content, not the
	// Package wrapper.
	body, err := io.ReadAll(transport.requests[0].Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<members>Admin</members>")
	assert.NotContains(t, string(body), "<Package")
	assert.Contains(t, transport.requests[0].URL.Path, "/services/Soap/m/58.0")
}

func TestRetrieveFailedStatus(t *testing.T) {
	transport := &scriptedTransport{respond: func(call int, req *http.Request) *http.Response {
		if call == 0 {
			return httpResponse(200, "<result><done>false</done><id>09S2</id></result>")
		}
		return httpResponse(200,
			"<result><done>true</done><status>Failed</status><errorMessage>INVALID_CROSS_REFERENCE_KEY</errorMessage></result>")
	}}

	client := NewMetadataClient("https://example.my.salesforce.com", "token",
		WithTransport(transport), WithPollInterval(time.Millisecond))

	_, err := client.Retrieve(context.Background(), manifestFixture, "58.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_CROSS_REFERENCE_KEY")
}

func TestRetrieveSoapFault(t *testing.T) {
	transport := &scriptedTransport{respond: func(call int, req *http.Request) *http.Response {
		return httpResponse(500, "<soapenv:Fault><faultstring>INVALID_SESSION_ID</faultstring></soapenv:Fault>")
	}}

	client := NewMetadataClient("https://example.my.salesforce.com", "token",
		WithTransport(transport), WithPollInterval(time.Millisecond))

	_, err := client.Retrieve(context.Background(), manifestFixture, "58.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_SESSION_ID")
}

const manifestFixture = `<?xml version="1.0" encoding="UTF-8"?>
<Package xmlns="http://soap.sforce.com/2006/04/metadata">
    <version>58.0</version>
</Package>
`

func TestPackageInner(t *testing.T) {
	inner, err := packageInner(manifestFixture)
	require.NoError(t, err)
	assert.Equal(t, "<version>58.0</version>", inner)
}

func TestPackageInnerNoPackageElement(t *testing.T) {
	_, err := packageInner("<NotAManifest/>")
	require.Error(t, err)
}

func TestTagValue(t *testing.T) {
	value, ok := tagValue("<a><id>xyz</id></a>", "id")
	assert.True(t, ok)
	assert.Equal(t, "xyz", value)

	_, ok = tagValue("<a><id>xyz</id></a>", "missing")
	assert.False(t, ok)
}
