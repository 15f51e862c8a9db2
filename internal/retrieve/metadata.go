// Package retrieve submits a package.xml manifest to the Salesforce
// metadata API, downloads the resulting archive, and unpacks it locally.
package retrieve

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MetadataAPI is the retrieval endpoint: give it a manifest and an API
// version, get back a zip archive.
type MetadataAPI interface {
	Retrieve(ctx context.Context, packageXML, apiVersion string) ([]byte, error)
}

// MetadataClient implements MetadataAPI over the metadata SOAP endpoint:
// submit a retrieve request, poll checkRetrieveStatus until done, decode
// the base64 zip payload. The envelopes are simple string templates; this
// client does not model the SOAP schema.
type MetadataClient struct {
	instanceURL  string
	accessToken  string
	httpClient   *http.Client
	pollInterval time.Duration
}

// MetadataClientOption customizes a MetadataClient.
type MetadataClientOption func(*MetadataClient)

// WithTransport injects a custom HTTP transport (for tests/stubs).
func WithTransport(rt http.RoundTripper) MetadataClientOption {
	return func(c *MetadataClient) {
		c.httpClient.Transport = rt
	}
}

// WithPollInterval overrides the status poll interval (default: 5s).
func WithPollInterval(d time.Duration) MetadataClientOption {
	return func(c *MetadataClient) {
		c.pollInterval = d
	}
}

// NewMetadataClient creates a metadata retrieval client for the given org.
func NewMetadataClient(instanceURL, accessToken string, opts ...MetadataClientOption) *MetadataClient {
	c := &MetadataClient{
		instanceURL:  strings.TrimSuffix(instanceURL, "/"),
		accessToken:  accessToken,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const retrieveEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:met="http://soap.sforce.com/2006/04/metadata">
  <soapenv:Header>
    <met:SessionHeader>
      <met:sessionId>%s</met:sessionId>
    </met:SessionHeader>
  </soapenv:Header>
  <soapenv:Body>
    <met:retrieve>
      <met:retrieveRequest>
        <met:apiVersion>%s</met:apiVersion>
        <met:unpackaged>%s</met:unpackaged>
      </met:retrieveRequest>
    </met:retrieve>
  </soapenv:Body>
</soapenv:Envelope>`

const statusEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:met="http://soap.sforce.com/2006/04/metadata">
  <soapenv:Header>
    <met:SessionHeader>
      <met:sessionId>%s</met:sessionId>
    </met:SessionHeader>
  </soapenv:Header>
  <soapenv:Body>
    <met:checkRetrieveStatus>
      <met:asyncProcessId>%s</met:asyncProcessId>
      <met:includeZip>true</met:includeZip>
    </met:checkRetrieveStatus>
  </soapenv:Body>
</soapenv:Envelope>`

// Retrieve runs the full retrieve round trip and returns the archive
// bytes.
func (c *MetadataClient) Retrieve(ctx context.Context, packageXML, apiVersion string) ([]byte, error) {
	inner, err := packageInner(packageXML)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/services/Soap/m/%s", c.instanceURL, apiVersion)
	body := fmt.Sprintf(retrieveEnvelope, c.accessToken, apiVersion, inner)
	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("submit retrieve request: %w", err)
	}

	processID, ok := tagValue(resp, "id")
	if !ok {
		return nil, fmt.Errorf("retrieve response carried no process id")
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		statusBody := fmt.Sprintf(statusEnvelope, c.accessToken, processID)
		resp, err := c.post(ctx, endpoint, statusBody)
		if err != nil {
			return nil, fmt.Errorf("check retrieve status: %w", err)
		}

		if done, _ := tagValue(resp, "done"); done != "true" {
			continue
		}
		if status, _ := tagValue(resp, "status"); status == "Failed" {
			message, _ := tagValue(resp, "errorMessage")
			return nil, fmt.Errorf("retrieve %s failed: %s", processID, message)
		}

		encoded, ok := tagValue(resp, "zipFile")
		if !ok {
			return nil, fmt.Errorf("retrieve %s finished without an archive", processID)
		}
		archive, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode retrieve archive: %w", err)
		}
		return archive, nil
	}
}

func (c *MetadataClient) post(ctx context.Context, endpoint, body string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=UTF-8")
	req.Header.Set("SOAPAction", `""`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		if faultstring, ok := tagValue(string(respBody), "faultstring"); ok {
			return "", fmt.Errorf("metadata API fault (HTTP %d): %s", resp.StatusCode, faultstring)
		}
		return "", fmt.Errorf("metadata API HTTP %d", resp.StatusCode)
	}
	return string(respBody), nil
}

// packageInner strips the XML declaration and the Package wrapper element,
// leaving the types/version content to embed in the retrieve envelope.
func packageInner(packageXML string) (string, error) {
	open := strings.Index(packageXML, "<Package")
	if open == -1 {
		return "", fmt.Errorf("manifest has no Package element")
	}
	start := strings.Index(packageXML[open:], ">")
	if start == -1 {
		return "", fmt.Errorf("manifest Package element is unterminated")
	}
	start += open + 1
	end := strings.LastIndex(packageXML, "</Package>")
	if end == -1 || end < start {
		return "", fmt.Errorf("manifest has no closing Package element")
	}
	return strings.TrimSpace(packageXML[start:end]), nil
}

// tagValue extracts the text content of the first occurrence of an
// unprefixed XML tag. Good enough for the flat response shapes this client
// consumes.
func tagValue(body, tag string) (string, bool) {
	open := "<" + tag + ">"
	idx := strings.Index(body, open)
	if idx == -1 {
		return "", false
	}
	rest := body[idx+len(open):]
	end := strings.Index(rest, "</"+tag+">")
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}
