package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	beaconerrors "github.com/beaconlabs/beacon/internal/errors"
)

// HTTPTransport posts batches to an HTTP collector endpoint using the v2
// form-encoded protocol. A 413 maps to StatusTooLarge; any other non-2xx
// status, network failure, or unreadable body maps to StatusError.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport for the given collector URL.
// A nil client uses a default with a 30 second timeout.
func NewHTTPTransport(collectorURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{url: collectorURL, client: client}
}

// collectorResponse is the JSON body returned by the collector on success.
type collectorResponse struct {
	Added int `json:"added"`
}

func (t *HTTPTransport) Post(ctx context.Context, req Request) Result {
	form := url.Values{}
	form.Set("v", strconv.Itoa(req.APIVersion))
	form.Set("client", req.APIKey)
	form.Set("e", req.Events)
	form.Set("upload_time", req.UploadTime)
	form.Set("checksum", req.Checksum)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(beaconerrors.CodePostFailed, "failed to build request", err)}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(beaconerrors.CodePostFailed, "request failed", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return Result{Status: StatusTooLarge}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(
			beaconerrors.CodePostFailed, "collector returned "+resp.Status, nil)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(beaconerrors.CodeBadResponse, "failed to read response", err)}
	}

	var parsed collectorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{Status: StatusError, Err: beaconerrors.NewTransportError(beaconerrors.CodeBadResponse, "malformed response body", err)}
	}

	return Result{Status: StatusSuccess, Added: parsed.Added}
}
