package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() Request {
	return Request{
		APIKey:     "test-key",
		APIVersion: 2,
		Events:     `[{"event_type":"e"}]`,
		Count:      1,
		UploadTime: "1700000000000",
		Checksum:   "abc123",
	}
}

func TestHTTPTransport_Success(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"v":           r.PostFormValue("v"),
			"client":      r.PostFormValue("client"),
			"e":           r.PostFormValue("e"),
			"upload_time": r.PostFormValue("upload_time"),
			"checksum":    r.PostFormValue("checksum"),
		}
		w.Write([]byte(`{"added": 1}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL, nil)
	res := tr.Post(context.Background(), testRequest())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, map[string]string{
		"v":           "2",
		"client":      "test-key",
		"e":           `[{"event_type":"e"}]`,
		"upload_time": "1700000000000",
		"checksum":    "abc123",
	}, gotForm)
}

func TestHTTPTransport_PayloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	res := NewHTTPTransport(srv.URL, nil).Post(context.Background(), testRequest())
	assert.Equal(t, StatusTooLarge, res.Status)
}

func TestHTTPTransport_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewHTTPTransport(srv.URL, nil).Post(context.Background(), testRequest())
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestHTTPTransport_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	res := NewHTTPTransport(srv.URL, nil).Post(context.Background(), testRequest())
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	res := NewHTTPTransport(srv.URL, nil).Post(context.Background(), testRequest())
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestHTTPTransport_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"added": 1}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewHTTPTransport(srv.URL, nil).Post(ctx, testRequest())
	assert.Equal(t, StatusError, res.Status)
}
