package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-places-prefetch/config"
)

const testBaseURL = "http://places.test"

var placesURLPattern = `=~^http://places\.test/api/places`

func newTestClient(t *testing.T, profile config.Profile) (*Client, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL

	c, err := New(cfg, profile, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	transport := httpmock.NewMockTransport()
	c.collector.WithTransport(transport)
	return c, transport
}

func buildProfile() config.Profile {
	return config.Profile{Mode: config.ModeBuild, Credential: "build-key", Timeout: 30 * time.Second}
}

func TestFetchSuccess(t *testing.T) {
	c, transport := newTestClient(t, buildProfile())

	var gotKey, gotQuery string
	transport.RegisterResponder(http.MethodGet, placesURLPattern, func(req *http.Request) (*http.Response, error) {
		gotKey = req.Header.Get("x-api-key")
		gotQuery = req.URL.Query().Get("query")
		return httpmock.NewStringResponse(http.StatusOK,
			`{"rating":4.5,"user_ratings_total":31204,"name":"Senso-ji","formatted_address":"2-3-1 Asakusa, Taito City, Tokyo","reviews":[]}`), nil
	})

	res := c.Fetch(context.Background(), "Senso-ji Temple, Tokyo, Japan")
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if gotKey != "build-key" {
		t.Fatalf("x-api-key = %q, want build-key", gotKey)
	}
	if gotQuery != "Senso-ji Temple, Tokyo, Japan" {
		t.Fatalf("query = %q", gotQuery)
	}
	if res.Record.RatingValue() != 4.5 || res.Record.ReviewCount() != 31204 {
		t.Fatalf("record = %+v", res.Record)
	}
	if res.Record.IsFallback {
		t.Fatalf("fetched record must not be a fallback")
	}
	if res.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Status)
	}
}

func TestFetchMissingCredential(t *testing.T) {
	c, transport := newTestClient(t, config.Profile{Mode: config.ModeRuntime, Timeout: time.Second})
	transport.RegisterResponder(http.MethodGet, placesURLPattern, httpmock.NewStringResponder(http.StatusOK, `{"name":"x"}`))

	res := c.Fetch(context.Background(), "anything")
	if !errors.Is(res.Err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", res.Err)
	}
	if res.Record != nil {
		t.Fatalf("record should be nil")
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("expected no HTTP calls, got %d", n)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		expected  string
	}{
		{
			name:      "timeout",
			responder: httpmock.NewErrorResponder(context.DeadlineExceeded),
			expected:  "timeout",
		},
		{
			name:      "connection refused",
			responder: httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}),
			expected:  "connection",
		},
		{
			name:      "not found",
			responder: httpmock.NewStringResponder(http.StatusNotFound, `{"error":"no results"}`),
			expected:  "not_found",
		},
		{
			name:      "unauthorized",
			responder: httpmock.NewStringResponder(http.StatusUnauthorized, ``),
			expected:  "forbidden",
		},
		{
			name:      "rate limited",
			responder: httpmock.NewStringResponder(http.StatusTooManyRequests, ``),
			expected:  "rate_limited",
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusBadGateway, `upstream failed`),
			expected:  "http_status",
		},
		{
			name:      "malformed json",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"rating":`),
			expected:  "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport := newTestClient(t, buildProfile())
			transport.RegisterResponder(http.MethodGet, placesURLPattern, tt.responder)

			res := c.Fetch(context.Background(), "Osaka Castle, Osaka, Japan")
			if res.OK() {
				t.Fatalf("expected failure")
			}
			if res.Record != nil {
				t.Fatalf("record should be nil on failure")
			}
			if got := ErrorLabel(res.Err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, res.Err)
			}
		})
	}
}

func TestFetchCanceledContext(t *testing.T) {
	c, transport := newTestClient(t, buildProfile())
	transport.RegisterResponder(http.MethodGet, placesURLPattern, httpmock.NewStringResponder(http.StatusOK, `{"name":"x"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Fetch(ctx, "q")
	if res.OK() {
		t.Fatalf("expected failure for canceled context")
	}
	if transport.GetTotalCallCount() != 0 {
		t.Fatalf("canceled fetch should not hit the network")
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "not a url"
	if _, err := New(cfg, buildProfile(), nil); err == nil {
		t.Fatalf("expected error for base url without host")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "ok status", err: nil, statusCode: http.StatusOK, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: "http_status"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorLabelWrapped(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrMissingCredential)
	if got := ErrorLabel(err); got != "missing_credential" {
		t.Fatalf("label = %q", got)
	}
	if got := ErrorLabel(context.Canceled); got != "canceled" {
		t.Fatalf("label = %q", got)
	}
}
