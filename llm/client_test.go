package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// testProvider speaks a trivial JSON protocol against httptest servers.
type testProvider struct {
	name string
}

func (p *testProvider) Name() string { return p.name }

func (p *testProvider) BuildURL(baseURL, _ string) string { return baseURL }

func (p *testProvider) SetHeaders(req *http.Request) {
	req.Header.Set("X-Test-Provider", p.name)
}

func (p *testProvider) BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error) {
	return json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
}

func (p *testProvider) ParseResponse(body []byte, model string) (*Response, error) {
	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse test response: %w", err))
	}
	return &Response{Content: parsed.Content, Model: model}, nil
}

func init() {
	RegisterProvider(&testProvider{name: "test"})
}

// fastRetries keeps test retry loops quick.
var fastRetries = RetryConfig{
	MaxAttempts:       3,
	BackoffBase:       time.Millisecond,
	BackoffMultiplier: 1,
	MaxBackoff:        time.Millisecond,
}

func testEndpoint(url string) EndpointConfig {
	return EndpointConfig{Provider: "test", BaseURL: url, Model: "test-model"}
}

func TestClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-Provider") != "test" {
			t.Error("provider headers were not applied")
		}
		fmt.Fprint(w, `{"content": "{\"action_type\": \"NAVIGATE\"}"}`)
	}))
	defer srv.Close()

	client := NewClient([]EndpointConfig{testEndpoint(srv.URL)}, WithRetryConfig(fastRetries))

	resp, err := client.Analyze(context.Background(), "test prompt", 0.1)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Content != `{"action_type": "NAVIGATE"}` {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Provider != "test" {
		t.Errorf("expected provider test, got %s", resp.Provider)
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"content": "ok"}`)
	}))
	defer srv.Close()

	client := NewClient([]EndpointConfig{testEndpoint(srv.URL)}, WithRetryConfig(fastRetries))

	resp, err := client.Analyze(context.Background(), "prompt", 0)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestClientFallsBackAcrossEndpoints(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"content": "from fallback"}`)
	}))
	defer good.Close()

	client := NewClient(
		[]EndpointConfig{testEndpoint(bad.URL), testEndpoint(good.URL)},
		WithRetryConfig(fastRetries),
	)

	resp, err := client.Analyze(context.Background(), "prompt", 0)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestClientFatalErrorStopsFallback(t *testing.T) {
	var fallbackCalled atomic.Bool

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fallbackCalled.Store(true)
		fmt.Fprint(w, `{"content": "should not be reached"}`)
	}))
	defer fallback.Close()

	client := NewClient(
		[]EndpointConfig{testEndpoint(unauthorized.URL), testEndpoint(fallback.URL)},
		WithRetryConfig(fastRetries),
	)

	_, err := client.Analyze(context.Background(), "prompt", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if fallbackCalled.Load() {
		t.Error("fatal error should not trigger fallback endpoints")
	}
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient([]EndpointConfig{{Provider: "nope", Model: "m"}})
	_, err := client.Analyze(context.Background(), "prompt", 0)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !IsFatal(err) {
		t.Errorf("unknown provider should be fatal, got %v", err)
	}
}

func TestClientContextCancellation(t *testing.T) {
	// The handler outlives the client deadline but always returns, so the
	// deferred server shutdown cannot hang on an in-flight request.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	client := NewClient([]EndpointConfig{testEndpoint(srv.URL)}, WithRetryConfig(fastRetries))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Analyze(ctx, "prompt", 0)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Analyze did not honor the deadline, took %v", elapsed)
	}
}
