package recommend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	var gotAuth string
	var gotBody Request

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/recommendations" {
			t.Errorf("upstream got %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(Response{
			Recommendations: "Rest, hydrate, and consult a physician if symptoms persist.",
			Model:           "rec-v2",
		})
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key")
	out, err := c.Generate(context.Background(), &Request{
		DiseaseName: "influenza",
		Prior:       0.1,
		Posterior:   0.5,
		TestResult:  "positive",
		Language:    "en",
	})
	if err != nil {
		t.Fatal(err)
	}

	if out.Recommendations == "" {
		t.Error("empty recommendations")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.DiseaseName != "influenza" || gotBody.Posterior != 0.5 {
		t.Errorf("upstream body = %+v", gotBody)
	}
}

func TestGenerate_NoAuthHeaderWithoutKey(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization header set without an api key")
		}
		json.NewEncoder(w).Encode(Response{Recommendations: "ok"})
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "")
	if _, err := c.Generate(context.Background(), &Request{Language: "en"}); err != nil {
		t.Fatal(err)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "Upstream", "message": "model overloaded"})
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key")
	_, err := c.Generate(context.Background(), &Request{Language: "en"})
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "status 502") || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v", err)
	}
}

func TestGenerate_UpstreamErrorWithoutBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key")
	_, err := c.Generate(context.Background(), &Request{Language: "en"})
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}

func TestGenerate_EmptyResultIsAnError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Recommendations: ""})
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key")
	if _, err := c.Generate(context.Background(), &Request{Language: "en"}); err == nil {
		t.Error("want error for empty recommendations")
	}
}

func TestGenerate_ThrottleHonorsContext(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Response{Recommendations: "ok"})
	}))
	defer upstream.Close()

	// Burst of one: the second call must wait, and the cancelled context
	// must release it with an error instead of blocking.
	c := NewClient(upstream.URL, "test-key", WithRateLimit(0.01, 1))
	if _, err := c.Generate(context.Background(), &Request{Language: "en"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, &Request{Language: "en"})
	if err == nil {
		t.Fatal("want throttle error")
	}
	if !strings.Contains(err.Error(), "throttle") {
		t.Errorf("err = %v", err)
	}
}

func TestGenerate_SSRFGuardBlocksLoopback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("guarded client must never reach a loopback upstream")
	}))
	defer upstream.Close()

	c := NewClient(upstream.URL, "test-key", WithSSRFGuard())
	_, err := c.Generate(context.Background(), &Request{Language: "en"})
	if err == nil {
		t.Fatal("want dial error")
	}
	if !strings.Contains(err.Error(), "denied") {
		t.Errorf("err = %v", err)
	}
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	c := NewClient("http://example.test/", "k")
	if c.baseURL != "http://example.test" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}
