package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completion(content string) string {
	body, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",`+
		`"choices":[{"index":0,"finish_reason":"stop","logprobs":null,"message":{"role":"assistant","content":%s,"refusal":null}}],`+
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c := New(
		WithBaseURL(srv.URL+"/"),
		WithInterval(time.Millisecond),
		WithRetry(3, time.Millisecond),
	)
	return c, &calls
}

func TestSummarizeMissingKey(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completion("never")))
	})

	resp := c.Summarize(context.Background(), Request{Text: "chapter", APIKey: "  "})
	if resp.Success || resp.Error == "" {
		t.Fatalf("resp = %+v, want failure", resp)
	}
	if calls.Load() != 0 {
		t.Errorf("request sent without a key")
	}
	if !errors.Is(resp.Err(), ErrSummarization) {
		t.Errorf("Err() = %v", resp.Err())
	}
}

func TestSummarize(t *testing.T) {
	var got chatRequest
	var auth string
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("  A short summary.  ")))
	})

	resp := c.Summarize(context.Background(), Request{
		Text:     "It was a dark and stormy night.",
		APIKey:   "sk-test",
		Language: "en",
	})
	if !resp.Success || resp.Summary != "A short summary." {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Err() != nil {
		t.Errorf("Err() = %v", resp.Err())
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != DefaultModel || got.MaxTokens != MaxTokens || got.Temperature != Temperature {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[0].Content, "summaries of book chapters") {
		t.Errorf("system prompt = %q", got.Messages[0].Content)
	}
	if !strings.HasSuffix(got.Messages[1].Content, "dark and stormy night.") {
		t.Errorf("user prompt = %q", got.Messages[1].Content)
	}
}

func TestSummarizeEmptyCompletion(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("   ")))
	})
	resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-test"})
	if !resp.Success || resp.Summary != EmptySummary {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSummarizeInvalidKey(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","param":null,"code":"invalid_api_key"}}`))
	})
	resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-bad"})
	if resp.Success || !strings.Contains(resp.Error, "Invalid OpenAI API key") {
		t.Errorf("resp = %+v", resp)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failures should not be retried, calls = %d", calls.Load())
	}
}

func TestSummarizeRetriesServerErrors(t *testing.T) {
	var failed atomic.Bool
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if failed.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"message":"server error","type":"server_error"}}`))
			return
		}
		w.Write([]byte(completion("Recovered.")))
	})

	resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-test"})
	if !resp.Success || resp.Summary != "Recovered." {
		t.Fatalf("resp = %+v", resp)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestSummarizeRateLimited(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	})
	resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-test"})
	if resp.Success || !strings.Contains(resp.Error, "rate limit") {
		t.Errorf("resp = %+v", resp)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3 attempts", calls.Load())
	}
}

func TestSummarizeConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(WithBaseURL(url+"/"), WithInterval(time.Millisecond), WithRetry(2, time.Millisecond))
	resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-test"})
	if resp.Success || !strings.Contains(resp.Error, "Could not connect") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSummarizeCanceled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completion("late")))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := c.Summarize(ctx, Request{Text: "x", APIKey: "sk-test"})
	if resp.Success {
		t.Errorf("resp = %+v, want failure", resp)
	}
}

func TestRequestPacing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("ok")))
	})
	WithInterval(60 * time.Millisecond)(c)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if resp := c.Summarize(context.Background(), Request{Text: "x", APIKey: "sk-test"}); !resp.Success {
			t.Fatalf("resp = %+v", resp)
		}
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("two requests took %v, want at least the pacing interval", elapsed)
	}
}

func TestTestKey(t *testing.T) {
	var got chatRequest
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completion("Hi")))
	})
	if resp := c.TestKey(context.Background(), "sk-test"); !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	if got.MaxTokens != 5 || len(got.Messages) != 1 || got.Messages[0].Content != "Test" {
		t.Errorf("request = %+v", got)
	}
	if resp := c.TestKey(context.Background(), ""); resp.Success {
		t.Error("empty key accepted")
	}
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", MaxInputChars)
	if Truncate(short) != short {
		t.Error("text at the limit was truncated")
	}
	long := strings.Repeat("é", MaxInputChars+500)
	got := Truncate(long)
	if len([]rune(got)) != MaxInputChars+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("Truncate length = %d", len([]rune(got)))
	}
}

func TestPrompts(t *testing.T) {
	pt, _ := Prompts("pt", "")
	unknown, user := Prompts("de", "body")
	if unknown != pt {
		t.Error("unknown language should fall back to Portuguese")
	}
	if !strings.HasSuffix(user, "\n\nbody") {
		t.Errorf("user = %q", user)
	}
	es, _ := Prompts("es", "")
	if !strings.Contains(es, "resúmenes") {
		t.Errorf("es = %q", es)
	}
	langs := Languages()
	if len(langs) != 3 || langs["en"] != "English" {
		t.Errorf("Languages() = %v", langs)
	}
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost(strings.Repeat("a", 4000))
	if cost.InputTokens != 1000 || cost.OutputTokens != 400 || cost.TotalTokens != 1400 {
		t.Errorf("tokens = %+v", cost)
	}
	if cost.USD != 0.0023 {
		t.Errorf("USD = %v, want 0.0023", cost.USD)
	}

	if cost := EstimateCost(strings.Repeat("a", 8000)); cost.BRL != 0.0209 {
		t.Errorf("BRL = %v, want 0.0209", cost.BRL)
	}
}
