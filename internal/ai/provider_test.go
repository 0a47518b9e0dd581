package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilgisen/feedcaster/internal/utils"
)

var fastRetry = RetryPolicy{Attempts: 3, Wait: time.Millisecond, MaxWait: 5 * time.Millisecond}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		code    string
		message string
		want    error
	}{
		{"rate limit", http.StatusTooManyRequests, "", "slow down", ErrRateLimited},
		{"not found status", http.StatusNotFound, "", "no such model", ErrModelUnavailable},
		{"model code", http.StatusBadRequest, "model_not_found", "gone", ErrModelUnavailable},
		{"decommissioned", http.StatusBadRequest, "model_decommissioned", "retired", ErrModelUnavailable},
		{"message only", http.StatusBadRequest, "", "The model `x` does not exist", ErrModelUnavailable},
		{"generic", http.StatusBadRequest, "invalid_request", "bad payload", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.status, tt.code, tt.message)
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && (errors.Is(err, ErrRateLimited) || errors.Is(err, ErrModelUnavailable)) {
				t.Errorf("Expected generic error, got %v", err)
			}
		})
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello there"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(utils.NewRestyClient(nil, 5*time.Second, ""), "secret", server.URL, fastRetry)
	out, err := client.Complete(context.Background(), Request{Model: "m1", System: "sys", User: "usr", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "Hello there" {
		t.Errorf("Unexpected output %q", out)
	}
	if got.Model != "m1" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "usr" {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestOpenAIClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit"}}`))
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(utils.NewRestyClient(nil, 5*time.Second, ""), "k", server.URL, fastRetry)
	out, err := client.Complete(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if out != "ok" || calls.Load() != 3 {
		t.Errorf("Expected 3 attempts and ok, got %d attempts and %q", calls.Load(), out)
	}
}

func TestOpenAIClientGivesUpAfterBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(utils.NewRestyClient(nil, 5*time.Second, ""), "k", server.URL, fastRetry)
	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestOpenAIClientModelNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"The model does not exist","code":"model_not_found"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(utils.NewRestyClient(nil, 5*time.Second, ""), "k", server.URL, fastRetry)
	_, err := client.Complete(context.Background(), Request{Model: "missing"})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Expected ErrModelUnavailable, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", calls.Load())
	}
}

func TestGeminiClientComplete(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gemini-2.0-flash:generateContent" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gk" {
			t.Errorf("Missing API key")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Part one. "},{"text":"Part two."}]}}]}`))
	}))
	defer server.Close()

	client := NewGeminiClient(utils.NewRestyClient(nil, 5*time.Second, ""), "gk", server.URL, fastRetry)
	out, err := client.Complete(context.Background(), Request{Model: "gemini-2.0-flash", System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "Part one. Part two." {
		t.Errorf("Unexpected output %q", out)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" || got.Contents[0].Parts[0].Text != "usr" {
		t.Errorf("Unexpected request: %+v", got)
	}
}

func TestGeminiClientUnknownModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"models/x is not found","status":"NOT_FOUND"}}`))
	}))
	defer server.Close()

	client := NewGeminiClient(utils.NewRestyClient(nil, 5*time.Second, ""), "gk", server.URL, fastRetry)
	if _, err := client.Complete(context.Background(), Request{Model: "x"}); !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("Expected ErrModelUnavailable, got %v", err)
	}
}
