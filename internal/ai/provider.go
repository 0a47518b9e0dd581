package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrModelUnavailable means the provider does not serve the requested model.
	ErrModelUnavailable = errors.New("ai: model unavailable")
	// ErrRateLimited means the provider rejected the call with a rate limit.
	ErrRateLimited = errors.New("ai: rate limited")
	// ErrEmptyResponse means the provider answered without any text.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// Request is one completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider is a text generation backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// RetryPolicy bounds provider retries. Waits double between attempts.
type RetryPolicy struct {
	Attempts int
	Wait     time.Duration
	MaxWait  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Wait: time.Second, MaxWait: 4 * time.Second}

// applyRetry retries transport errors, rate limits and server errors.
func applyRetry(client *resty.Client, p RetryPolicy) *resty.Client {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return client.
		SetRetryCount(p.Attempts - 1).
		SetRetryWaitTime(p.Wait).
		SetRetryMaxWaitTime(p.MaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
}

// classify maps a failed provider response onto the package errors.
func classify(status int, code, message string) error {
	lower := strings.ToLower(code + " " + message)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	case status == http.StatusNotFound,
		strings.Contains(lower, "model_not_found"),
		strings.Contains(lower, "model_decommissioned"),
		strings.Contains(lower, "model") && (strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist")):
		return fmt.Errorf("%w: %s", ErrModelUnavailable, message)
	default:
		return fmt.Errorf("ai: provider returned %d: %s", status, message)
	}
}
