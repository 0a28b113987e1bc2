package provider

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// RetryPolicy bounds the attempt loop of a single provider call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds up to this fraction of the delay at random.
	Jitter float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the wait before retry n (0 based): BaseDelay*2^n capped at
// MaxDelay, plus jitter scaled by r in [0, 1).
func (p RetryPolicy) Delay(n int, r float64) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(2, float64(n))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * r
	}
	return time.Duration(delay)
}

// Decision is the retry classification of an error.
type Decision struct {
	Retryable bool
	Reason    string
}

// Classify decides whether a failed provider call is worth retrying.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Reason: "nil_error"}
	}
	if errors.Is(err, ErrRangeTooLarge) {
		return Decision{Reason: "range_too_large"}
	}
	if errors.Is(err, context.Canceled) {
		return Decision{Reason: "context_canceled"}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.StatusCode)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode)
	}
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		return Decision{Reason: "malformed_response"}
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if containsAny(strings.ToLower(providerErr.Message+" "+providerErr.Result), transientMessageTokens) {
			return Decision{Retryable: true, Reason: "provider_transient"}
		}
		return Decision{Reason: "provider_error"}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return classifyJSONRPCCode(rpcErr.ErrorCode(), err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Retryable: true, Reason: "deadline_exceeded"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Decision{Retryable: true, Reason: "net_timeout"}
	}

	if containsAny(strings.ToLower(err.Error()), transientMessageTokens) {
		return Decision{Retryable: true, Reason: "message_transient"}
	}
	return Decision{Reason: "unknown_terminal_default"}
}

func classifyStatus(code int) Decision {
	switch {
	case code == http.StatusTooManyRequests:
		return Decision{Retryable: true, Reason: "http_429"}
	case code >= 500:
		return Decision{Retryable: true, Reason: "http_5xx"}
	default:
		return Decision{Reason: "http_4xx"}
	}
}

func classifyJSONRPCCode(code int, err error) Decision {
	lower := strings.ToLower(err.Error())
	if containsAny(lower, rangeTooLargeTokens) {
		return Decision{Reason: "range_too_large"}
	}
	if code == -32603 || code == -32005 || containsAny(lower, transientMessageTokens) {
		return Decision{Retryable: true, Reason: "jsonrpc_transient"}
	}
	return Decision{Reason: "jsonrpc_terminal"}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
	"too many requests",
	"rate limit",
	"max calls per sec",
	"too busy",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}

var rangeTooLargeTokens = []string{
	"result window is too large",
	"query returned more than",
	"block range is too large",
	"exceed maximum block range",
	"response size exceeded",
}

// IsRangeTooLarge reports whether a provider message means the block range
// must be narrowed.
func IsRangeTooLarge(msg string) bool {
	return containsAny(strings.ToLower(msg), rangeTooLargeTokens)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
