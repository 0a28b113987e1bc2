package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 500*time.Millisecond, p.Delay(0, 0))
	assert.Equal(t, time.Second, p.Delay(1, 0))
	assert.Equal(t, 2*time.Second, p.Delay(2, 0))
	assert.Equal(t, 30*time.Second, p.Delay(10, 0))
	assert.Equal(t, 1100*time.Millisecond, p.Delay(1, 0.5))
	assert.Equal(t, 36*time.Second, p.Delay(20, 1))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"429", &StatusError{StatusCode: 429}, true},
		{"503", &StatusError{StatusCode: 503}, true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"range too large", fmt.Errorf("%w: window", ErrRangeTooLarge), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"net timeout", timeoutErr{}, true},
		{"schema", &SchemaError{Err: errors.New("bad json")}, false},
		{"provider rate limit", &ProviderError{Message: "NOTOK", Result: "Max rate limit reached"}, true},
		{"provider invalid key", &ProviderError{Message: "NOTOK", Result: "Invalid API Key"}, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unknown", errors.New("something odd"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, Classify(tc.err).Retryable)
		})
	}
}

func TestIsRangeTooLarge(t *testing.T) {
	assert.True(t, IsRangeTooLarge("Result window is too large, PageNo x Offset size must be less than or equal to 10000"))
	assert.True(t, IsRangeTooLarge("query returned more than 10000 results"))
	assert.False(t, IsRangeTooLarge("No records found"))
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]uint64{
		"0x":      0,
		"0x0":     0,
		"0x1a":    26,
		"0X10":    16,
		"12345":   12345,
		"":        0,
		" 0x2a0 ": 672,
	}
	for in, want := range cases {
		got, err := parseQuantity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseQuantity("0xzz")
	assert.Error(t, err)
	_, err = parseQuantity("-1")
	assert.Error(t, err)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	l := NewLimiter(1, 1, "test")
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterUnlimited(t *testing.T) {
	l := NewLimiter(0, 1, "test")
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))
}
