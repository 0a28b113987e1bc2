package alert

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject: subject, data: data})
	return nil
}

func testAlert() Alert {
	return Alert{
		Type:     AlertTypeContractFailed,
		ChainID:  56,
		Contract: "0x55d398326f99059ff775485246999027b3197955",
		Title:    "contract failed",
		Message:  "get_logs failed after 1 attempt(s) (non-retryable): http status 400",
		Fields:   map[string]string{"state": "FAILED"},
	}
}

func TestNATSAlerterPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	a := NewNATSAlerter(pub, "")

	require.NoError(t, a.Send(context.Background(), testAlert()))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, DefaultSubject, pub.msgs[0].subject)

	var got Alert
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, testAlert(), got)
}

func TestMultiAlerterFansOutAndCoolsDown(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	pub := &fakePublisher{}
	multi := NewMultiAlerter(time.Hour, nil, NewLogAlerter(zap.New(core)), NewNATSAlerter(pub, "alerts"))

	now := time.Unix(1_700_000_000, 0)
	multi.now = func() time.Time { return now }

	require.NoError(t, multi.Send(context.Background(), testAlert()))
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Len(t, pub.msgs, 1)
	assert.Equal(t, 1, logs.Len())

	other := testAlert()
	other.Contract = "0xother"
	require.NoError(t, multi.Send(context.Background(), other))
	assert.Len(t, pub.msgs, 2)

	now = now.Add(2 * time.Hour)
	require.NoError(t, multi.Send(context.Background(), testAlert()))
	assert.Len(t, pub.msgs, 3)
}

func TestMultiAlerterReturnsFirstError(t *testing.T) {
	failing := &fakePublisher{err: errors.New("nats down")}
	ok := &fakePublisher{}
	multi := NewMultiAlerter(0, zap.NewNop(), NewNATSAlerter(failing, "a"), NewNATSAlerter(ok, "b"))

	err := multi.Send(context.Background(), testAlert())
	assert.ErrorContains(t, err, "nats down")
	assert.Len(t, ok.msgs, 1)
}
