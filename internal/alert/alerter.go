package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventScope/internal/metrics"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	AlertTypeContractFailed AlertType = "CONTRACT_FAILED"
	AlertTypeRunFailed      AlertType = "RUN_FAILED"
)

// Alert represents a single alert event.
type Alert struct {
	Type     AlertType         `json:"type"`
	ChainID  uint64            `json:"chain_id"`
	Contract string            `json:"contract_address,omitempty"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans out alerts to multiple channels. Alerts with the same
// type and contract are suppressed for the cooldown period.
type MultiAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *zap.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiAlerter{
		alerters: alerters,
		cooldown: cooldown,
		logger:   logger.With(zap.String("component", "alerter")),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%d:%s", a.Type, a.ChainID, a.Contract)
}

// Send dispatches alert to all channels and returns the first channel error.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)

	m.mu.Lock()
	now := m.now()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", zap.String("key", key))
		return nil
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	var firstErr error
	for _, a := range m.alerters {
		channel := alerterName(a)
		if err := a.Send(ctx, alert); err != nil {
			metrics.AlertsSent.WithLabelValues(channel, "error").Inc()
			m.logger.Warn("alert send failed",
				zap.String("channel", channel),
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.AlertsSent.WithLabelValues(channel, "ok").Inc()
	}
	return firstErr
}

func alerterName(a Alerter) string {
	switch a.(type) {
	case *LogAlerter:
		return "log"
	case *NATSAlerter:
		return "nats"
	default:
		return "unknown"
	}
}

// LogAlerter writes alerts to the structured log.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	fields := []zap.Field{
		zap.String("type", string(alert.Type)),
		zap.Uint64("chain_id", alert.ChainID),
		zap.String("contract", alert.Contract),
		zap.String("message", alert.Message),
	}
	for k, v := range alert.Fields {
		fields = append(fields, zap.String(k, v))
	}
	l.logger.Error(alert.Title, fields...)
	return nil
}
