package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

var (
	_ ports.ScanEventPublisher  = (*Queue)(nil)
	_ ports.ScanEventSubscriber = (*Queue)(nil)
)

const (
	defaultQueueGroup   = "scan-workers"
	publishFlushTimeout = 2 * time.Second
)

// ScanEvent is the wire payload published by detectors.
type ScanEvent struct {
	SessionID       string    `json:"session_id"`
	DetectedClasses []string  `json:"detected_classes"`
	ObservedAt      time.Time `json:"observed_at,omitempty"`
}

type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	logger     *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = defaultQueueGroup
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("nutrition-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", errString(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		queueGroup: queueGroup,
		executor:   options.ResilienceExecutor,
		logger:     logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishScan(ctx context.Context, sessionID string, labels []string) error {
	payload, err := EncodeScanEvent(ScanEvent{
		SessionID:       sessionID,
		DetectedClasses: labels,
		ObservedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		// Short-lived publishers close right after publishing.
		if err := q.conn.FlushTimeout(publishFlushTimeout); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapPublishError(err)
	}
	return nil
}

// SubscribeScans blocks until ctx is done, dispatching each event to handler.
// Malformed payloads and handler failures are logged and dropped.
func (q *Queue) SubscribeScans(ctx context.Context, handler func(context.Context, string, []string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, string, []string) error) {
	event, err := DecodeScanEvent(data)
	if err != nil {
		q.logger.Warn("scan_event_invalid", "error", err.Error(), "bytes", len(data))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event.SessionID, event.DetectedClasses); err != nil {
		q.logger.Error("scan_event_failed", "session_id", event.SessionID, "error", err.Error())
	}
}

func EncodeScanEvent(event ScanEvent) ([]byte, error) {
	if event.SessionID == "" {
		return nil, errors.New("scan event: session_id is required")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal scan event: %w", err)
	}
	return data, nil
}

func DecodeScanEvent(data []byte) (ScanEvent, error) {
	var event ScanEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ScanEvent{}, fmt.Errorf("decode scan event: %w", err)
	}
	if event.SessionID == "" {
		return ScanEvent{}, errors.New("scan event: session_id is required")
	}
	return event, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
