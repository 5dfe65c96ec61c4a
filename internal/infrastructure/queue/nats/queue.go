package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/care-assistant/internal/core/domain"
	"github.com/kirillkom/care-assistant/internal/core/ports"
	"github.com/kirillkom/care-assistant/internal/infrastructure/resilience"
)

const (
	workerQueueGroup = "scheduler-workers"
	headerMsgID      = "Nats-Msg-Id"
	headerActionKind = "Care-Action-Kind"
)

var (
	_ ports.ActionNotifier   = (*Bus)(nil)
	_ ports.SchedulerTrigger = (*Bus)(nil)
)

// RunRequest asks a worker to start a scheduler run out of band.
type RunRequest struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Bus publishes scheduler actions and carries run requests to workers.
type Bus struct {
	conn           *nats.Conn
	actionSubject  string
	triggerSubject string
	executor       *resilience.Executor
	logger         *slog.Logger
}

type Options struct {
	ActionSubject        string
	TriggerSubject       string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func Connect(url string, options Options) (*Bus, error) {
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
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("care-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newBus(conn, options, logger), nil
}

func newBus(conn *nats.Conn, options Options, logger *slog.Logger) *Bus {
	return &Bus{
		conn:           conn,
		actionSubject:  options.ActionSubject,
		triggerSubject: options.TriggerSubject,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// PublishAction sends the event as JSON. The message id header lets a
// JetStream stream drop redeliveries of the same action.
func (b *Bus) PublishAction(ctx context.Context, event domain.ActionEvent) error {
	msg, err := actionMessage(b.actionSubject, event)
	if err != nil {
		return err
	}
	return b.publish(ctx, "nats.publish_action", msg)
}

// RequestRun asks the worker pool to run the scheduler.
func (b *Bus) RequestRun(ctx context.Context, requestedBy string) error {
	payload, err := json.Marshal(RunRequest{RequestedBy: requestedBy, RequestedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	return b.publish(ctx, "nats.request_run", &nats.Msg{Subject: b.triggerSubject, Data: payload})
}

func (b *Bus) publish(ctx context.Context, operation string, msg *nats.Msg) error {
	call := func(_ context.Context) error {
		if err := b.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if b.executor != nil {
		err = b.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeRunRequests delivers run requests to handler until ctx ends.
// Workers share a queue group, so each request is handled by one worker.
func (b *Bus) SubscribeRunRequests(ctx context.Context, handler func(context.Context, RunRequest) error) error {
	sub, err := b.conn.QueueSubscribe(b.triggerSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		req, err := decodeRunRequest(msg.Data)
		if err != nil {
			b.logger.Warn("run_request_rejected", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			b.logger.Error("run_request_failed", "requested_by", req.RequestedBy, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func actionMessage(subject string, event domain.ActionEvent) (*nats.Msg, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal action event: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	msg.Header.Set(headerMsgID, event.RunID+":"+string(event.Kind)+":"+event.RecordID)
	msg.Header.Set(headerActionKind, string(event.Kind))
	return msg, nil
}

func decodeRunRequest(data []byte) (RunRequest, error) {
	var req RunRequest
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return RunRequest{}, fmt.Errorf("decode run request: %w", err)
	}
	return req, nil
}
