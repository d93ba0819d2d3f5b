package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
	"github.com/kirillkom/normative-retrieval/internal/infrastructure/resilience"
	"github.com/nats-io/nats.go"
)

const (
	requestIDHeader       = "X-Request-ID"
	defaultHandlerTimeout = 45 * time.Second
	respondTimeout        = 5 * time.Second
)

// MessageObserver is told about every handled retrieval message.
type MessageObserver interface {
	StartMessage()
	FinishMessage(status string, duration time.Duration)
}

// Queue serves retrieval requests over NATS request-reply.
type Queue struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	executor   *resilience.Executor
	observer   MessageObserver
	logger     *slog.Logger

	// handlerTimeout bounds one message, including work that continues
	// while the subscription drains on shutdown.
	handlerTimeout time.Duration
}

type Options struct {
	QueueGroup           string
	HandlerTimeout       time.Duration
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Observer             MessageObserver
	Logger               *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
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
	handlerTimeout := options.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "retrieval-workers"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("normative-retrieval"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		subject:        subject,
		queueGroup:     queueGroup,
		executor:       options.ResilienceExecutor,
		observer:       options.Observer,
		logger:         logger,
		handlerTimeout: handlerTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// ServeRetrieval answers retrieval requests on the subject as part of the
// queue group until ctx is done, then drains the subscription and waits for
// the pending messages to be answered.
func (q *Queue) ServeRetrieval(ctx context.Context, retriever ports.Retriever) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		q.handleMessage(ctx, retriever, inboundMessage{
			subject:   msg.Subject,
			reply:     msg.Reply,
			requestID: msg.Header.Get(requestIDHeader),
			data:      msg.Data,
		}, msg.Respond)
	})
	if err != nil {
		return wrapTemporaryIfNeeded(fmt.Errorf("nats subscribe: %w", err))
	}

	if err := q.conn.Flush(); err != nil {
		return wrapTemporaryIfNeeded(fmt.Errorf("nats flush: %w", err))
	}

	<-ctx.Done()
	closed := sub.StatusChanged(nats.SubscriptionClosed)
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	drainWait := time.NewTimer(q.handlerTimeout + respondTimeout)
	defer drainWait.Stop()
	select {
	case <-closed:
	case <-drainWait.C:
		q.logger.Warn("nats_drain_timeout", slog.String("subject", q.subject))
	}
	if err := q.conn.FlushTimeout(respondTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type inboundMessage struct {
	subject   string
	reply     string
	requestID string
	data      []byte
}

// handleMessage answers one request. Work runs on a context detached from
// serveCtx so requests already accepted when shutdown starts still get their
// reply while the subscription drains; requests picked up after that point are
// answered with a canceled error without running.
func (q *Queue) handleMessage(serveCtx context.Context, retriever ports.Retriever, msg inboundMessage, respond func([]byte) error) {
	requestID := msg.requestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if msg.reply == "" {
		q.logger.Warn("nats_request_without_reply", slog.String("request_id", requestID))
		return
	}

	started := time.Now()
	if q.observer != nil {
		q.observer.StartMessage()
	}
	var (
		reply  []byte
		status string
	)
	if serveCtx.Err() != nil {
		reply, status = shutdownReply(), kindCanceled
	} else {
		msgCtx, cancel := context.WithTimeout(context.WithoutCancel(serveCtx), q.handlerTimeout)
		reply, status = HandleRetrieval(msgCtx, retriever, msg.data)
		cancel()
	}
	if q.observer != nil {
		q.observer.FinishMessage(status, time.Since(started))
	}

	respondCtx, cancel := context.WithTimeout(context.WithoutCancel(serveCtx), respondTimeout)
	defer cancel()
	err := q.executor.Execute(respondCtx, "nats_respond", func(_ context.Context) error {
		return respond(reply)
	}, classifyNATSError)
	if err != nil {
		q.logger.Error("nats_respond_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return
	}
	q.logger.Info("nats_request",
		slog.String("request_id", requestID),
		slog.String("subject", msg.subject),
		slog.String("status", status),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()))
}
