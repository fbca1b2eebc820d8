// Package audit provides structured audit logging for authentication and
// admin-access events.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	stepauth "github.com/stepauth/stepauth-go"
)

// Action names the auditable operations.
const (
	ActionLogin        = "login"
	ActionRegister     = "register"
	ActionLogout       = "logout"
	ActionRefresh      = "refresh"
	ActionCeremony     = "ceremony"
	ActionEnroll       = "enroll"
	ActionDeviceRevoke = "device_revoke"
	ActionGateDecision = "gate_decision"
)

// Result values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Event is one auditable occurrence.
type Event struct {
	Timestamp   time.Time            `json:"timestamp"`
	RequestID   string               `json:"request_id,omitempty"`
	UserID      string               `json:"user_id,omitempty"`
	DeviceID    string               `json:"device_id,omitempty"`
	Action      string               `json:"action"`
	Result      string               `json:"result"`
	FailureKind stepauth.FailureKind `json:"failure_kind,omitempty"`
	GateState   string               `json:"gate_state,omitempty"`
	Detail      string               `json:"detail,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers. Emission is
// asynchronous through a buffered queue; Close drains it.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	wg       sync.WaitGroup
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithSlogHandler adds a handler that mirrors events onto a structured
// logger at Info level.
func WithSlogHandler(l *slog.Logger) Option {
	return func(a *Logger) {
		a.AddHandler(func(e Event) {
			l.Info("audit",
				"action", e.Action,
				"result", e.Result,
				"user_id", e.UserID,
				"device_id", e.DeviceID,
				"failure_kind", string(e.FailureKind),
				"gate_state", e.GateState,
				"request_id", e.RequestID,
			)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(a *Logger) {
		a.AddHandler(h)
	}
}

// New creates an audit logger with buffered async emission.
// bufferSize defaults to 1000 when non-positive.
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		handlers: make([]Handler, 0),
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. The request ID is filled from
// the context when the event does not carry one.
func (l *Logger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = stepauth.RequestIDFromContext(ctx)
	}

	select {
	case l.queue <- event:
	case <-l.done:
		// Shutting down, event is dropped.
	}
}

// CeremonyFailure records a normalized ceremony failure.
func (l *Logger) CeremonyFailure(ctx context.Context, kind stepauth.FailureKind, err error) {
	event := Event{
		Action:      ActionCeremony,
		Result:      ResultFailure,
		FailureKind: kind,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(ctx, event)
}

// GateDecision records the view state the admin gate settled on.
func (l *Logger) GateDecision(ctx context.Context, state string, userID string) {
	l.Log(ctx, Event{
		Action:    ActionGateDecision,
		Result:    ResultSuccess,
		GateState: state,
		UserID:    userID,
	})
}

func (l *Logger) process() {
	defer l.wg.Done()

	for {
		select {
		case event := <-l.queue:
			for _, h := range l.handlers {
				h(event)
			}
		case <-l.done:
			// Drain remaining events.
			for {
				select {
				case event := <-l.queue:
					for _, h := range l.handlers {
						h(event)
					}
				default:
					return
				}
			}
		}
	}
}

// Close flushes pending events and stops the logger.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return nil
}

type contextKey string

const contextKeyLogger contextKey = "audit.logger"

// FromContext retrieves the audit logger from context.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKeyLogger).(*Logger)
	if !ok {
		return nil
	}
	return logger
}

// WithContext stores the audit logger in context.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger, logger)
}
