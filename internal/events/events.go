// Package events publishes account lifecycle notifications.
//
// Events carry the account id and, for updates, the names of the changed
// fields. They never carry passwords, hashes, tokens, or profile values.
// Delivery is best effort: a failing sink is logged and skipped.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies what happened to an account.
type Type string

const (
	TypeRegistered Type = "account.registered"
	TypeLoggedIn   Type = "account.logged_in"
	TypeUpdated    Type = "account.updated"
	TypeDeleted    Type = "account.deleted"
)

// Event is a single account lifecycle notification.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     string    `json:"user_id"`
	Fields     []string  `json:"fields,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType Type, userID string, fields ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Fields:     fields,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink receives events.
type Sink interface {
	Name() string
	Write(ctx context.Context, event Event) error
}

// DefaultSinkTimeout bounds a single sink write.
const DefaultSinkTimeout = 2 * time.Second

// Emitter fans events out to sinks.
type Emitter struct {
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration
}

// NewEmitter constructs an Emitter. With no sinks, Emit is a no-op.
func NewEmitter(logger *zap.Logger, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{sinks: sinks, logger: logger, timeout: DefaultSinkTimeout}
}

// Emit delivers event to every sink in turn, on the caller's goroutine.
// Each write gets its own deadline and ignores cancellation of ctx, so a
// slow broker adds at most the timeout per sink to the request. Sink
// failures are logged, not returned.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, sink := range e.sinks {
		if err := e.write(base, sink, event); err != nil {
			e.logger.Warn("account event not delivered",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
		}
	}
}

func (e *Emitter) write(ctx context.Context, sink Sink, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return sink.Write(ctx, event)
}

// Backend is a message broker that events can be published to.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// BrokerSink publishes events as JSON to a broker channel.
type BrokerSink struct {
	backend Backend
	channel string
}

// NewBrokerSink constructs a BrokerSink for channel.
func NewBrokerSink(backend Backend, channel string) *BrokerSink {
	return &BrokerSink{backend: backend, channel: channel}
}

func (s *BrokerSink) Name() string {
	return "broker:" + s.channel
}

func (s *BrokerSink) Write(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.backend.Publish(ctx, s.channel, data, map[string]string{
		"event_type": string(event.Type),
		"event_id":   event.ID,
	})
	return err
}

// ObjectWriter stores objects by key.
type ObjectWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ArchiveSink writes each event as a JSON object, giving an append-only
// audit trail partitioned by day.
type ArchiveSink struct {
	store  ObjectWriter
	prefix string
}

// NewArchiveSink constructs an ArchiveSink writing under prefix.
func NewArchiveSink(store ObjectWriter, prefix string) *ArchiveSink {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "account-events"
	}
	return &ArchiveSink{store: store, prefix: prefix}
}

func (s *ArchiveSink) Name() string {
	return "archive:" + s.prefix
}

func (s *ArchiveSink) Write(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.store.Put(ctx, ArchiveKey(s.prefix, event), data, "application/json")
}

// ArchiveKey returns prefix/YYYY/MM/DD/<id>.json for event.
func ArchiveKey(prefix string, event Event) string {
	return fmt.Sprintf("%s/%s/%s.json", prefix, event.OccurredAt.UTC().Format("2006/01/02"), event.ID)
}
