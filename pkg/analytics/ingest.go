package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/sitepulse/pkg/observability"
)

// MaxSessionIDLength bounds the client supplied session id
const MaxSessionIDLength = 128

// ErrValidation marks a malformed ingestion payload
var ErrValidation = errors.New("invalid event")

// ValidationError describes which field of the payload was rejected
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IngestRequest is the body of POST /events
type IngestRequest struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Validate checks the structural shape of the request and decodes its data.
// data may be absent or null; otherwise it must be a JSON object.
func (r IngestRequest) Validate() (EventType, map[string]interface{}, error) {
	t := EventType(r.Type)
	if r.Type == "" {
		return "", nil, &ValidationError{Field: "type", Reason: "required"}
	}
	if !t.Valid() {
		return "", nil, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown event type %q", r.Type)}
	}

	sid := strings.TrimSpace(r.SessionID)
	if sid == "" {
		return "", nil, &ValidationError{Field: "sessionId", Reason: "required"}
	}
	if len(sid) > MaxSessionIDLength {
		return "", nil, &ValidationError{Field: "sessionId", Reason: "too long"}
	}

	data := map[string]interface{}{}
	raw := bytes.TrimSpace(r.Data)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' {
			return "", nil, &ValidationError{Field: "data", Reason: "must be an object"}
		}
		if err := json.Unmarshal(raw, &data); err != nil {
			return "", nil, &ValidationError{Field: "data", Reason: "must be an object"}
		}
	}

	return t, data, nil
}

// Ingestor validates incoming events and appends them to the event log
type Ingestor struct {
	log     *EventLog
	clock   clockwork.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
	newID   func() string
}

// NewIngestor creates an ingestor writing to log. clock, logger and metrics may be nil.
func NewIngestor(log *EventLog, clock clockwork.Clock, logger *observability.Logger, metrics *observability.Metrics) *Ingestor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Ingestor{
		log:     log,
		clock:   clock,
		logger:  logger.Named("ingest"),
		metrics: metrics,
		newID:   uuid.NewString,
	}
}

// Ingest validates req and appends the resulting event. A validation failure
// returns an error wrapping ErrValidation and leaves the log untouched.
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest, rc RequestContext) (Event, error) {
	eventType, data, err := req.Validate()
	if err != nil {
		var vErr *ValidationError
		reason := "invalid"
		if errors.As(err, &vErr) {
			reason = vErr.Field
		}
		i.metrics.RecordRejected(reason)
		return Event{}, err
	}

	if ref, ok := data[AttrReferrer].(string); ok && ref != "" {
		rc.Referrer = ref
	}

	ev := Event{
		ID:        i.newID(),
		Type:      eventType,
		Timestamp: i.clock.Now().UTC(),
		SessionID: strings.TrimSpace(req.SessionID),
		Data:      data,
	}

	sess := i.log.Append(ev, rc)
	i.metrics.RecordIngested(string(ev.Type), i.log.Len(), i.log.SessionCount())

	observability.WithTraceContext(ctx, i.logger).WithFields(map[string]interface{}{
		"event_id":   ev.ID,
		"type":       ev.Type,
		"session_id": ev.SessionID,
		"page_views": sess.PageViews,
	}).Debug("event ingested")

	return ev, nil
}
