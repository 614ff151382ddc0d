package analytics

import (
	"strconv"
	"time"
)

// EventType is one of the fixed set of tracked interactions
type EventType string

const (
	EventPageView       EventType = "page_view"
	EventLeadFormView   EventType = "lead_form_view"
	EventLeadFormSubmit EventType = "lead_form_submit"
	EventSectionView    EventType = "section_view"
	EventButtonClick    EventType = "button_click"
)

var eventTypes = []EventType{
	EventPageView,
	EventLeadFormView,
	EventLeadFormSubmit,
	EventSectionView,
	EventButtonClick,
}

// EventTypes returns every accepted event type
func EventTypes() []EventType {
	return append([]EventType(nil), eventTypes...)
}

// Valid reports whether t is an accepted event type
func (t EventType) Valid() bool {
	for _, et := range eventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Well-known keys of Event.Data
const (
	AttrPage        = "page"
	AttrSection     = "section"
	AttrButton      = "button"
	AttrProjectType = "projectType"
	AttrViewport    = "viewport"
	AttrReferrer    = "referrer"
)

// Event is one ingested interaction. Events are never mutated after ingestion.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"sessionId"`
	Data      map[string]interface{} `json:"data"`
}

// Attr returns a scalar attribute as a string, or "" when absent
func (e Event) Attr(key string) string {
	switch v := e.Data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// SessionRecord summarises one browsing session
type SessionRecord struct {
	ID            string     `json:"id"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	PageViews     int        `json:"pageViews"`
	LandingPage   string     `json:"landingPage,omitempty"`
	UserAgent     string     `json:"userAgent"`
	Referrer      string     `json:"referrer"`
	SourceAddress string     `json:"sourceAddress"`
}

// Duration is the time between the first and last event of the session
func (s SessionRecord) Duration() time.Duration {
	if s.EndTime == nil || s.EndTime.Before(s.StartTime) {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// VisitorKey approximates a distinct visitor. Sessions without a source
// address count as their own visitor.
func (s SessionRecord) VisitorKey() string {
	if s.SourceAddress == "" {
		return "session:" + s.ID
	}
	return s.SourceAddress + "|" + s.UserAgent
}

// RequestContext is what the ingestion request reveals about the visitor
type RequestContext struct {
	UserAgent     string
	Referrer      string
	SourceAddress string
}
