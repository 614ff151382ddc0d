package analytics

import (
	"sort"
	"sync"
)

// EventLog is the process-local store of ingested events and their sessions.
// Its contents are lost on restart.
type EventLog struct {
	mu       sync.RWMutex
	events   []Event
	sessions map[string]*SessionRecord
}

// NewEventLog creates an empty event log
func NewEventLog() *EventLog {
	return &EventLog{sessions: make(map[string]*SessionRecord)}
}

// Append stores ev and creates or updates its session in a single step.
// The session is created on the first event for its id; only page_view
// events count towards PageViews.
func (l *EventLog) Append(ev Event, rc RequestContext) SessionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess, ok := l.sessions[ev.SessionID]
	if !ok {
		sess = &SessionRecord{
			ID:        ev.SessionID,
			StartTime: ev.Timestamp,
		}
		l.sessions[ev.SessionID] = sess
	}

	if ev.Type == EventPageView {
		sess.PageViews++
		if sess.LandingPage == "" {
			sess.LandingPage = ev.Attr(AttrPage)
		}
	}

	switch {
	case ev.Timestamp.Before(sess.StartTime):
		if sess.EndTime == nil {
			end := sess.StartTime
			sess.EndTime = &end
		}
		sess.StartTime = ev.Timestamp
	case ev.Timestamp.After(sess.StartTime):
		if sess.EndTime == nil || ev.Timestamp.After(*sess.EndTime) {
			end := ev.Timestamp
			sess.EndTime = &end
		}
	}

	if sess.UserAgent == "" {
		sess.UserAgent = rc.UserAgent
	}
	if sess.Referrer == "" {
		sess.Referrer = rc.Referrer
	}
	if sess.SourceAddress == "" {
		sess.SourceAddress = rc.SourceAddress
	}

	l.events = append(l.events, ev)
	return copySession(sess)
}

// Len returns the number of stored events
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// SessionCount returns the number of stored sessions
func (l *EventLog) SessionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// Events returns the events inside r in ingestion order
func (l *EventLog) Events(r DateRange) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, ev := range l.events {
		if r.Contains(ev.Timestamp) {
			out = append(out, ev)
		}
	}
	return out
}

// Sessions returns the sessions that started inside r, oldest first
func (l *EventLog) Sessions(r DateRange) []SessionRecord {
	l.mu.RLock()
	out := make([]SessionRecord, 0, len(l.sessions))
	for _, s := range l.sessions {
		if r.Contains(s.StartTime) {
			out = append(out, copySession(s))
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Session returns a single session by id
func (l *EventLog) Session(id string) (SessionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	if !ok {
		return SessionRecord{}, false
	}
	return copySession(s), true
}

func copySession(s *SessionRecord) SessionRecord {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return out
}
