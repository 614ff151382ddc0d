package analytics

import (
	"context"
	"strings"
	"time"
)

// UnspecifiedProjectType buckets leads submitted without a project type
const UnspecifiedProjectType = "unspecified"

// Lead is a captured contact request
type Lead struct {
	ID          string    `json:"id"`
	ProjectType string    `json:"projectType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LeadSource lists the leads created inside a date range
type LeadSource interface {
	Leads(ctx context.Context, r DateRange) ([]Lead, error)
}

// EventLeadSource derives leads from lead_form_submit events
type EventLeadSource struct {
	log *EventLog
}

// NewEventLeadSource creates a lead source over log
func NewEventLeadSource(log *EventLog) *EventLeadSource {
	return &EventLeadSource{log: log}
}

func (s *EventLeadSource) Leads(_ context.Context, r DateRange) ([]Lead, error) {
	var leads []Lead
	for _, ev := range s.log.Events(r) {
		if ev.Type != EventLeadFormSubmit {
			continue
		}
		leads = append(leads, Lead{
			ID:          ev.ID,
			ProjectType: ev.Attr(AttrProjectType),
			CreatedAt:   ev.Timestamp,
		})
	}
	return leads, nil
}

// leadMetrics computes the lead block against the session count of the
// source the rest of the summary came from
func leadMetrics(leads []Lead, sessions int64) LeadMetrics {
	byType := make(map[string]int64)
	for _, l := range leads {
		pt := strings.TrimSpace(l.ProjectType)
		if pt == "" {
			pt = UnspecifiedProjectType
		}
		byType[pt]++
	}

	total := int64(len(leads))
	return LeadMetrics{
		Total:          total,
		ConversionRate: ratePercent(total, sessions),
		ByProjectType:  breakdown(countMap(byType)),
	}
}
