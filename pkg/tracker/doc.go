// Package tracker is the client-side instrumentation layer.
//
// A Tracker only emits events once a session id exists and the visitor has
// accepted analytics consent. Repeated events for the same type and scope are
// suppressed inside a debounce window. Dispatch is fire-and-forget:
//
//	t := tracker.New(consentMgr, allocator, tracker.NewHTTPSender(baseURL, nil), tracker.Config{})
//	t.TrackPageView("/pricing")
//	defer t.Wait(ctx)
//
// SectionObserver turns visibility callbacks into section_view events after a
// minimum dwell time.
package tracker
