package analytics

import (
	"net/http"

	"github.com/platinummonkey/sitepulse/pkg/httputil"
)

// RequestContextFromHTTP captures the transport metadata stored on sessions
func RequestContextFromHTTP(r *http.Request) RequestContext {
	return RequestContext{
		UserAgent:     r.UserAgent(),
		Referrer:      r.Referer(),
		SourceAddress: httputil.ClientIP(r),
	}
}
