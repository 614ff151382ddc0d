package analytics

import (
	"net/url"
	"strings"
)

// Traffic source buckets
const (
	TrafficDirect   = "direct"
	TrafficOrganic  = "organic"
	TrafficSocial   = "social"
	TrafficPaid     = "paid"
	TrafficReferral = "referral"
)

// Device buckets
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

var searchEngines = []string{"google", "bing", "yahoo", "duckduckgo", "baidu", "yandex", "ecosia", "startpage"}

var socialNetworks = []string{"facebook", "instagram", "linkedin", "twitter", "reddit", "pinterest", "youtube", "tiktok", "threads"}

// socialHosts are short domains that do not carry the network's name
var socialHosts = []string{"t.co", "x.com", "lnkd.in", "fb.me", "m.me"}

// hostMatches reports whether any dot-separated label of host is in names
func hostMatches(host string, names []string) bool {
	for _, label := range strings.Split(host, ".") {
		for _, n := range names {
			if label == n {
				return true
			}
		}
	}
	return false
}

func isSocialHost(host string) bool {
	for _, h := range socialHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return hostMatches(host, socialNetworks)
}

// NormalizeTrafficSource buckets an upstream source/medium pair
func NormalizeTrafficSource(source, medium string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	m := strings.ToLower(strings.TrimSpace(medium))

	switch {
	case s == "(direct)" || m == "(none)" || (s == "" && m == ""):
		return TrafficDirect
	case strings.Contains(m, "organic"):
		return TrafficOrganic
	case strings.Contains(m, "cpc") || strings.Contains(m, "ppc") || strings.Contains(m, "paid"):
		return TrafficPaid
	case strings.Contains(m, "social") || isSocialHost(s):
		return TrafficSocial
	default:
		return TrafficReferral
	}
}

// ClassifyVisit buckets a locally recorded session from its referrer and
// landing page. Campaign parameters on the landing page win over the referrer.
func ClassifyVisit(referrer, landingPage string) string {
	if q := landingQuery(landingPage); q != nil {
		if q.Get("gclid") != "" || q.Get("msclkid") != "" {
			return TrafficPaid
		}
		if src, med := q.Get("utm_source"), q.Get("utm_medium"); src != "" || med != "" {
			return NormalizeTrafficSource(src, med)
		}
	}

	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return TrafficDirect
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return TrafficReferral
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	switch {
	case hostMatches(host, searchEngines):
		return TrafficOrganic
	case isSocialHost(host):
		return TrafficSocial
	default:
		return TrafficReferral
	}
}

func landingQuery(page string) url.Values {
	_, rawQuery, ok := strings.Cut(page, "?")
	if !ok {
		return nil
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil
	}
	return q
}

// NormalizeDevice lower-cases an upstream device category. Values outside
// desktop, mobile and tablet pass through unchanged.
func NormalizeDevice(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" || c == "(not set)" {
		return DeviceUnknown
	}
	return c
}

// DeviceFromUserAgent performs a best-effort device classification
func DeviceFromUserAgent(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return DeviceUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// BrowserFromUserAgent extracts a browser family name. Names match the
// upstream analytics vocabulary so both sources bucket the same way.
func BrowserFromUserAgent(ua string) string {
	ua = strings.ToLower(ua)
	switch {
	case ua == "":
		return "Unknown"
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/") || strings.Contains(ua, "edga/") || strings.Contains(ua, "edgios/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "samsungbrowser"):
		return "Samsung Internet"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return "Firefox"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios") || strings.Contains(ua, "chromium"):
		return "Chrome"
	case strings.Contains(ua, "safari"):
		return "Safari"
	default:
		return "Other"
	}
}
