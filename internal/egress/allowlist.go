package egress

import (
	"net"
	"net/http"
	"strings"

	"anchoredit/engine/internal/llm"
)

// GeminiHost is the only host the model client may reach by default.
const GeminiHost = "generativelanguage.googleapis.com"

// AllowlistRoundTripper enforces HTTPS-only requests to a fixed host allowlist.
type AllowlistRoundTripper struct {
	Base      http.RoundTripper
	Allowlist map[string]bool
	OnBlocked func(host string)
}

// NewAllowlistRoundTripper returns a RoundTripper that enforces a host allowlist.
func NewAllowlistRoundTripper(base http.RoundTripper, hosts []string) *AllowlistRoundTripper {
	allowlist := make(map[string]bool, len(hosts))
	for _, host := range hosts {
		allowlist[strings.ToLower(host)] = true
	}
	return &AllowlistRoundTripper{Base: base, Allowlist: allowlist}
}

func (rt *AllowlistRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL == nil {
		return nil, llm.ErrEgressBlocked
	}
	host := req.URL.Hostname()
	if req.URL.Scheme != "https" || host == "" || net.ParseIP(host) != nil || !rt.Allowlist[strings.ToLower(host)] {
		if rt.OnBlocked != nil {
			rt.OnBlocked(host)
		}
		return nil, llm.ErrEgressBlocked
	}
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
