package egress

import (
	"errors"
	"net/http"
	"testing"

	"anchoredit/engine/internal/llm"
)

type okTransport struct{ calls int }

func (t *okTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{StatusCode: http.StatusOK, Request: req, Body: http.NoBody}, nil
}

func TestAllowlistRoundTripper(t *testing.T) {
	base := &okTransport{}
	var blocked []string
	rt := NewAllowlistRoundTripper(base, []string{GeminiHost})
	rt.OnBlocked = func(host string) { blocked = append(blocked, host) }

	cases := []struct {
		url     string
		allowed bool
	}{
		{"https://generativelanguage.googleapis.com/v1beta/models", true},
		{"https://GenerativeLanguage.googleapis.com/v1beta/models", true},
		{"http://generativelanguage.googleapis.com/v1beta/models", false},
		{"https://example.com/", false},
		{"https://127.0.0.1/", false},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(http.MethodGet, tc.url, nil)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp, err := rt.RoundTrip(req)
		if tc.allowed {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", tc.url, err)
			}
			resp.Body.Close()
			continue
		}
		if !errors.Is(err, llm.ErrEgressBlocked) {
			t.Fatalf("%s: expected egress blocked, got %v", tc.url, err)
		}
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 forwarded requests, got %d", base.calls)
	}
	if len(blocked) != 3 {
		t.Fatalf("expected 3 blocked hosts, got %v", blocked)
	}
}
