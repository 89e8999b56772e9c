package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type assertError string

func (e assertError) Error() string { return string(e) }

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		resolver CountryLookup
		want     string
	}{
		{
			name: "cloudflare header wins",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "ir")
				r.Header.Set("X-Country-Code", "de")
			},
			want: "IR",
		},
		{
			name: "unknown cloudflare value skipped",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "XX")
				r.Header.Set("X-Country-Code", "tr")
			},
			want: "TR",
		},
		{
			name: "resolver fallback",
			resolver: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					t.Fatalf("unexpected ip: %s", ip)
				}
				return "ae", nil
			},
			want: "AE",
		},
		{
			name: "resolver error returns empty",
			resolver: func(ip string) (string, error) {
				return "", assertError("boom")
			},
			want: "",
		},
		{
			name: "no resolver",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			if tc.setup != nil {
				tc.setup(req)
			}
			if got := ResolveCountry(req, tc.resolver); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryMiddlewareStoresCode(t *testing.T) {
	var got string
	h := Country(func(string) (string, error) { return "ir", nil })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "5.160.0.1:5000"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "IR" {
		t.Fatalf("country = %q, want IR", got)
	}
}
