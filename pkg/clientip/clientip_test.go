package clientip_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/launchpad/pkg/clientip"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		trusted []string
		want    string
	}{
		{"remote addr", nil, "203.0.113.7:4242", clientip.DefaultHeaders, "203.0.113.7"},
		{"remote addr without port", nil, "203.0.113.7", clientip.DefaultHeaders, "203.0.113.7"},
		{"cloudflare wins", map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Real-IP": "198.51.100.2"}, "10.0.0.1:1", clientip.DefaultHeaders, "198.51.100.1"},
		{"forwarded list skips garbage", map[string]string{"X-Forwarded-For": "unknown, 198.51.100.3, 10.0.0.2"}, "10.0.0.1:1", clientip.DefaultHeaders, "198.51.100.3"},
		{"invalid header falls through", map[string]string{"X-Real-IP": "not-an-ip"}, "10.0.0.1:1", clientip.DefaultHeaders, "10.0.0.1"},
		{"headers ignored when untrusted", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:1", nil, "10.0.0.1"},
		{"ipv4 mapped ipv6", nil, "[::ffff:192.0.2.9]:80", nil, "192.0.2.9"},
		{"ipv6", map[string]string{"X-Real-IP": "2001:db8::1"}, "10.0.0.1:1", clientip.DefaultHeaders, "2001:db8::1"},
		{"garbage remote", nil, "nonsense", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientip.Resolve(r, tt.trusted...))
		})
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var got string
	h := clientip.Middleware(clientip.DefaultHeaders...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = clientip.FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.8")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "198.51.100.8", got)
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := clientip.LoggerExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(clientip.WithContext(context.Background(), "192.0.2.1"))
	assert.True(t, ok)
	assert.Equal(t, "client_ip", attr.Key)
	assert.Equal(t, "192.0.2.1", attr.Value.String())
}
