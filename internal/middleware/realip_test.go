package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/quicknotes/quicknotes/pkg/http"
)

func remoteAddrEcho(t *testing.T) (http.Handler, *string) {
	t.Helper()
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
		w.WriteHeader(http.StatusOK)
	})
	return handler, &seen
}

func TestRealIP_IgnoresHeadersFromUntrustedPeer(t *testing.T) {
	inner, seen := remoteAddrEcho(t)
	handler := RealIP(&pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	req.Header.Set("X-Forwarded-For", "198.51.100.9")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.7", *seen)
}

func TestRealIP_HonorsTrustedProxy(t *testing.T) {
	inner, seen := remoteAddrEcho(t)
	handler := RealIP(&pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.1.2.3")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.9", *seen)
}
