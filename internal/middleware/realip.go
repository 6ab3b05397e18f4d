package middleware

import (
	"net/http"

	pkghttp "github.com/quicknotes/quicknotes/pkg/http"
)

// RealIP rewrites RemoteAddr to the client address resolved through the
// trusted proxy chain. It must run before anything keyed on RemoteAddr, such
// as rate limiting and request logging. Forwarding headers from untrusted
// peers are ignored.
func RealIP(ipCfg *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = pkghttp.ExtractClientIP(r, ipCfg)
			next.ServeHTTP(w, r)
		})
	}
}
