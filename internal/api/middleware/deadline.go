package middleware

import (
	"net/http"
	"time"
)

// WriteDeadline extends the connection write deadline to d from the start of
// the request, overriding the server-wide WriteTimeout for slow routes such as
// a sync over many feeds. A non-positive d leaves the server default.
func WriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Recorders and other writers without deadline support keep the default.
			_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(d))
			next.ServeHTTP(w, r)
		})
	}
}
