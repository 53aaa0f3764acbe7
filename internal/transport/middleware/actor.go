package middleware

import (
	"net/http"

	internal "github.com/Kirachon/dsr-payment-service/internal"
)

// Actor records who performed a request. The gateway in front of this
// service resolves authentication and forwards the caller identity in
// X-Actor-ID; requests without the header are attributed to the system
// actor.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-ID")
		if actor == "" {
			actor = internal.SystemActor
		}

		ctx := internal.ContextWithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
