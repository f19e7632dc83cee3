package middleware

import (
	"context"
	"net/http"
	"strings"

	"blueprint/internal/blueprint"
)

// Identity headers set by the authenticating proxy in front of the gateway.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

type requesterKey struct{}

// Identity attaches the caller identity from the proxy headers. Requests
// without a user id pass through unauthenticated.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithRequester(r.Context(), blueprint.Requester{
			UserID:      id,
			Email:       strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithRequester(ctx context.Context, r blueprint.Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFrom returns the caller identity, if any.
func RequesterFrom(ctx context.Context) (blueprint.Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(blueprint.Requester)
	return r, ok && r.UserID != ""
}
