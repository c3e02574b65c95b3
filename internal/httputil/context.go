package httputil

import (
	"context"
	"net/http"
)

type contextKey string

// userIDKey carries the authenticated subject set by the auth middleware.
const userIDKey contextKey = "userID"

// WithUserID returns the request with the authenticated user id attached.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// GetUserID retrieves the authenticated user id, or "" on unauthenticated
// routes. Handlers behind the auth middleware can rely on it being set.
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
