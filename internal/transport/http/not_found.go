package http

import "net/http"

// NotFoundHandler is the catch-all for unmapped paths.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "not found"})
	})
}
