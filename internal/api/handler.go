package api

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/loungeskip/loungeskip/internal/apperrors"
)

// Handler adapts handlers that return errors into http.Handler. Returned
// errors are normalized through the apperrors taxonomy before writing, so
// handlers can surface typed failures without touching the response writer.
type Handler func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler.
func (handler Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := handler(w, r); err != nil {
		WriteError(w, r, err)
	}
}

// RecovererMiddleware converts handler panics into INTERNAL_ERROR responses,
// logging the stack under the request id. http.ErrAbortHandler propagates so
// the server can drop the connection as usual.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			log.Printf("API: panic in %s %s (request %s): %v\n%s",
				r.Method, r.URL.Path, GetRequestID(r), recovered, debug.Stack())
			WriteError(w, r, apperrors.NewInternalError("internal server error"))
		}()
		next.ServeHTTP(w, r)
	})
}
