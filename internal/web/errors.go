package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
	"github.com/atlasmelt/mapedit/internal/logging"
)

// statusFor maps engine error kinds to HTTP statuses. Anything unrecognized
// is treated as an internal failure and its detail stays server-side.
func statusFor(err error) (status int, public bool) {
	var (
		tooLarge      *http.MaxBytesError
		parseErr      *diff.ParseError
		negotiateErr  *core.NegotiationError
		unresolvedErr *core.UnresolvedReferenceError
		notFoundErr   *core.NotFoundError
		conflictErr   *core.ConflictError
		integrityErr  *core.IntegrityError
		closedErr     *core.ChangesetClosedError
	)

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, true
	case errors.As(err, &parseErr),
		errors.As(err, &negotiateErr),
		errors.As(err, &unresolvedErr):
		return http.StatusBadRequest, true
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, true
	case errors.As(err, &conflictErr), errors.As(err, &closedErr):
		return http.StatusConflict, true
	case errors.As(err, &integrityErr):
		return http.StatusPreconditionFailed, true
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, false
	default:
		return http.StatusInternalServerError, false
	}
}

// respondError logs the failure with its request id and writes a JSON error
// body. Engine errors are safe to echo; everything else gets a generic
// message so store internals never leak to clients.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorTo(w, r, logging.FromContext(r.Context()), err)
}

// respondErrorTo is respondError for handlers that already carry an enriched
// logger, so failures keep the same correlation fields as the success path.
func respondErrorTo(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, public := statusFor(err)

	logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
	)

	message := err.Error()
	if !public {
		message = http.StatusText(status)
	}
	writeErrorBody(w, status, message)
}

// badRequest reports a transport-level problem (unparseable URL parameter,
// unreadable body) without involving the engine error kinds.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"method", r.Method,
		"path", r.URL.Path,
		"reason", message,
	)
	writeErrorBody(w, http.StatusBadRequest, message)
}

func writeErrorBody(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
