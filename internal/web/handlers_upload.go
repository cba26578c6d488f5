package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/atlasmelt/mapedit/internal/logging"
)

// handleUpload applies a diff document to an open changeset. The request
// body is the osmChange XML, optionally gzip-compressed; the response is the
// per-operation diffResult, in submission order. The whole call is one
// database transaction: when anything fails, nothing was applied.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	changesetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "changeset id must be an integer")
		return
	}

	uploadID := uuid.New().String()
	logger := logging.WithFields(r.Context(), "upload_id", uploadID, "changeset", changesetID)

	body, err := uploadBody(r, s.maxBodySize)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	defer body.Close()

	// The upload timeout bounds the transaction; hitting it rolls back and
	// surfaces as an abort, never as a partial write.
	ctx, cancel := context.WithTimeout(r.Context(), s.uploadTimeout)
	defer cancel()

	result, err := s.service.Upload(ctx, changesetID, body)
	if err != nil {
		respondErrorTo(w, r, logger, err)
		return
	}

	logger.Info("diff applied", "operations", len(result.Results))
	writeXML(w, http.StatusOK, diffResultXML(result))
}

// uploadBody returns the request body limited to the configured size and
// transparently decompressed when the client sent Content-Encoding: gzip.
func uploadBody(r *http.Request, maxBytes int64) (io.ReadCloser, error) {
	body := http.MaxBytesReader(nil, r.Body, maxBytes)

	if !strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		return body, nil
	}

	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, errors.New("body is not valid gzip")
	}
	return zr, nil
}
