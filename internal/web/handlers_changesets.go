package web

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
)

// handleCreateChangeset opens a new changeset. The optional body is an
// <osm><changeset><tag .../></changeset></osm> document; the response body
// is the new changeset id, matching what map editors expect.
func (s *Server) handleCreateChangeset(w http.ResponseWriter, r *http.Request) {
	tags := map[string]string{}

	if r.ContentLength != 0 {
		body := http.MaxBytesReader(nil, r.Body, s.maxBodySize)
		parsed, err := parseChangesetTags(body)
		if err != nil {
			respondError(w, r, err)
			return
		}
		tags = parsed
	}

	id, err := s.service.CreateChangeset(r.Context(), tags)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d", id)
}

func (s *Server) handleGetChangeset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "changeset id must be an integer")
		return
	}

	cs, err := s.service.GetChangeset(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeXML(w, http.StatusOK, osmDoc{Changesets: []xmlChangeset{changesetXML(cs)}})
}

func (s *Server) handleCloseChangeset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "changeset id must be an integer")
		return
	}

	if err := s.service.CloseChangeset(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func changesetXML(cs *core.Changeset) xmlChangeset {
	out := xmlChangeset{
		ID:         cs.ID,
		Open:       cs.Open,
		CreatedAt:  cs.CreatedAt.UTC().Format(time.RFC3339),
		NumChanges: cs.NumChanges,
		Tags:       tagList(cs.Tags),
	}
	if cs.ClosedAt != nil {
		out.ClosedAt = cs.ClosedAt.UTC().Format(time.RFC3339)
	}
	if cs.Bounds != nil {
		out.Bounds = &xmlBounds{
			MinLon: cs.Bounds.MinLon, MinLat: cs.Bounds.MinLat,
			MaxLon: cs.Bounds.MaxLon, MaxLat: cs.Bounds.MaxLat,
		}
	}
	return out
}

// parseChangesetTags pulls the tag pairs out of a changeset-create body.
func parseChangesetTags(r io.Reader) (map[string]string, error) {
	var doc struct {
		Changeset struct {
			Tags []struct {
				K string `xml:"k,attr"`
				V string `xml:"v,attr"`
			} `xml:"tag"`
		} `xml:"changeset"`
	}
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &diff.ParseError{Element: "changeset", Reason: "malformed XML: " + err.Error()}
	}

	tags := make(map[string]string, len(doc.Changeset.Tags))
	for _, t := range doc.Changeset.Tags {
		tags[t.K] = t.V
	}
	return tags, nil
}
