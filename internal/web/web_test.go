package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
)

// ============================================================================
// Bounding box parsing
// ============================================================================

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("13.3,52.4,13.5,52.6")
	if err != nil {
		t.Fatalf("parseBBox() error = %v", err)
	}
	if !close2(b.MinLon, 13.3) || !close2(b.MinLat, 52.4) || !close2(b.MaxLon, 13.5) || !close2(b.MaxLat, 52.6) {
		t.Errorf("bounds = %+v", b)
	}
}

func TestParseBBoxWithSpaces(t *testing.T) {
	if _, err := parseBBox("13.3, 52.4, 13.5, 52.6"); err != nil {
		t.Errorf("parseBBox() rejected spaced input: %v", err)
	}
}

func TestParseBBoxErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"too few components", "1,2,3"},
		{"too many components", "1,2,3,4,5"},
		{"not a number", "a,2,3,4"},
		{"latitude out of range", "13.3,95,13.5,96"},
		{"inverted horizontally", "13.5,52.4,13.3,52.6"},
		{"inverted vertically", "13.3,52.6,13.5,52.4"},
		{"too wide", "10,50,11,50.1"},
		{"too tall", "10,50,10.1,51"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseBBox(tt.raw); err == nil {
				t.Errorf("parseBBox(%q) accepted invalid input", tt.raw)
			}
		})
	}
}

func close2(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

// ============================================================================
// Error mapping
// ============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantPublic bool
	}{
		{"parse error", &diff.ParseError{Element: "node", Reason: "bad"}, http.StatusBadRequest, true},
		{"negotiation error", &core.NegotiationError{Element: "node", ID: -1}, http.StatusBadRequest, true},
		{"unresolved reference", &core.UnresolvedReferenceError{WayID: -1, Ref: -9}, http.StatusBadRequest, true},
		{"not found", &core.NotFoundError{Element: "way", ID: 4}, http.StatusNotFound, true},
		{"version conflict", &core.ConflictError{Element: "node", ID: 4}, http.StatusConflict, true},
		{"closed changeset", &core.ChangesetClosedError{ID: 2}, http.StatusConflict, true},
		{"blocked delete", &core.IntegrityError{NodeID: 4}, http.StatusPreconditionFailed, true},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, false},
		{"unknown", errors.New("pool exhausted"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, public := statusFor(tt.err)
			if status != tt.wantStatus || public != tt.wantPublic {
				t.Errorf("statusFor() = (%d, %v), want (%d, %v)", status, public, tt.wantStatus, tt.wantPublic)
			}
		})
	}
}

func TestStatusForOversizedBody(t *testing.T) {
	// MaxBytesReader failures surface mid-parse wrapped in a ParseError;
	// the size limit still wins over the generic bad-document status.
	_, err := diff.Parse(http.MaxBytesReader(nil, io.NopCloser(strings.NewReader("<osmChange>"+strings.Repeat(" ", 64)+"</osmChange>")), 16))
	if err == nil {
		t.Fatal("expected parse to fail on truncated body")
	}
	if status, _ := statusFor(err); status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d (error: %v)", status, http.StatusRequestEntityTooLarge, err)
	}
}

func TestStatusForWrappedError(t *testing.T) {
	err := errors.Join(errors.New("upload failed"), &core.ConflictError{Element: "node", ID: 1, Supplied: 1, Current: 2})
	if status, _ := statusFor(err); status != http.StatusConflict {
		t.Errorf("status = %d, want %d", status, http.StatusConflict)
	}
}

func TestRespondErrorMasksInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/0.6/changeset/1/upload", nil)

	respondError(rec, req, errors.New("dial tcp 10.0.0.5:5432: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Errorf("response leaked internal detail: %s", rec.Body.String())
	}
}

func TestRespondErrorToKeepsLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/0.6/changeset/1/upload", nil)
	logger := slog.Default().With("upload_id", "9c5f2c1e")

	respondErrorTo(rec, req, logger, &core.ConflictError{Element: "node", ID: 4, Supplied: 1, Current: 2})

	if !strings.Contains(buf.String(), "9c5f2c1e") {
		t.Errorf("failure log lost the upload id: %s", buf.String())
	}
}

// ============================================================================
// Rate limiting
// ============================================================================

func TestRateLimiterIgnoresClientHeaders(t *testing.T) {
	rl := &rateLimiter{visitors: make(map[string]*visitor), rate: 1, window: time.Minute}
	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Rotating X-Real-IP must not mint fresh buckets; the connection
	// address is the only identity.
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/api/0.6/map", nil)
		req.RemoteAddr = "203.0.113.9:4455"
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.0.%d", i))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("request %d status = %d, want %d", i, rec.Code, want)
		}
	}
}

// ============================================================================
// Result rendering
// ============================================================================

func TestDiffResultXML(t *testing.T) {
	rec := httptest.NewRecorder()
	writeXML(rec, http.StatusOK, diffResultXML(&core.UploadResult{
		Changeset: 7,
		Results: []core.OpResult{
			{Element: "node", Action: diff.Create, OldID: -1, NewID: 101, NewVersion: 1},
			{Element: "way", Action: diff.Modify, OldID: 55, NewID: 55, NewVersion: 3},
			{Element: "node", Action: diff.Delete, OldID: 102},
			{Element: "node", Action: diff.Delete, OldID: 103, NewID: 103, NewVersion: 2, Skipped: true},
		},
	}))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()

	for _, want := range []string{
		`<node old_id="-1" new_id="101" new_version="1">`,
		`<way old_id="55" new_id="55" new_version="3">`,
		`<node old_id="103" new_id="103" new_version="2">`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("diffResult missing %s\nbody:\n%s", want, body)
		}
	}

	// The plain delete row carries only the old id.
	if !strings.Contains(body, `<node old_id="102">`) {
		t.Errorf("deleted row should omit new_id and new_version\nbody:\n%s", body)
	}
}

func TestNodeXMLSortsTags(t *testing.T) {
	n := nodeXML(diff.Node{ID: 1, Lon: 2, Lat: 3, Version: 1, Tags: map[string]string{
		"zebra": "1", "amenity": "cafe", "name": "Corner",
	}})
	if len(n.Tags) != 3 || n.Tags[0].K != "amenity" || n.Tags[1].K != "name" || n.Tags[2].K != "zebra" {
		t.Errorf("tags = %+v, want sorted by key", n.Tags)
	}
}
