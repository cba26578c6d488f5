package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang/geo/s2"

	"github.com/atlasmelt/mapedit/internal/core"
)

// maxBBoxDegrees caps each side of a map query window.
const maxBBoxDegrees = 0.5

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "node id must be an integer")
		return
	}

	n, err := s.service.GetNode(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, osmDoc{Nodes: []xmlNode{nodeXML(*n)}})
}

func (s *Server) handleGetWay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "way id must be an integer")
		return
	}

	way, err := s.service.GetWay(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeXML(w, http.StatusOK, osmDoc{Ways: []xmlWay{wayXML(*way)}})
}

// handleGetWayFull returns the way plus every node it references, so an
// editor can render the path without follow-up lookups.
func (s *Server) handleGetWayFull(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, r, "way id must be an integer")
		return
	}

	way, nodes, err := s.service.GetWayFull(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	doc := osmDoc{Ways: []xmlWay{wayXML(*way)}}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, nodeXML(n))
	}
	writeXML(w, http.StatusOK, doc)
}

// handleMap returns all nodes in a bounding box plus the ways touching them.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}

	nodes, ways, err := s.service.Map(r.Context(), bounds)
	if err != nil {
		respondError(w, r, err)
		return
	}

	doc := osmDoc{
		Bounds: &xmlBounds{
			MinLon: bounds.MinLon, MinLat: bounds.MinLat,
			MaxLon: bounds.MaxLon, MaxLat: bounds.MaxLat,
		},
	}
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, nodeXML(n))
	}
	for _, way := range ways {
		doc.Ways = append(doc.Ways, wayXML(way))
	}
	writeXML(w, http.StatusOK, doc)
}

// parseBBox parses "left,bottom,right,top" in decimal degrees and validates
// it as a spherical rectangle.
func parseBBox(raw string) (core.Bounds, error) {
	if raw == "" {
		return core.Bounds{}, fmt.Errorf("bbox query parameter is required")
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return core.Bounds{}, fmt.Errorf("bbox must be left,bottom,right,top")
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.Bounds{}, fmt.Errorf("bbox component %q is not a number", p)
		}
		vals[i] = v
	}
	left, bottom, right, top := vals[0], vals[1], vals[2], vals[3]

	rect := s2.RectFromLatLng(s2.LatLngFromDegrees(bottom, left))
	rect = rect.AddPoint(s2.LatLngFromDegrees(top, right))
	if !rect.IsValid() {
		return core.Bounds{}, fmt.Errorf("bbox coordinates out of range")
	}
	if left > right || bottom > top {
		return core.Bounds{}, fmt.Errorf("bbox is inverted")
	}

	size := rect.Size()
	if size.Lng.Degrees() > maxBBoxDegrees || size.Lat.Degrees() > maxBBoxDegrees {
		return core.Bounds{}, fmt.Errorf("bbox larger than %v degrees per side", maxBBoxDegrees)
	}

	lo, hi := rect.Lo(), rect.Hi()
	return core.Bounds{
		MinLon: lo.Lng.Degrees(), MinLat: lo.Lat.Degrees(),
		MaxLon: hi.Lng.Degrees(), MaxLat: hi.Lat.Degrees(),
	}, nil
}
