package web

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"sort"

	"github.com/atlasmelt/mapedit/internal/core"
	"github.com/atlasmelt/mapedit/internal/diff"
)

// XML response shapes. Element and attribute names mirror the upload
// document grammar so clients read back what they write.

type xmlTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

type xmlNode struct {
	XMLName xml.Name `xml:"node"`
	ID      int64    `xml:"id,attr"`
	Lon     float64  `xml:"lon,attr"`
	Lat     float64  `xml:"lat,attr"`
	Version int64    `xml:"version,attr"`
	Tags    []xmlTag `xml:"tag"`
}

type xmlND struct {
	Ref int64 `xml:"ref,attr"`
}

type xmlWay struct {
	XMLName xml.Name `xml:"way"`
	ID      int64    `xml:"id,attr"`
	Version int64    `xml:"version,attr"`
	NDs     []xmlND  `xml:"nd"`
	Tags    []xmlTag `xml:"tag"`
}

type xmlBounds struct {
	MinLon float64 `xml:"minlon,attr"`
	MinLat float64 `xml:"minlat,attr"`
	MaxLon float64 `xml:"maxlon,attr"`
	MaxLat float64 `xml:"maxlat,attr"`
}

type xmlChangeset struct {
	XMLName    xml.Name   `xml:"changeset"`
	ID         int64      `xml:"id,attr"`
	Open       bool       `xml:"open,attr"`
	CreatedAt  string     `xml:"created_at,attr"`
	ClosedAt   string     `xml:"closed_at,attr,omitempty"`
	NumChanges int        `xml:"num_changes,attr"`
	Bounds     *xmlBounds `xml:"bounds"`
	Tags       []xmlTag   `xml:"tag"`
}

type osmDoc struct {
	XMLName    xml.Name       `xml:"osm"`
	Bounds     *xmlBounds     `xml:"bounds"`
	Changesets []xmlChangeset `xml:"changeset"`
	Nodes      []xmlNode      `xml:"node"`
	Ways       []xmlWay       `xml:"way"`
}

// diffEntry is one line of a diffResult. Deleted rows carry only old_id;
// everything else echoes the permanent id and resulting version.
type diffEntry struct {
	XMLName    xml.Name
	OldID      int64  `xml:"old_id,attr"`
	NewID      *int64 `xml:"new_id,attr"`
	NewVersion *int64 `xml:"new_version,attr"`
}

type diffResultDoc struct {
	XMLName xml.Name `xml:"diffResult"`
	Entries []diffEntry
}

func tagList(tags map[string]string) []xmlTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]xmlTag, len(keys))
	for i, k := range keys {
		out[i] = xmlTag{K: k, V: tags[k]}
	}
	return out
}

func nodeXML(n diff.Node) xmlNode {
	return xmlNode{ID: n.ID, Lon: n.Lon, Lat: n.Lat, Version: n.Version, Tags: tagList(n.Tags)}
}

func wayXML(w diff.Way) xmlWay {
	out := xmlWay{ID: w.ID, Version: w.Version, Tags: tagList(w.Tags)}
	for _, ref := range w.Refs {
		out.NDs = append(out.NDs, xmlND{Ref: ref})
	}
	return out
}

func diffResultXML(result *core.UploadResult) diffResultDoc {
	doc := diffResultDoc{Entries: make([]diffEntry, 0, len(result.Results))}
	for _, r := range result.Results {
		e := diffEntry{
			XMLName: xml.Name{Local: r.Element},
			OldID:   r.OldID,
		}
		if r.Action != diff.Delete || r.Skipped {
			newID, newVersion := r.NewID, r.NewVersion
			e.NewID = &newID
			e.NewVersion = &newVersion
		}
		doc.Entries = append(doc.Entries, e)
	}
	return doc
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("xml encode error", "error", err)
	}
}
