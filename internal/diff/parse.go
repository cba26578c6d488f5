package diff

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ParseError reports a malformed edit document. Element names the offending
// element; ID carries the element's id when it was readable. When the
// failure came from the underlying reader or XML decoder, the original error
// is wrapped so callers can still detect it with errors.As.
type ParseError struct {
	Element string
	ID      int64
	Reason  string
	err     error
}

func (e *ParseError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("parse <%s> id %d: %s", e.Element, e.ID, e.Reason)
	}
	return fmt.Sprintf("parse <%s>: %s", e.Element, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.err }

func parseErr(element string, id int64, format string, args ...any) error {
	return &ParseError{Element: element, ID: id, Reason: fmt.Sprintf(format, args...)}
}

func parseWrap(element string, id int64, err error) error {
	return &ParseError{Element: element, ID: id, Reason: "malformed XML: " + err.Error(), err: err}
}

// Parse reads an osmChange document and returns its operations ordered for
// application: every create first, then every modify, then every delete, each
// group in document order. This ordering is a contract the rest of the engine
// relies on. A way created in the batch may reference nodes created earlier
// in the same document, so creates must be applied before anything that can
// point at them. Operation.Index preserves each element's original document
// position.
func Parse(r io.Reader) ([]Operation, error) {
	dec := xml.NewDecoder(r)

	var creates, modifies, deletes []Operation
	index := 0
	sawRoot := false
	rootClosed := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, parseWrap("osmChange", 0, err)
		}

		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "osmChange" {
			rootClosed = true
			continue
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if rootClosed {
			return nil, parseErr(start.Name.Local, 0, "content after closing </osmChange>")
		}

		if !sawRoot {
			if start.Name.Local != "osmChange" {
				return nil, parseErr(start.Name.Local, 0, "expected root element <osmChange>")
			}
			sawRoot = true
			continue
		}

		var action Action
		switch start.Name.Local {
		case "create":
			action = Create
		case "modify":
			action = Modify
		case "delete":
			action = Delete
		default:
			return nil, parseErr(start.Name.Local, 0, "unrecognized change block")
		}

		blockIfUnused := hasFlag(start.Attr, "if-unused")

		ops, err := parseBlock(dec, start, action, blockIfUnused, &index)
		if err != nil {
			return nil, err
		}

		switch action {
		case Create:
			creates = append(creates, ops...)
		case Modify:
			modifies = append(modifies, ops...)
		case Delete:
			deletes = append(deletes, ops...)
		}
	}

	if !sawRoot {
		return nil, parseErr("osmChange", 0, "empty document")
	}

	out := make([]Operation, 0, len(creates)+len(modifies)+len(deletes))
	out = append(out, creates...)
	out = append(out, modifies...)
	out = append(out, deletes...)
	return out, nil
}

// parseBlock consumes one <create>/<modify>/<delete> block.
func parseBlock(dec *xml.Decoder, block xml.StartElement, action Action, blockIfUnused bool, index *int) ([]Operation, error) {
	var ops []Operation

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, parseWrap(block.Name.Local, 0, err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == block.Name.Local {
				return ops, nil
			}

		case xml.StartElement:
			op := Operation{
				Action:   action,
				Index:    *index,
				IfUnused: blockIfUnused || hasFlag(t.Attr, "if-unused"),
			}
			*index++

			switch t.Name.Local {
			case "node":
				n, err := parseNode(dec, t, action)
				if err != nil {
					return nil, err
				}
				op.Node = n
			case "way":
				w, err := parseWay(dec, t, action)
				if err != nil {
					return nil, err
				}
				op.Way = w
			default:
				return nil, parseErr(t.Name.Local, 0, "unrecognized element in <%s> block", block.Name.Local)
			}

			ops = append(ops, op)
		}
	}
}

func parseNode(dec *xml.Decoder, start xml.StartElement, action Action) (*Node, error) {
	n := &Node{Tags: map[string]string{}}

	id, err := requireInt(start, "node", 0, "id")
	if err != nil {
		return nil, err
	}
	n.ID = id

	if action != Create {
		if n.Version, err = requireInt(start, "node", id, "version"); err != nil {
			return nil, err
		}
	}

	// Deletes only need identity and version; coordinates matter for
	// creates and modifies.
	if action != Delete {
		if n.Lon, err = requireFloat(start, "node", id, "lon"); err != nil {
			return nil, err
		}
		if n.Lat, err = requireFloat(start, "node", id, "lat"); err != nil {
			return nil, err
		}
		if n.Lon < -180 || n.Lon > 180 {
			return nil, parseErr("node", id, "longitude %v out of range", n.Lon)
		}
		if n.Lat < -90 || n.Lat > 90 {
			return nil, parseErr("node", id, "latitude %v out of range", n.Lat)
		}
	}

	return n, parseChildren(dec, start, "node", id, n.Tags, nil)
}

func parseWay(dec *xml.Decoder, start xml.StartElement, action Action) (*Way, error) {
	w := &Way{Tags: map[string]string{}}

	id, err := requireInt(start, "way", 0, "id")
	if err != nil {
		return nil, err
	}
	w.ID = id

	if action != Create {
		if w.Version, err = requireInt(start, "way", id, "version"); err != nil {
			return nil, err
		}
	}

	return w, parseChildren(dec, start, "way", id, w.Tags, &w.Refs)
}

// parseChildren consumes <tag> and, when refs is non-nil, <nd> children up to
// the element's end tag. Duplicate tag keys are last-write-wins.
func parseChildren(dec *xml.Decoder, start xml.StartElement, element string, id int64, tags map[string]string, refs *[]int64) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return parseWrap(element, id, err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}

		case xml.StartElement:
			switch {
			case t.Name.Local == "tag":
				k, kOK := attr(t.Attr, "k")
				v, vOK := attr(t.Attr, "v")
				if !kOK || !vOK {
					return parseErr(element, id, "<tag> requires k and v attributes")
				}
				tags[k] = v
				if err := dec.Skip(); err != nil {
					return parseWrap(element, id, err)
				}

			case t.Name.Local == "nd" && refs != nil:
				raw, ok := attr(t.Attr, "ref")
				if !ok {
					return parseErr(element, id, "<nd> requires a ref attribute")
				}
				ref, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return parseErr(element, id, "non-numeric nd ref %q", raw)
				}
				*refs = append(*refs, ref)
				if err := dec.Skip(); err != nil {
					return parseWrap(element, id, err)
				}

			default:
				return parseErr(element, id, "unrecognized child element <%s>", t.Name.Local)
			}
		}
	}
}

func attr(attrs []xml.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func hasFlag(attrs []xml.Attr, name string) bool {
	v, ok := attr(attrs, name)
	return ok && v != "false"
}

func requireInt(start xml.StartElement, element string, id int64, name string) (int64, error) {
	raw, ok := attr(start.Attr, name)
	if !ok {
		return 0, parseErr(element, id, "missing required attribute %q", name)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, parseErr(element, id, "non-numeric %s %q", name, raw)
	}
	return v, nil
}

func requireFloat(start xml.StartElement, element string, id int64, name string) (float64, error) {
	raw, ok := attr(start.Attr, name)
	if !ok {
		return 0, parseErr(element, id, "missing required attribute %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, parseErr(element, id, "non-numeric %s %q", name, raw)
	}
	return v, nil
}
