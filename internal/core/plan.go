package core

import "github.com/atlasmelt/mapedit/internal/diff"

// placeholderDef records where a placeholder's create appears in the
// document, so reference resolution can insist on definition-before-use.
type placeholderDef struct {
	ordinal  int // position among creates of the same entity type
	docIndex int
}

// plan is the validated shape of one upload before it touches the store:
// which operations create entities (and therefore need fresh ids) and the
// placeholder table each entity type's creates define.
type plan struct {
	ops []diff.Operation

	nodeCreates []int // offsets into ops, document order
	wayCreates  []int

	// Placeholder namespaces are independent per entity type: node -1 and
	// way -1 in the same upload do not collide.
	nodePlaceholders map[int64]placeholderDef
	wayPlaceholders  map[int64]placeholderDef
}

// buildPlan validates identifiers and references for the whole operation
// sequence. It is pure: id reservation and existence checks happen later,
// inside the upload's transaction.
func buildPlan(ops []diff.Operation) (*plan, error) {
	p := &plan{
		ops:              ops,
		nodePlaceholders: make(map[int64]placeholderDef),
		wayPlaceholders:  make(map[int64]placeholderDef),
	}

	for i, op := range ops {
		id := op.ElementID()

		switch op.Action {
		case diff.Create:
			if id >= 0 {
				return nil, &NegotiationError{
					Element: op.ElementName(), ID: id, Index: op.Index,
					Reason: "create requires a negative placeholder id",
				}
			}
			defs := p.nodePlaceholders
			if op.IsWay() {
				defs = p.wayPlaceholders
			}
			if _, dup := defs[id]; dup {
				return nil, &NegotiationError{
					Element: op.ElementName(), ID: id, Index: op.Index,
					Reason: "duplicate placeholder",
				}
			}
			if op.IsWay() {
				defs[id] = placeholderDef{ordinal: len(p.wayCreates), docIndex: op.Index}
				p.wayCreates = append(p.wayCreates, i)
			} else {
				defs[id] = placeholderDef{ordinal: len(p.nodeCreates), docIndex: op.Index}
				p.nodeCreates = append(p.nodeCreates, i)
			}

		case diff.Modify, diff.Delete:
			if id <= 0 {
				return nil, &NotFoundError{Element: op.ElementName(), ID: id, Index: op.Index}
			}
		}
	}

	// Every negative way reference must point at a node created earlier in
	// the same document. Positive references pass through; the applier
	// verifies those rows exist.
	for _, op := range ops {
		if !op.IsWay() || op.Action == diff.Delete {
			continue
		}
		for _, ref := range op.Way.Refs {
			if ref >= 0 {
				continue
			}
			def, ok := p.nodePlaceholders[ref]
			if !ok || def.docIndex > op.Index {
				return nil, &UnresolvedReferenceError{WayID: op.Way.ID, Ref: ref, Index: op.Index}
			}
		}
	}

	return p, nil
}

// resolve rewrites every placeholder to its negotiated permanent id: create
// ids themselves, and negative node references inside way payloads. nodeIDs
// and wayIDs are the freshly reserved ids, aligned with the create ordinals.
// It returns the placeholder each create carried, keyed by ops offset, so
// the reporter can echo old ids back.
func (p *plan) resolve(nodeIDs, wayIDs []int64) map[int]int64 {
	oldIDs := make(map[int]int64, len(p.nodeCreates)+len(p.wayCreates))

	for ordinal, off := range p.nodeCreates {
		n := p.ops[off].Node
		oldIDs[off] = n.ID
		n.ID = nodeIDs[ordinal]
	}
	for ordinal, off := range p.wayCreates {
		w := p.ops[off].Way
		oldIDs[off] = w.ID
		w.ID = wayIDs[ordinal]
	}

	for _, op := range p.ops {
		if !op.IsWay() || op.Action == diff.Delete {
			continue
		}
		for i, ref := range op.Way.Refs {
			if ref < 0 {
				op.Way.Refs[i] = nodeIDs[p.nodePlaceholders[ref].ordinal]
			}
		}
	}

	return oldIDs
}
