package extract

import (
	"strings"

	"github.com/Aman-CERP/amanmcp/internal/identity"
)

// Batch is every file's extraction for one indexing run, the unit
// ResolveRelationships needs to bind cross-file CALLS/EXTENDS/IMPLEMENTS/
// REFERENCES/IMPORTS candidates against known objects (spec.md §4.3).
type Batch struct {
	Files []*FileExtraction
}

// fileModule maps a relative path (minus extension, dots for slashes) to
// the file's own extraction, supporting IMPORTS resolution.
type fileModule struct {
	modulePath string
	extraction *FileExtraction
}

// ResolveRelationships binds every candidate collected across the batch
// into typed Relationships, appends the CONTAINS edges implied by
// ParentID, appends auto-generated inverses for every edge, and returns
// the complete relationship set for the batch.
func ResolveRelationships(batch *Batch) []*Relationship {
	var objects []*CodeObject
	var modules []fileModule
	for _, fe := range batch.Files {
		objects = append(objects, fe.Objects...)
		if len(fe.Objects) > 0 {
			modules = append(modules, fileModule{
				modulePath: normalizeModulePath(fe.Objects[0].RelativePath),
				extraction: fe,
			})
		}
	}

	byID := make(map[string]*CodeObject, len(objects))
	byName := make(map[string][]*CodeObject)
	for _, o := range objects {
		byID[o.ID] = o
		byName[o.Name] = append(byName[o.Name], o)
	}

	var rels []*Relationship

	// CONTAINS: synthesized from parent_deterministic_id, guaranteed for
	// every child (spec.md §4.3).
	for _, o := range objects {
		if o.ParentID == "" {
			continue
		}
		parent, ok := byID[o.ParentID]
		if !ok {
			continue
		}
		rels = append(rels, newRelationship(parent.ID, o.ID, RelContains, string(parent.Kind), string(o.Kind), 1.0))
	}

	// CALLS / EXTENDS / IMPLEMENTS / REFERENCES: resolve candidates by
	// exact name within the batch; on multiple candidates the one with
	// the closest start line to the call site wins, ties break by
	// first-seen (the order byName was populated in, i.e. file order).
	for _, fe := range batch.Files {
		for _, cand := range fe.Candidates {
			src, ok := byID[cand.SourceID]
			if !ok {
				continue
			}
			targets := byName[cand.TargetName]
			if len(targets) == 0 {
				continue
			}
			if cand.Type == RelReferences && allSameAs(targets, src.ID) {
				continue
			}
			target := closestByLine(targets, cand.Line, src.ID, cand.Type)
			if target == nil {
				continue
			}
			confidence := 1.0
			if cand.Type == RelReferences {
				confidence = 0.7
			}
			rels = append(rels, newRelationship(src.ID, target.ID, cand.Type, string(src.Kind), string(target.Kind), confidence))
		}
	}

	// IMPORTS: resolve each import's normalized module path against the
	// batch's file map; confidence fixed at 0.8 (spec.md §4.3).
	for _, fe := range batch.Files {
		if len(fe.Imports) == 0 || len(fe.Objects) == 0 {
			continue
		}
		sourceModule := &CodeObject{ID: identity.ObjectID(fe.Objects[0].RelativePath, "", string(KindModule), 1, 1), Kind: KindModule}
		for _, imp := range fe.Imports {
			normalized := normalizeModulePath(imp.ImportPath)
			for _, m := range modules {
				if !strings.HasSuffix(m.modulePath, normalized) && m.modulePath != normalized {
					continue
				}
				if len(m.extraction.Objects) == 0 {
					continue
				}
				targetModule := &CodeObject{
					ID:   identity.ObjectID(m.extraction.Objects[0].RelativePath, "", string(KindModule), 1, 1),
					Kind: KindModule,
				}
				rels = append(rels, newRelationship(sourceModule.ID, targetModule.ID, RelImports,
					string(KindModule), string(KindModule), 0.8))
				break
			}
		}
	}

	return appendInverses(rels)
}

func newRelationship(sourceID, targetID string, rt RelationType, sourceKind, targetKind string, confidence float64) *Relationship {
	return &Relationship{
		ID:         identity.RelationshipID(sourceID, targetID, string(rt)),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       rt,
		SourceKind: sourceKind,
		TargetKind: targetKind,
		Confidence: confidence,
	}
}

// appendInverses adds the auto-generated inverse of every non-inverse edge
// (spec.md §3 invariant): same confidence, source/target swapped.
func appendInverses(rels []*Relationship) []*Relationship {
	out := make([]*Relationship, 0, len(rels)*2)
	for _, r := range rels {
		out = append(out, r)
		if inv, ok := Inverse(r.Type); ok {
			out = append(out, &Relationship{
				ID:         identity.RelationshipID(r.TargetID, r.SourceID, string(inv)),
				SourceID:   r.TargetID,
				TargetID:   r.SourceID,
				Type:       inv,
				SourceKind: r.TargetKind,
				TargetKind: r.SourceKind,
				Confidence: r.Confidence,
			})
		}
	}
	return out
}

func allSameAs(objs []*CodeObject, id string) bool {
	for _, o := range objs {
		if o.ID != id {
			return false
		}
	}
	return true
}

// closestByLine picks, among same-named candidates, the one whose start
// line is closest to the reference site; ties break by first-seen (slice
// order, which follows file/walk order). REFERENCES never resolves to its
// own source object.
func closestByLine(objs []*CodeObject, line int, excludeID string, relType RelationType) *CodeObject {
	var best *CodeObject
	bestDist := -1
	for _, o := range objs {
		if relType == RelReferences && o.ID == excludeID {
			continue
		}
		dist := o.StartLine - line
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best = o
			bestDist = dist
		}
	}
	return best
}
