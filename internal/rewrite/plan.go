package rewrite

import (
	"fmt"
	"sort"

	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/services"
)

// Plan is the input of a bulk rewrite: the confirmed old to new identifier
// map plus the service type of each old identifier. Types enable keyed
// references; without a type an identifier is only rewritten where it
// appears as a serviceGuid value.
type Plan struct {
	Map   map[string]string `json:"map"`
	Types map[string]string `json:"types,omitempty"`
}

// NewPlan builds a plan from an association map, taking types from the old
// services.
func NewPlan(m map[string]string, oldServices []services.Descriptor) Plan {
	p := Plan{
		Map:   make(map[string]string, len(m)),
		Types: make(map[string]string),
	}
	for oldID, newID := range m {
		p.Map[oldID] = newID
	}
	for _, d := range oldServices {
		if _, ok := p.Map[d.ID]; ok {
			p.Types[d.ID] = d.Type
		}
	}
	return p
}

// Len returns the number of planned identifiers.
func (p Plan) Len() int {
	return len(p.Map)
}

// keyedTypes returns the set of types whose keyed references are rewritten.
func (p Plan) keyedTypes() map[string]bool {
	types := make(map[string]bool, len(p.Types))
	for oldID, t := range p.Types {
		if _, ok := p.Map[oldID]; ok && t != "" {
			types[t] = true
		}
	}
	return types
}

// Result describes what a bulk rewrite changed.
type Result struct {
	Replacements int      `json:"replacements"`
	Paths        []string `json:"paths,omitempty"`
	// Unmatched lists planned old identifiers that were not found anywhere.
	Unmatched []string `json:"unmatched,omitempty"`
}

// ApplyMap replaces every planned old identifier with its new one in a single
// traversal. A serviceGuid value is rewritten whenever it is planned. A keyed
// reference is rewritten when its key is the type of the planned identifier
// it holds. Values that are not planned identifiers are never touched.
func ApplyMap(doc *document.Value, plan Plan) (Result, error) {
	if doc == nil {
		return Result{}, ErrNilDocument
	}
	if err := checkDepth(doc, 0); err != nil {
		return Result{}, err
	}

	w := &mapWalker{
		plan:  plan,
		typed: plan.keyedTypes(),
		seen:  make(map[string]bool),
	}
	w.visit(doc, "", "")

	for oldID := range plan.Map {
		if !w.seen[oldID] {
			w.result.Unmatched = append(w.result.Unmatched, oldID)
		}
	}
	sort.Strings(w.result.Unmatched)
	return w.result, nil
}

type mapWalker struct {
	plan   Plan
	typed  map[string]bool
	seen   map[string]bool
	result Result
}

// visit walks node. skip names a field of node that was already rewritten
// as a keyed reference and must not be matched again.
func (w *mapWalker) visit(node *document.Value, path, skip string) {
	switch node.Kind() {
	case document.KindArray:
		for i, item := range node.Items() {
			w.visit(item, index(path, i), "")
		}
	case document.KindObject:
		if skip != FieldServiceGuid {
			w.replaceField(node, FieldServiceGuid, "", path)
		}
		for _, key := range node.Keys() {
			if key == skip {
				continue
			}
			value := node.Get(key)
			if w.typed[key] {
				if field, ok := w.replaceKeyed(node, key, value, path); ok {
					if field != "" {
						w.visit(value, pointer(path, key), field)
					}
					continue
				}
			}
			w.visit(value, pointer(path, key), "")
		}
	}
}

// replaceKeyed handles a field named after a planned service type. It reports
// whether the value was a reference that got rewritten and, for an object
// reference, which of its fields changed.
func (w *mapWalker) replaceKeyed(node *document.Value, key string, value *document.Value, path string) (string, bool) {
	switch value.Kind() {
	case document.KindString:
		return "", w.replaceField(node, key, key, path)
	case document.KindObject:
		for _, f := range keyedIDFields {
			if value.Has(f) {
				return f, w.replaceField(value, f, key, pointer(path, key))
			}
		}
	}
	return "", false
}

// replaceField rewrites obj[field] when it holds a planned identifier. A
// non-empty serviceType restricts the match to identifiers of that type.
func (w *mapWalker) replaceField(obj *document.Value, field, serviceType, path string) bool {
	oldID, ok := obj.Get(field).Str()
	if !ok {
		return false
	}
	newID, ok := w.plan.Map[oldID]
	if !ok {
		return false
	}
	if serviceType != "" && w.plan.Types[oldID] != serviceType {
		return false
	}
	obj.Set(field, document.String(newID))
	w.seen[oldID] = true
	w.result.Replacements++
	w.result.Paths = append(w.result.Paths, pointer(path, field))
	return true
}

// ApplyServices points each service type of list at its identifier with
// ApplyToType, in list order. It returns the types that had no reference and
// were recorded in the root fallback map.
func ApplyServices(doc *document.Value, list []services.Descriptor) ([]string, error) {
	var fallbacks []string
	for _, d := range list {
		found, err := ApplyToType(doc, d.Type, d.ID)
		if err != nil {
			return fallbacks, fmt.Errorf("apply %s: %w", d.Type, err)
		}
		if !found {
			fallbacks = append(fallbacks, d.Type)
		}
	}
	return fallbacks, nil
}
