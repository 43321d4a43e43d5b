// Package rewrite locates service references in a configuration document and
// replaces their identifiers.
//
// A reference takes one of two shapes:
//
//   - typed: an object carrying sibling serviceType and serviceGuid fields;
//   - keyed: a field named after the service type whose value is either the
//     identifier itself or an object holding it under guid, id or serviceGuid
//     (checked in that order).
//
// Every function mutates the document it is given. Callers pass a clone when
// the original must survive.
package rewrite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/omniaweb/hnmigrate/internal/document"
)

// Reference field names.
const (
	FieldServiceType = "serviceType"
	FieldServiceGuid = "serviceGuid"
	// FieldFallback is the root map that receives identifiers no reference
	// could absorb.
	FieldFallback = "serviceGuids"
)

// MaxDepth is the deepest nesting a rewrite will walk.
const MaxDepth = 512

// keyedIDFields lists the identifier fields of a keyed object reference in
// priority order.
var keyedIDFields = []string{"guid", "id", FieldServiceGuid}

// ErrPrecondition classifies invalid invocations. Data problems never
// produce it.
var ErrPrecondition = errors.New("rewrite precondition violated")

var (
	ErrNilDocument = fmt.Errorf("%w: nil document", ErrPrecondition)
	ErrNotObject   = fmt.Errorf("%w: document root is not an object", ErrPrecondition)
	ErrMaxDepth    = fmt.Errorf("%w: document nests deeper than %d levels", ErrPrecondition, MaxDepth)
	ErrEmptyType   = fmt.Errorf("%w: empty service type", ErrPrecondition)
)

// ApplyToType points every reference of serviceType at newID. It reports
// whether any reference was found. When none was, newID is recorded under
// serviceGuids[serviceType] at the document root and false is returned.
func ApplyToType(doc *document.Value, serviceType, newID string) (bool, error) {
	if doc == nil {
		return false, ErrNilDocument
	}
	if serviceType == "" {
		return false, ErrEmptyType
	}
	if err := checkDepth(doc, 0); err != nil {
		return false, err
	}

	w := &typeWalker{serviceType: serviceType, newID: newID}
	w.visit(doc)
	if w.updated {
		return true, nil
	}

	if !doc.IsObject() {
		return false, ErrNotObject
	}
	fallback := doc.Get(FieldFallback)
	if !fallback.IsObject() {
		fallback = document.NewObject()
		doc.Set(FieldFallback, fallback)
	}
	fallback.Set(serviceType, document.String(newID))
	return false, nil
}

type typeWalker struct {
	serviceType string
	newID       string
	updated     bool
}

func (w *typeWalker) visit(node *document.Value) {
	switch node.Kind() {
	case document.KindArray:
		for _, item := range node.Items() {
			w.visit(item)
		}
	case document.KindObject:
		if t, ok := node.Get(FieldServiceType).Str(); ok && t == w.serviceType {
			node.Set(FieldServiceGuid, document.String(w.newID))
			w.updated = true
		}
		for _, key := range node.Keys() {
			value := node.Get(key)
			if key == w.serviceType {
				switch value.Kind() {
				case document.KindString:
					node.Set(key, document.String(w.newID))
					w.updated = true
					continue
				case document.KindObject:
					value.Set(keyedField(value), document.String(w.newID))
					w.updated = true
					continue
				}
			}
			w.visit(value)
		}
	}
}

// keyedField returns the identifier field of a keyed object reference,
// defaulting to guid.
func keyedField(obj *document.Value) string {
	for _, f := range keyedIDFields {
		if obj.Has(f) {
			return f
		}
	}
	return keyedIDFields[0]
}

func checkDepth(node *document.Value, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	switch node.Kind() {
	case document.KindArray:
		for _, item := range node.Items() {
			if err := checkDepth(item, depth+1); err != nil {
				return err
			}
		}
	case document.KindObject:
		for _, key := range node.Keys() {
			if err := checkDepth(node.Get(key), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func pointer(parent, token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	token = strings.ReplaceAll(token, "/", "~1")
	return parent + "/" + token
}

func index(parent string, i int) string {
	return parent + "/" + strconv.Itoa(i)
}
