package payload

import (
	"github.com/omniaweb/hnmigrate/internal/document"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Payload holds the recognized sections of an export, keyed by their
// canonical spelling.
type Payload struct {
	keys     []string
	sections map[string]*document.Value
}

// Extract reads every recognized, allowed section of doc. A section is found
// under its canonical key, its lower-case spelling or its capitalised
// spelling, in that order. A doc that is not an object yields an empty
// payload.
func Extract(doc *document.Value, catalog Catalog) *Payload {
	p := &Payload{sections: make(map[string]*document.Value)}
	if !doc.IsObject() {
		return p
	}
	for _, key := range catalog.Keys {
		if !catalog.Allowed(key) {
			continue
		}
		if v, ok := readKey(doc, key); ok {
			p.keys = append(p.keys, key)
			p.sections[key] = v
		}
	}
	return p
}

func readKey(doc *document.Value, key string) (*document.Value, bool) {
	lower := cases.Lower(language.Und)
	candidates := []string{key, lower.String(key)}
	if len(key) > 0 {
		candidates = append(candidates, key[:1]+lower.String(key[1:]))
	}
	for _, k := range candidates {
		if doc.Has(k) {
			return doc.Get(k), true
		}
	}
	return nil, false
}

// Has reports whether the section is present. A present section may be null.
func (p *Payload) Has(key string) bool {
	_, ok := p.sections[key]
	return ok
}

// Get returns a section, or nil when absent.
func (p *Payload) Get(key string) *document.Value {
	return p.sections[key]
}

// Keys returns the present sections in catalog order.
func (p *Payload) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Len returns the number of present sections.
func (p *Payload) Len() int {
	return len(p.keys)
}

// Config returns the CHANNELS section when it holds data.
func (p *Payload) Config() *document.Value {
	return p.present(KeyChannels)
}

// Mapping returns the MAPPING section when it holds data.
func (p *Payload) Mapping() *document.Value {
	return p.present(KeyMapping)
}

func (p *Payload) present(key string) *document.Value {
	v := p.sections[key]
	if v.IsNull() {
		return nil
	}
	return v
}

// Document returns the sections as a single object.
func (p *Payload) Document() *document.Value {
	out := document.NewObject()
	for _, k := range p.keys {
		out.Set(k, p.sections[k])
	}
	return out
}

// MarshalJSON encodes the payload as an object of its sections.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return p.Document().MarshalJSON()
}

// UnmarshalJSON restores a payload produced by MarshalJSON.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var doc document.Value
	if err := doc.UnmarshalJSON(data); err != nil {
		return err
	}
	restored := &Payload{sections: make(map[string]*document.Value)}
	for _, k := range doc.Keys() {
		restored.keys = append(restored.keys, k)
		restored.sections[k] = doc.Get(k)
	}
	*p = *restored
	return nil
}

// CountItems returns the number of elements of an array, keys of an object,
// zero for null and one for any other value.
func CountItems(v *document.Value) int {
	switch v.Kind() {
	case document.KindNull:
		return 0
	case document.KindArray, document.KindObject:
		return v.Len()
	default:
		return 1
	}
}
