package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Format identifies the serialization of a document.
type Format string

const (
	// FormatJSON decodes JSON.
	FormatJSON Format = "json"
	// FormatYAML decodes YAML.
	FormatYAML Format = "yaml"
	// FormatAuto tries JSON first, then YAML.
	FormatAuto Format = ""
)

// maxParseDepth bounds nesting while decoding.
const maxParseDepth = 1024

// ErrTooDeep is returned when a document nests deeper than the decoder allows.
var ErrTooDeep = errors.New("document nesting too deep")

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Value, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	case FormatAuto:
		v, err := parseJSON(data)
		if err == nil {
			return v, nil
		}
		if yv, yerr := parseYAML(data); yerr == nil {
			return yv, nil
		}
		return nil, err
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

// MustParseJSON decodes a JSON literal and panics on error. Intended for
// fixtures.
func MustParseJSON(s string) *Value {
	v, err := parseJSON([]byte(s))
	if err != nil {
		panic(fmt.Sprintf("document: parse %q: %v", s, err))
	}
	return v
}

func parseJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSON(dec, 0)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("parse json: unexpected data after top-level value")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder, depth int) (*Value, error) {
	if depth > maxParseDepth {
		return nil, ErrTooDeep
	}

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return &Value{kind: KindNumber, s: t.String()}, nil
	case json.Delim:
		switch t {
		case '[':
			arr := NewArray()
			for dec.More() {
				item, err := decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, want string", keyTok)
				}
				val, err := decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func parseYAML(data []byte) (*Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if root.Kind == 0 {
		return Null(), nil
	}
	v, err := fromYAML(&root, 0)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return v, nil
}

func fromYAML(n *yaml.Node, depth int) (*Value, error) {
	if depth > maxParseDepth {
		return nil, ErrTooDeep
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromYAML(n.Content[0], depth+1)
	case yaml.AliasNode:
		return fromYAML(n.Alias, depth+1)
	case yaml.SequenceNode:
		arr := NewArray()
		for _, c := range n.Content {
			item, err := fromYAML(c, depth+1)
			if err != nil {
				return nil, err
			}
			arr.items = append(arr.items, item)
		}
		return arr, nil
	case yaml.MappingNode:
		obj := NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key must be a scalar", k.Line)
			}
			val, err := fromYAML(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(k.Value, val)
		}
		return obj, nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
}

func yamlScalar(n *yaml.Node) (*Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Out of int64 range; keep the text if JSON can carry it.
			if isJSONNumber(n.Value) {
				return &Value{kind: KindNumber, s: n.Value}, nil
			}
			return String(n.Value), nil
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return String(n.Value), nil
		}
		if isJSONNumber(n.Value) {
			return &Value{kind: KindNumber, s: n.Value}, nil
		}
		return &Value{kind: KindNumber, s: strconv.FormatFloat(f, 'g', -1, 64)}, nil
	default:
		return String(n.Value), nil
	}
}

// MarshalJSON encodes v compactly, keeping object key order.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := parseJSON(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

// String returns the compact JSON text of v.
func (v *Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return string(data)
}

// Encode writes v as JSON to w. A non-empty indent pretty-prints.
func (v *Value) Encode(w io.Writer, indent string) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	if indent != "" {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", indent); err != nil {
			return fmt.Errorf("indent json: %w", err)
		}
		data = out.Bytes()
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func (v *Value) writeJSON(buf *bytes.Buffer) error {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(v.s)
	case KindString:
		return writeJSONString(buf, v.s)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := v.fields[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode %s", v.Kind())
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func isJSONNumber(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if c != '-' && (c < '0' || c > '9') {
		return false
	}
	return json.Valid([]byte(s))
}
