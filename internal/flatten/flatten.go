// internal/flatten/flatten.go - Payload flattening to dotted field paths
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ParseError indicates a payload that could not be decoded at all. It is
// never retryable: re-requesting a malformed response yields the same bytes.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Map is an immutable flattened view of a nested payload: dotted path to
// scalar value. It is built once per check and never shared across checks.
// A lowercased path index is kept alongside so case-insensitive lookups
// don't have to rescan the map.
type Map struct {
	values map[string]interface{}
	folded map[string]string
}

// Flatten walks an arbitrary decoded payload (maps, slices, scalars) and
// produces the dotted-path map. Nested object keys are joined with ".",
// list elements are indexed numerically, and XML namespace prefixes are
// stripped from path segments. Absent or nil nodes simply do not appear.
func Flatten(v interface{}) Map {
	m := Map{
		values: make(map[string]interface{}),
		folded: make(map[string]string),
	}
	walk("", v, m.values)

	// When two paths collide case-insensitively the lexicographically
	// smallest canonical path wins, so folded lookups stay deterministic
	// across map iteration orders.
	for path := range m.values {
		lower := strings.ToLower(path)
		if prev, taken := m.folded[lower]; !taken || path < prev {
			m.folded[lower] = path
		}
	}
	return m
}

func walk(prefix string, v interface{}, out map[string]interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for k, child := range node {
			walk(joinPath(prefix, stripNamespace(k)), child, out)
		}
		// An XML element with attributes keeps its text under "#text";
		// mirror that text onto the element's own path so patterns can
		// address <codMensaje tipo="x">00000</codMensaje> as codMensaje.
		if prefix != "" {
			if text, ok := node["#text"]; ok {
				if _, isMap := text.(map[string]interface{}); !isMap {
					if _, isList := text.([]interface{}); !isList {
						out[prefix] = text
					}
				}
			}
		}
	case []interface{}:
		for i, child := range node {
			walk(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	case nil:
		// absent node, nothing to record
	default:
		if prefix == "" {
			// bare scalar payload
			prefix = "#text"
		}
		out[prefix] = node
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// stripNamespace removes an XML namespace prefix from a path segment, so a
// v1:codMensaje element is addressed as codMensaje. Keys without a colon
// (all JSON keys, "#text") pass through unchanged.
func stripNamespace(key string) string {
	if i := strings.LastIndex(key, ":"); i >= 0 && i < len(key)-1 {
		return key[i+1:]
	}
	return key
}

// Len returns the number of flattened paths.
func (m Map) Len() int {
	return len(m.values)
}

// IsEmpty reports whether the payload produced no scalar values at all.
func (m Map) IsEmpty() bool {
	return len(m.values) == 0
}

// Value returns the native scalar stored at an exact path.
func (m Map) Value(path string) (interface{}, bool) {
	v, ok := m.values[path]
	return v, ok
}

// Lookup returns the normalized string form of the value at an exact path.
func (m Map) Lookup(path string) (string, bool) {
	v, ok := m.values[path]
	if !ok {
		return "", false
	}
	return Normalize(v), true
}

// LookupFold resolves a path case-insensitively and returns the normalized
// value together with the canonical path that matched. Exact matches win
// over folded ones.
func (m Map) LookupFold(path string) (value, canonical string, ok bool) {
	if v, exact := m.values[path]; exact {
		return Normalize(v), path, true
	}
	canonical, ok = m.folded[strings.ToLower(path)]
	if !ok {
		return "", "", false
	}
	return Normalize(m.values[canonical]), canonical, true
}

// Paths returns all flattened paths in sorted order, mainly for
// diagnostics output and deterministic tests.
func (m Map) Paths() []string {
	paths := make([]string, 0, len(m.values))
	for p := range m.values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Normalize renders a scalar as the trimmed string used for all rule
// comparisons, so XML text and JSON scalars match consistently.
func Normalize(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// ParseJSON decodes a JSON payload into the generic tree Flatten consumes.
// Numbers are kept in their textual form so "00000" and 0 stay distinct.
// An empty body is an absent payload, not an error.
func ParseJSON(data []byte) (interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Format: "json", Err: fmt.Errorf("trailing data after JSON value")}
	}
	return v, nil
}
