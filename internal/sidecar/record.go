// internal/sidecar/record.go - sidecar metadata record
package sidecar

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

// Suffix marks a file as the metadata sidecar of its sibling asset.
const Suffix = ".metadata.json"

// Well-known record fields
const (
	FieldName         = "name"
	FieldType         = "type"
	FieldSize         = "size"
	FieldLastModified = "lastModified"
	FieldDimensions   = "dimensions"
	FieldAverageColor = "averageColor"
	FieldTags         = "tags"
	FieldTagsRaw      = "tagsRaw"
	FieldOldContent   = "oldContent"
)

// Dimensions is the pixel size of an image asset.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Color is an RGBA color with alpha in [0,1].
type Color struct {
	Red   int     `json:"red"`
	Green int     `json:"green"`
	Blue  int     `json:"blue"`
	Alpha float64 `json:"alpha"`
}

// Name returns the sidecar file name for an asset.
func Name(assetName string) string {
	return assetName + Suffix
}

// IsSidecar reports whether a file name is a sidecar.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, Suffix)
}

// AssetName strips the sidecar suffix. ok is false for non-sidecar names.
func AssetName(sidecarName string) (string, bool) {
	if !IsSidecar(sidecarName) {
		return "", false
	}
	return strings.TrimSuffix(sidecarName, Suffix), true
}

// Record is a sidecar JSON object. Values are kept in their decoded generic
// form (maps, slices, json.Number, string, bool) so unknown fields survive a
// read-modify-write cycle untouched.
type Record map[string]any

// Has reports whether field is present with a non-null value.
func (r Record) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Set stores v under field in generic form.
func (r Record) Set(field string, v any) error {
	g, err := toGeneric(v)
	if err != nil {
		return WrapError(err, "set "+field)
	}
	r[field] = g
	return nil
}

// SetIfAbsent stores v only when field is absent. It reports whether the
// record changed.
func (r Record) SetIfAbsent(field string, v any) (bool, error) {
	if r.Has(field) {
		return false, nil
	}
	if err := r.Set(field, v); err != nil {
		return false, err
	}
	return true, nil
}

// Decode unmarshals field into dst. It returns false when the field is
// absent or has a foreign shape.
func (r Record) Decode(field string, dst any) bool {
	if !r.Has(field) {
		return false
	}
	data, err := json.Marshal(r[field])
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// Tags returns the record's tags, or nil.
func (r Record) Tags() []string {
	var tags []string
	if !r.Decode(FieldTags, &tags) {
		return nil
	}
	return tags
}

// String returns a string field, or "".
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Int64 returns a numeric field. ok is false when absent or non-numeric.
func (r Record) Int64(field string) (int64, bool) {
	switch v := r[field].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	g, err := toGeneric(map[string]any(r))
	if err != nil {
		// Records only ever hold generic JSON values, so this is unreachable
		// for anything built through Parse or Set.
		out := make(Record, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	m, _ := g.(map[string]any)
	return Record(m)
}

// Equal reports deep structural equality.
func (r Record) Equal(other Record) bool {
	if len(r) == 0 && len(other) == 0 {
		return true
	}
	return reflect.DeepEqual(map[string]any(r), map[string]any(other))
}

// Encode renders the record as pretty-printed JSON with 4-space indentation.
func Encode(r Record) (string, error) {
	if r == nil {
		r = Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(map[string]any(r)); err != nil {
		return "", WrapError(err, "encode sidecar")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeGeneric(data)
}

func decodeGeneric(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, ErrTrailingData
	}
	return out, nil
}
