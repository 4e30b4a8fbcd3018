package sidecar

import "strings"

// ParseKind classifies existing sidecar content.
type ParseKind int

const (
	// KindEmpty is absent or whitespace-only content.
	KindEmpty ParseKind = iota
	// KindValid is a JSON object.
	KindValid
	// KindLegacy is anything else; the raw text is kept under oldContent.
	KindLegacy
)

func (k ParseKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindValid:
		return "valid"
	case KindLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseResult is the outcome of Parse.
type ParseResult struct {
	Kind   ParseKind
	Record Record
	Raw    string
}

// Parse never fails: empty content yields an empty record, a JSON object is
// returned as is, and any other content is wrapped as {oldContent: raw}.
func Parse(content string) ParseResult {
	if strings.TrimSpace(content) == "" {
		return ParseResult{Kind: KindEmpty, Record: Record{}, Raw: content}
	}

	v, err := decodeGeneric([]byte(content))
	if err == nil {
		if m, ok := v.(map[string]any); ok {
			return ParseResult{Kind: KindValid, Record: Record(m), Raw: content}
		}
	}

	return ParseResult{
		Kind:   KindLegacy,
		Record: Record{FieldOldContent: content},
		Raw:    content,
	}
}
