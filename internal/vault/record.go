package vault

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one unit of work living in a vault stage. ID is the filename
// stem, Meta holds the parsed front matter, and Stage/Path reflect the
// record's physical location at read time.
type Record struct {
	ID    string
	Name  string
	Stage Stage
	Path  string
	Meta  map[string]string
	Body  string

	// ParseErr is set when the front matter block exists but cannot be
	// decoded. The record is still usable for relocation and auditing.
	ParseErr error
}

// Kind returns the record's front matter type, or "unknown".
func (r *Record) Kind() string {
	if r == nil {
		return "unknown"
	}
	if kind := strings.TrimSpace(r.Meta["type"]); kind != "" {
		return kind
	}
	return "unknown"
}

// Field is one ordered front matter entry.
type Field struct {
	Key   string
	Value string
}

// FrontMatter is an ordered set of front matter fields. Order is preserved
// on encode so generated records stay stable and diffable.
type FrontMatter []Field

// Get returns the value for a key, or "".
func (fm FrontMatter) Get(key string) string {
	for _, field := range fm {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

func (fm FrontMatter) asMap() map[string]string {
	meta := make(map[string]string, len(fm))
	for _, field := range fm {
		meta[field.Key] = field.Value
	}
	return meta
}

// Document is the encodable form of a record: ordered front matter plus a
// markdown body.
type Document struct {
	Meta FrontMatter
	Body string
}

// Encode renders the document as markdown with a YAML front matter block.
func (d Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if len(d.Meta) > 0 {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, field := range d.Meta {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: field.Key},
				&yaml.Node{Kind: yaml.ScalarNode, Value: field.Value},
			)
		}
		encoded, err := yaml.Marshal(node)
		if err != nil {
			return nil, fmt.Errorf("encode front matter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(encoded)
		buf.WriteString("---\n")
	}
	if d.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(d.Body)
		if !strings.HasSuffix(d.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// ParseDocument splits a record file into front matter and body. Files
// without a leading front matter block yield an empty meta map and the
// whole text as body. A malformed block is reported via the error while
// the body is still returned, so callers can quarantine the record.
func ParseDocument(data []byte) (map[string]string, string, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---") {
		return map[string]string{}, strings.TrimSpace(text), nil
	}

	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return map[string]string{}, strings.TrimSpace(text), nil
	}
	body := strings.TrimSpace(parts[2])

	raw := map[string]any{}
	if err := yaml.Unmarshal([]byte(parts[1]), &raw); err != nil {
		return map[string]string{}, body, fmt.Errorf("parse front matter: %w", err)
	}
	meta := make(map[string]string, len(raw))
	for key, value := range raw {
		meta[key] = strings.TrimSpace(fmt.Sprint(value))
	}
	return meta, body, nil
}
