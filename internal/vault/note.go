package vault

// note.go — markdown notes carrying YAML frontmatter between --- delimiters.

import (
	"bytes"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

const delim = "---\n"

// NoteMeta is the frontmatter of a network note.
type NoteMeta struct {
	AgentName   string   `yaml:"agent_name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags"`
}

// encodeNote renders meta as frontmatter followed by body. Tags are sorted so
// the output does not depend on the order the server listed them in.
func encodeNote(meta NoteMeta, body string) (string, error) {
	meta.Tags = slices.Clone(meta.Tags)
	slices.Sort(meta.Tags)
	meta.Tags = slices.Compact(meta.Tags)

	fm, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(delim)
	buf.Write(fm)
	buf.WriteString(delim)
	buf.WriteString("\n")
	buf.WriteString(body)
	return buf.String(), nil
}

// ParseNote splits a note into its frontmatter and body. The note must begin
// with "---\n" and the frontmatter ends at the next "---" line.
func ParseNote(data []byte) (NoteMeta, []byte, error) {
	if !bytes.HasPrefix(data, []byte(delim)) {
		return NoteMeta{}, nil, fmt.Errorf("frontmatter: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return NoteMeta{}, nil, fmt.Errorf("frontmatter: missing closing --- delimiter")
	}
	var meta NoteMeta
	if err := yaml.Unmarshal(rest[:idx], &meta); err != nil {
		return NoteMeta{}, nil, fmt.Errorf("frontmatter: %w", err)
	}
	body := rest[idx+len("\n---"):]
	body = bytes.TrimPrefix(body, []byte("\n"))
	body = bytes.TrimPrefix(body, []byte("\n"))
	return meta, body, nil
}
