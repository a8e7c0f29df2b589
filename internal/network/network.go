// Package network defines the agent network records served by an agent
// server's list endpoint and read from local manifest files.
package network

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Separator splits a network name into its namespace segments.
const Separator = "/"

// Record is one agent network as listed by the server. AgentName is the
// namespaced identifier, e.g. "industry/telco/orch".
type Record struct {
	AgentName   string   `json:"agent_name" yaml:"agent_name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Manifest is the on-disk form of a network listing. It mirrors the server's
// list response so a saved response can be used as a manifest directly.
type Manifest struct {
	Agents []Record `yaml:"agents"`
}

// LoadManifest reads a YAML (or JSON) manifest file.
func LoadManifest(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m.Agents, nil
}

// Names returns the AgentName of every record, in input order.
func Names(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.AgentName
	}
	return out
}

// DisplayName turns a path segment into a human label:
//
//	"industry_retail" → "Industry Retail"
//	"macys-NY"        → "Macys Ny"
func DisplayName(label string) string {
	words := strings.FieldsFunc(label, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
