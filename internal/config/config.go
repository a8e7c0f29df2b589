// Package config loads agentnav settings from .agentnav/settings.yaml.
//
// Example:
//
//	servers:
//	  - name: local
//	    url: http://localhost:8080
//	    timeout: 5s
//	default_server: local
//	hidden:
//	  - "Hide(./experimental/**)"
//	  - "*_test"
//
// Hidden patterns are written as bare globs over network names or wrapped in
// a Hide() verb.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"agentnav/internal/network"
)

const (
	dirName      = ".agentnav"
	settingsFile = "settings.yaml"
	cacheFile    = "cache.sqlite3"

	// DefaultTimeout bounds every request to an agent server unless the
	// server entry sets its own.
	DefaultTimeout = 10 * time.Second
)

var validate = validator.New()

// Settings holds agentnav configuration.
type Settings struct {
	Servers       []Server `yaml:"servers" validate:"unique=Name,dive"`
	DefaultServer string   `yaml:"default_server"`
	CachePath     string   `yaml:"cache_path"`
	// Hidden lists glob patterns for networks that are never shown.
	Hidden []string `yaml:"hidden"`

	hidden []hiddenRule
}

// Server is one agent server agentnav can list networks from.
type Server struct {
	Name    string        `yaml:"name" validate:"required,max=64"`
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// User is sent as the user_id header on agent requests.
	User string `yaml:"user,omitempty"`
}

// ErrUnknownServer is returned when a server name is not configured.
var ErrUnknownServer = errors.New("unknown server")

// DefaultDir returns ~/.agentnav.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Load reads .agentnav/settings.yaml relative to root. A missing file is not
// an error: the returned Settings is empty and CachePath points at the
// default location.
func Load(root string) (*Settings, error) {
	p := filepath.Join(root, dirName, settingsFile)
	var s Settings
	data, err := os.ReadFile(p)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", p, err)
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", p, err)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", p, err)
	}
	if s.hidden, err = compileHidden(s.Hidden); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", p, err)
	}
	if s.CachePath == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		s.CachePath = filepath.Join(dir, cacheFile)
	}
	return &s, nil
}

// Validate checks field constraints and that DefaultServer, when set, names
// a configured server.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.DefaultServer != "" {
		if _, err := s.Server(s.DefaultServer); err != nil {
			return fmt.Errorf("default_server: %w", err)
		}
	}
	return nil
}

// Server returns the server called name, or the default server when name is
// empty. With no default configured, a single configured server is used.
func (s *Settings) Server(name string) (Server, error) {
	if s == nil {
		return Server{}, fmt.Errorf("%w %q: no servers configured", ErrUnknownServer, name)
	}
	if name == "" {
		name = s.DefaultServer
	}
	if name == "" && len(s.Servers) == 1 {
		return s.Servers[0].withDefaults(), nil
	}
	for _, srv := range s.Servers {
		if srv.Name == name {
			return srv.withDefaults(), nil
		}
	}
	return Server{}, fmt.Errorf("%w %q", ErrUnknownServer, name)
}

func (srv Server) withDefaults() Server {
	if srv.Timeout == 0 {
		srv.Timeout = DefaultTimeout
	}
	return srv
}

// ---------------------------------------------------------------------------
// Hidden networks
// ---------------------------------------------------------------------------

// hiddenRule is one normalized hidden pattern. A "prefix/**" rule is kept as
// its prefix; anything else is a path.Match glob.
type hiddenRule struct {
	prefix string
	glob   string
}

func (r hiddenRule) match(name string) bool {
	if r.glob == "" {
		return name == r.prefix || strings.HasPrefix(name, r.prefix+network.Separator)
	}
	ok, _ := path.Match(r.glob, name)
	return ok
}

// compileHidden normalizes raw hidden entries. Entries may be bare globs or
// wrapped in Hide(...), with an optional leading "./":
//
//	"Hide(./experimental/**)" → prefix "experimental"
//	"*_test"                  → glob "*_test"
func compileHidden(raw []string) ([]hiddenRule, error) {
	rules := make([]hiddenRule, 0, len(raw))
	for _, entry := range raw {
		pattern := strings.TrimSpace(entry)
		if inner, ok := strings.CutPrefix(pattern, "Hide("); ok {
			if pattern, ok = strings.CutSuffix(inner, ")"); !ok {
				return nil, fmt.Errorf("hidden %q: unterminated Hide(", entry)
			}
		}
		pattern = strings.TrimPrefix(pattern, "./")
		if pattern == "" {
			return nil, fmt.Errorf("hidden %q: empty pattern", entry)
		}
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			rules = append(rules, hiddenRule{prefix: prefix})
			continue
		}
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("hidden %q: %w", entry, err)
		}
		rules = append(rules, hiddenRule{glob: pattern})
	}
	return rules, nil
}

// hiddenRules returns the rules compiled by Load. Settings built by hand are
// compiled on the spot, skipping entries that do not parse.
func (s *Settings) hiddenRules() []hiddenRule {
	if s.hidden != nil || len(s.Hidden) == 0 {
		return s.hidden
	}
	var rules []hiddenRule
	for _, entry := range s.Hidden {
		if r, err := compileHidden([]string{entry}); err == nil {
			rules = append(rules, r...)
		}
	}
	return rules
}

// IsHidden reports whether the network name matches any hidden pattern.
// Safe to call on a nil *Settings receiver.
func (s *Settings) IsHidden(name string) bool {
	if s == nil {
		return false
	}
	return isHidden(s.hiddenRules(), name)
}

// Filter returns the records that are not hidden, preserving order.
func (s *Settings) Filter(records []network.Record) []network.Record {
	if s == nil {
		return records
	}
	rules := s.hiddenRules()
	if len(rules) == 0 {
		return records
	}
	out := make([]network.Record, 0, len(records))
	for _, r := range records {
		if !isHidden(rules, r.AgentName) {
			out = append(out, r)
		}
	}
	return out
}

func isHidden(rules []hiddenRule, name string) bool {
	for _, r := range rules {
		if r.match(name) {
			return true
		}
	}
	return false
}
