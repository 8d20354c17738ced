package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTenant is returned when a request names a tenant that is not in the catalog.
var ErrUnknownTenant = errors.New("unknown tenant")

// Tenant is one installation scope with its own changelog directory and schema.
type Tenant struct {
	// Key is the short code used on request rows, e.g. "p".
	Key string `yaml:"key"`

	// Name is the long name, e.g. "pehp". Requests may use it instead of Key.
	Name string `yaml:"name"`

	Aliases []string `yaml:"aliases"`

	// Dir is the changelog directory relative to changelog_root. Empty means
	// the root itself (the shared "common" changelog).
	Dir string `yaml:"dir"`

	// Schema is the tenant's config schema. Configure runs require it.
	Schema string `yaml:"schema"`
}

// Tenants is the tenant catalog plus the workbook and store settings shared by all tenants.
type Tenants struct {
	ChangelogRoot string `yaml:"changelog_root"`

	// DataDir is the subdirectory of a tenant directory holding CSV/XML fragments.
	DataDir string `yaml:"data_dir"`

	// RulesSchema holds validation_rules for add-update runs.
	RulesSchema string `yaml:"rules_schema"`

	// MetadataSchema holds validation_rule_metadata.
	MetadataSchema string `yaml:"metadata_schema"`

	// Sheets lists the master workbook sheets to consolidate, in order.
	Sheets []string `yaml:"sheets"`

	Tenants []Tenant `yaml:"tenants"`
}

// DefaultTenants returns the built-in catalog rooted at root.
func DefaultTenants(root string) *Tenants {
	return &Tenants{
		ChangelogRoot:  root,
		DataDir:        "data",
		RulesSchema:    "healthfirst_configdb",
		MetadataSchema: "healthfirst_configdb",
		Sheets:         []string{"Provider Network", "Practitioner", "Organization", "Address", "Network"},
		Tenants: []Tenant{
			{Key: "c", Name: "common"},
			{Key: "hf", Name: "healthfirst", Dir: "tenants/healthfirst", Schema: "healthfirst_configdb"},
			{Key: "p", Name: "pehp", Dir: "tenants/pehp", Schema: "pehp_configdb"},
			{Key: "s", Name: "sutter", Dir: "tenants/sutter", Schema: "sutter_configdb"},
			{Key: "hs", Name: "healthsync", Dir: "tenants/healthsync", Schema: "healthsync_configdb"},
		},
	}
}

// LoadTenants reads and validates the YAML tenant catalog at path. A missing
// file yields the built-in catalog. rootOverride, when set, replaces changelog_root.
func LoadTenants(path, rootOverride string) (*Tenants, error) {
	data, err := os.ReadFile(path)
	var t *Tenants
	switch {
	case errors.Is(err, os.ErrNotExist):
		t = DefaultTenants("")
	case err != nil:
		return nil, fmt.Errorf("read tenants %s: %w", path, err)
	default:
		t, err = ParseTenants(data)
		if err != nil {
			return nil, fmt.Errorf("parse tenants %s: %w", path, err)
		}
	}

	if rootOverride != "" {
		t.ChangelogRoot = rootOverride
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tenants %s: %w", path, err)
	}
	return t, nil
}

// ParseTenants decodes a YAML tenant catalog. Unset top-level fields fall back
// to the built-in defaults; unknown fields are rejected.
func ParseTenants(data []byte) (*Tenants, error) {
	def := DefaultTenants("")
	t := &Tenants{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if t.DataDir == "" {
		t.DataDir = def.DataDir
	}
	if t.RulesSchema == "" {
		t.RulesSchema = def.RulesSchema
	}
	if t.MetadataSchema == "" {
		t.MetadataSchema = def.MetadataSchema
	}
	if len(t.Sheets) == 0 {
		t.Sheets = def.Sheets
	}
	if len(t.Tenants) == 0 {
		t.Tenants = def.Tenants
	}
	return t, nil
}

// Validate checks the catalog and returns every problem found.
func (t *Tenants) Validate() error {
	var errs []string

	if t.ChangelogRoot == "" {
		errs = append(errs, "changelog_root is required (or set CHANGELOG_ROOT)")
	}
	if len(t.Sheets) == 0 {
		errs = append(errs, "sheets must list at least one master sheet")
	}
	if !isIdentifier(t.RulesSchema) {
		errs = append(errs, fmt.Sprintf("rules_schema (%q) is not a valid identifier", t.RulesSchema))
	}
	if !isIdentifier(t.MetadataSchema) {
		errs = append(errs, fmt.Sprintf("metadata_schema (%q) is not a valid identifier", t.MetadataSchema))
	}
	if len(t.Tenants) == 0 {
		errs = append(errs, "tenants must not be empty")
	}

	seen := map[string]string{}
	for i, tn := range t.Tenants {
		if tn.Key == "" || tn.Name == "" {
			errs = append(errs, fmt.Sprintf("tenants[%d]: key and name are required", i))
			continue
		}
		if tn.Schema != "" && !isIdentifier(tn.Schema) {
			errs = append(errs, fmt.Sprintf("tenant %s: schema (%q) is not a valid identifier", tn.Key, tn.Schema))
		}
		if filepath.IsAbs(tn.Dir) || strings.Contains(filepath.ToSlash(tn.Dir), "..") {
			errs = append(errs, fmt.Sprintf("tenant %s: dir (%q) must be relative to changelog_root", tn.Key, tn.Dir))
		}
		for _, name := range tn.names() {
			k := strings.ToLower(name)
			if other, ok := seen[k]; ok && other != tn.Key {
				errs = append(errs, fmt.Sprintf("tenant %s: name %q already used by tenant %s", tn.Key, name, other))
			}
			seen[k] = tn.Key
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Lookup finds a tenant by key, name or alias, case-insensitively.
func (t *Tenants) Lookup(name string) (Tenant, error) {
	want := strings.TrimSpace(name)
	for _, tn := range t.Tenants {
		for _, n := range tn.names() {
			if strings.EqualFold(n, want) {
				return tn, nil
			}
		}
	}
	return Tenant{}, fmt.Errorf("%w: %q", ErrUnknownTenant, name)
}

// Dir returns the tenant's changelog directory, where manifests live.
func (t *Tenants) Dir(tn Tenant) string {
	return filepath.Join(t.ChangelogRoot, filepath.FromSlash(tn.Dir))
}

// DataPath returns the directory receiving the tenant's CSV/XML fragments.
func (t *Tenants) DataPath(tn Tenant) string {
	return filepath.Join(t.Dir(tn), t.DataDir)
}

func (tn Tenant) names() []string {
	return append([]string{tn.Key, tn.Name}, tn.Aliases...)
}

// isIdentifier reports whether s is a plain lower-case SQL identifier.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
