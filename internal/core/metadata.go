package core

import (
	"context"
	"strings"
	"sync"

	"github.com/JonMunkholm/dqgen/internal/logging"
)

// Metadata sets of validation_rule_metadata.
const (
	SetRuleCategory     = "Rule Category"
	SetRuleType         = "Rule Type"
	SetEntityType       = "Entity Type"
	SetSubEntityType    = "Sub_Entity_Type"
	SetIngestOrUI       = "Ingest_Or_UI"
	SetEnforcementLevel = "Enforcement_Level"
)

// Error/warning sub-types derived from the enforcement level.
const (
	EnforcementLevelError int64 = 28
	ErrorWarningTypeError int64 = 31
	ErrorWarningTypeWarn  int64 = 32
)

// MetadataLookup is the store call the resolver needs.
type MetadataLookup interface {
	MetadataID(ctx context.Context, ns, set, value string) (int64, bool, error)
}

type metaKey struct{ set, value string }

type metaHit struct {
	id int64
	ok bool
}

// MetadataResolver resolves categorical values to metadata ids and memoises
// every answer, hits and misses alike, for the lifetime of one run.
type MetadataResolver struct {
	store MetadataLookup
	ns    string

	mu    sync.Mutex
	cache map[metaKey]metaHit
}

// NewMetadataResolver returns a resolver reading validation_rule_metadata in ns.
func NewMetadataResolver(store MetadataLookup, ns string) *MetadataResolver {
	return &MetadataResolver{store: store, ns: ns, cache: make(map[metaKey]metaHit)}
}

// Resolve returns the metadata id for value in set. Blank, NA, NAN and NONE
// resolve to not-found without a query. A value with no match is logged and
// reported as not-found; only store failures return an error.
func (m *MetadataResolver) Resolve(ctx context.Context, set, value string) (int64, bool, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if isNullToken(v) {
		return 0, false, nil
	}

	key := metaKey{set: strings.ToUpper(strings.TrimSpace(set)), value: v}
	m.mu.Lock()
	hit, cached := m.cache[key]
	m.mu.Unlock()
	if cached {
		return hit.id, hit.ok, nil
	}

	id, ok, err := m.store.MetadataID(ctx, m.ns, set, v)
	if err != nil {
		return 0, false, storeErr("metadata lookup", err)
	}
	if !ok {
		logging.FromContext(ctx).Warn("metadata not found", "set", set, "value", v)
	}

	m.mu.Lock()
	m.cache[key] = metaHit{id: id, ok: ok}
	m.mu.Unlock()
	return id, ok, nil
}

func isNullToken(v string) bool {
	switch v {
	case "", "NA", "N/A", "NAN", "NONE", "NULL":
		return true
	}
	return false
}

// ErrorWarningType derives the error/warning sub-type from a resolved
// enforcement level. An unresolved level has no sub-type.
func ErrorWarningType(enforcementID int64, resolved bool) (int64, bool) {
	if !resolved {
		return 0, false
	}
	if enforcementID == EnforcementLevelError {
		return ErrorWarningTypeError, true
	}
	return ErrorWarningTypeWarn, true
}

// CanonicalRuleCategory upper-cases and joins words with underscores.
func CanonicalRuleCategory(s string) string {
	return underscored(s)
}

// CanonicalEntityType normalises an entity name for the Entity Type set.
func CanonicalEntityType(s string) string {
	v := underscored(s)
	if v == "LOCATION_ORGANIZATION" {
		return "ORGANIZATION_LOCATION"
	}
	return v
}

// CanonicalSubEntity normalises a sub-entity for the Sub_Entity_Type set.
func CanonicalSubEntity(s string) string {
	v := strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	if v == "LOCATION ORGANIZATION" {
		return "ORGANIZATION AND LOCATION ORGANIZATION"
	}
	return v
}

func underscored(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), "_")
}
