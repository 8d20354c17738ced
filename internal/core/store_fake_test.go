package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/dqgen/internal/schema"
)

// memStore is an in-memory Store keyed by schema namespace.
type memStore struct {
	mu sync.Mutex

	metadata map[string]int64             // ns|SET|VALUE
	rules    map[string]map[string]Record // ns -> business_rule_id
	exts     map[string]map[string]Record // ns -> extensionKey
	zones    map[string]int64             // ns|TABLE|ZONE
	entities map[string]EntityInfo        // ns|ENTITY
	sources  map[string][]string          // ns|OWNER

	failOp        string
	metadataCalls int
	applied       int
}

func newMemStore() *memStore {
	return &memStore{
		metadata: make(map[string]int64),
		rules:    make(map[string]map[string]Record),
		exts:     make(map[string]map[string]Record),
		zones:    make(map[string]int64),
		entities: make(map[string]EntityInfo),
		sources:  make(map[string][]string),
	}
}

var errStoreDown = errors.New("connection refused")

func storeKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

func (m *memStore) fail(op string) error {
	if m.failOp == op {
		return errStoreDown
	}
	return nil
}

func (m *memStore) addMetadata(ns, set, value string, id int64) {
	m.metadata[storeKey(ns, set, value)] = id
}

func (m *memStore) addRule(ns string, r Record) {
	if m.rules[ns] == nil {
		m.rules[ns] = make(map[string]Record)
	}
	m.rules[ns][r.Get("business_rule_id")] = r.Clone()
}

func (m *memStore) addExtension(ns string, r Record) {
	if m.exts[ns] == nil {
		m.exts[ns] = make(map[string]Record)
	}
	ruleID, _ := r.Int("rule_id")
	m.exts[ns][extensionKey(ruleID, r.Get("source_owner_name"))] = r.Clone()
}

func (m *memStore) MetadataID(_ context.Context, ns, set, value string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataCalls++
	if err := m.fail("metadata"); err != nil {
		return 0, false, err
	}
	id, ok := m.metadata[storeKey(ns, set, value)]
	return id, ok, nil
}

func (m *memStore) MaxRuleID(_ context.Context, ns string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("max_rule"); err != nil {
		return 0, err
	}
	var hi int64
	for _, r := range m.rules[ns] {
		if id, ok := r.Int("rule_id"); ok && id > hi {
			hi = id
		}
	}
	return hi, nil
}

func (m *memStore) FindRule(_ context.Context, ns, businessRuleID string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("find_rule"); err != nil {
		return nil, false, err
	}
	r, ok := m.rules[ns][businessRuleID]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *memStore) MaxRuleExtnID(_ context.Context, ns, sourceOwner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hi int64
	for _, r := range m.exts[ns] {
		if sourceOwner != "" && !strings.EqualFold(r.Get("source_owner_name"), sourceOwner) {
			continue
		}
		if id, ok := r.Int("rule_extn_id"); ok && id > hi {
			hi = id
		}
	}
	return hi, nil
}

func (m *memStore) FindRuleExtension(_ context.Context, ns string, ruleID int64, sourceOwner string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.exts[ns][extensionKey(ruleID, sourceOwner)]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *memStore) RuleExtnIDExists(_ context.Context, ns string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("extn_exists"); err != nil {
		return false, err
	}
	for _, r := range m.exts[ns] {
		if got, ok := r.Int("rule_extn_id"); ok && got == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ZoneTableID(_ context.Context, ns, tableName, zone string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.zones[storeKey(ns, tableName, zone)]
	return id, ok, nil
}

func (m *memStore) EntityInfo(_ context.Context, ns, entityName string) (EntityInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[storeKey(ns, entityName)]
	return e, ok, nil
}

func (m *memStore) SourceTableIDs(_ context.Context, ns, sourceOwner string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append([]string(nil), m.sources[storeKey(ns, sourceOwner)]...)
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) ApplyRecords(_ context.Context, ns string, table schema.Table, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("apply"); err != nil {
		return err
	}
	for _, r := range records {
		m.applied++
		switch table.Name {
		case schema.ValidationRules.Name:
			if m.rules[ns] == nil {
				m.rules[ns] = make(map[string]Record)
			}
			m.rules[ns][r.Get("business_rule_id")] = r.Clone()
		case schema.RuleExtensions.Name:
			if m.exts[ns] == nil {
				m.exts[ns] = make(map[string]Record)
			}
			ruleID, _ := r.Int("rule_id")
			m.exts[ns][extensionKey(ruleID, r.Get("source_owner_name"))] = r.Clone()
		}
	}
	return nil
}

var _ Store = (*memStore)(nil)
