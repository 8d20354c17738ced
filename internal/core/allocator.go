package core

import (
	"strconv"
	"strings"
	"sync"
)

// SourceOwnerHRP is the source owner whose extensions use their own id range.
const SourceOwnerHRP = "HRP"

// IsHRP reports whether owner is the HRP source owner.
func IsHRP(owner string) bool {
	return strings.EqualFold(strings.TrimSpace(owner), SourceOwnerHRP)
}

// RuleAllocator hands out rule_id values for one rules schema, starting
// after the stored maximum. A business key allocated once in a run keeps its id.
type RuleAllocator struct {
	mu   sync.Mutex
	last int64
	keys map[string]int64
}

// NewRuleAllocator seeds the counter with the stored MAX(rule_id).
func NewRuleAllocator(max int64) *RuleAllocator {
	return &RuleAllocator{last: max, keys: make(map[string]int64)}
}

// Reserve returns the id already allocated to key in this run, or the next one.
func (a *RuleAllocator) Reserve(key string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.keys[key]; ok {
		return id
	}
	a.last++
	a.keys[key] = a.last
	return a.last
}

// Last returns the highest id handed out, or the seed.
func (a *RuleAllocator) Last() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// ExtensionAllocator hands out rule_extn_id values for one tenant schema.
//
// HRP extensions continue from the stored HRP maximum; all other owners
// continue from the stored overall maximum. Every HRP id also raises the
// overall counter, and an HRP id never repeats one handed out to another
// owner earlier in the run.
type ExtensionAllocator struct {
	mu      sync.Mutex
	hrp     int64
	overall int64
	issued  map[int64]struct{}
	keys    map[string]int64
}

// NewExtensionAllocator seeds both counters from the store.
func NewExtensionAllocator(maxHRP, maxOverall int64) *ExtensionAllocator {
	if maxOverall < maxHRP {
		maxOverall = maxHRP
	}
	return &ExtensionAllocator{
		hrp:     maxHRP,
		overall: maxOverall,
		issued:  make(map[int64]struct{}),
		keys:    make(map[string]int64),
	}
}

// Reserve returns the id already allocated to key in this run, or the next
// id from the counter for sourceOwner.
func (a *ExtensionAllocator) Reserve(key, sourceOwner string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.keys[key]; ok {
		return id
	}

	var id int64
	if IsHRP(sourceOwner) {
		id = a.hrp + 1
		for a.isIssued(id) {
			id++
		}
		a.hrp = id
		if id > a.overall {
			a.overall = id
		}
	} else {
		a.overall++
		id = a.overall
	}

	a.issued[id] = struct{}{}
	a.keys[key] = id
	return id
}

// Skip abandons the id reserved for key, which stays unusable for the rest of
// the run, and reserves the next one.
func (a *ExtensionAllocator) Skip(key, sourceOwner string) int64 {
	a.mu.Lock()
	delete(a.keys, key)
	a.mu.Unlock()
	return a.Reserve(key, sourceOwner)
}

func (a *ExtensionAllocator) isIssued(id int64) bool {
	_, ok := a.issued[id]
	return ok
}

// extensionKey is the business key of an extension inside one tenant schema.
func extensionKey(ruleID int64, sourceOwner string) string {
	return strings.ToUpper(strings.TrimSpace(sourceOwner)) + "\x00" + strconv.FormatInt(ruleID, 10)
}
