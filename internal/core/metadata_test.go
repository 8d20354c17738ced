package core

import (
	"context"
	"errors"
	"testing"
)

func TestMetadataResolver(t *testing.T) {
	store := newMemStore()
	store.addMetadata("cfg", SetRuleType, "MANDATORY", 10)
	r := NewMetadataResolver(store, "cfg")
	ctx := context.Background()

	tests := []struct {
		value  string
		wantID int64
		wantOK bool
	}{
		{"MANDATORY", 10, true},
		{"  mandatory ", 10, true},
		{"OPTIONAL", 0, false},
		{"", 0, false},
		{"NA", 0, false},
		{"nan", 0, false},
		{"None", 0, false},
	}
	for _, tt := range tests {
		id, ok, err := r.Resolve(ctx, SetRuleType, tt.value)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tt.value, err)
		}
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("Resolve(%q) = (%d, %v), want (%d, %v)", tt.value, id, ok, tt.wantID, tt.wantOK)
		}
	}

	// MANDATORY and OPTIONAL hit the store once each; null tokens never do.
	if store.metadataCalls != 2 {
		t.Errorf("store calls = %d, want 2", store.metadataCalls)
	}
}

func TestMetadataResolver_StoreError(t *testing.T) {
	store := newMemStore()
	store.failOp = "metadata"
	r := NewMetadataResolver(store, "cfg")

	_, _, err := r.Resolve(context.Background(), SetRuleType, "MANDATORY")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Resolve() error = %v, want *StoreError", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("Resolve() error should wrap the store error")
	}
}

func TestErrorWarningType(t *testing.T) {
	tests := []struct {
		level    int64
		resolved bool
		want     int64
		wantOK   bool
	}{
		{EnforcementLevelError, true, ErrorWarningTypeError, true},
		{29, true, ErrorWarningTypeWarn, true},
		{0, false, 0, false},
	}
	for _, tt := range tests {
		got, ok := ErrorWarningType(tt.level, tt.resolved)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ErrorWarningType(%d, %v) = (%d, %v), want (%d, %v)", tt.level, tt.resolved, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCanonicalNames(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"category", CanonicalRuleCategory, "Data  Completeness", "DATA_COMPLETENESS"},
		{"entity", CanonicalEntityType, "Practitioner", "PRACTITIONER"},
		{"entity swap", CanonicalEntityType, "Location Organization", "ORGANIZATION_LOCATION"},
		{"sub entity", CanonicalSubEntity, " individual ", "INDIVIDUAL"},
		{"sub entity swap", CanonicalSubEntity, "location  organization", "ORGANIZATION AND LOCATION ORGANIZATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
