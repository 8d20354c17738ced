package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/dqgen/internal/config"
	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/JonMunkholm/dqgen/internal/workbook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rulesNS = "healthfirst_configdb"
	pehpNS  = "pehp_configdb"
)

var fixedNow = time.Date(2026, time.May, 10, 9, 30, 0, 0, time.UTC)

func masterWorkbook() *workbook.Workbook {
	header := []string{
		"Rule ID", "Rule Category", "Sub-Entity", "Entity", "Ingest+UI/UI Only",
		"Enforcement Level", "Table Name", "Column Name", "Rule Name",
		"Rule Description", "Date Updated",
	}
	return &workbook.Workbook{Sheets: []workbook.Sheet{
		{
			Name:   "Practitioner",
			Header: header,
			Rows: [][]string{
				{"DQ-100", "Completeness", "Individual", "Practitioner", "Ingest+UI", "Error", "practitioner", "npi", "NPI required", "NPI must be present", "1/15/2026"},
				{"DQ-101", "Completeness", "Individual", "Practitioner", "Ingest+UI", "Warning", "practitioner", "last_name", "Last name required", "", "2026-01-15"},
			},
		},
		{
			Name:   "Organization",
			Header: header,
			Rows: [][]string{
				{"DQ-102", "Validity", "", "Organization", "UI Only", "Error", "organization", "tin", "TIN format", "TIN must be 9 digits", ""},
			},
		},
	}}
}

func ruleRequests(rows ...[]string) *workbook.Sheet {
	return &workbook.Sheet{
		Name:   "requests",
		Header: []string{"Ticket", "Tenant", "Rule ID", "Rule Type", "Description"},
		Rows:   rows,
	}
}

func configRequests(rows ...[]string) *workbook.Sheet {
	return &workbook.Sheet{
		Name:   "requests",
		Header: []string{"ticket", "tenant", "ruleid", "zoneapplied", "sourceownername"},
		Rows:   rows,
	}
}

func seededStore() *memStore {
	m := newMemStore()
	m.addMetadata(rulesNS, SetRuleCategory, "COMPLETENESS", 1)
	m.addMetadata(rulesNS, SetRuleCategory, "VALIDITY", 2)
	m.addMetadata(rulesNS, SetRuleType, "MANDATORY", 10)
	m.addMetadata(rulesNS, SetRuleType, "FORMAT", 11)
	m.addMetadata(rulesNS, SetEntityType, "PRACTITIONER", 20)
	m.addMetadata(rulesNS, SetEntityType, "ORGANIZATION", 21)
	m.addMetadata(rulesNS, SetSubEntityType, "INDIVIDUAL", 25)
	m.addMetadata(rulesNS, SetIngestOrUI, "INGEST+UI", 40)
	m.addMetadata(rulesNS, SetEnforcementLevel, "ERROR", EnforcementLevelError)
	m.addMetadata(rulesNS, SetEnforcementLevel, "WARNING", 29)

	existing := Record{}
	existing.SetInt("rule_id", 41)
	existing.SetString("business_rule_id", "DQ-001")
	m.addRule(rulesNS, existing)
	return m
}

type testEnv struct {
	store   *memStore
	tenants *config.Tenants
	svc     *Service
	root    string
}

func newTestEnv(t *testing.T, store *memStore, apply bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	tenants := config.DefaultTenants(root)
	svc := NewService(store, tenants, Options{
		ApplyToStore: apply,
		Emitter:      &Emitter{Now: func() time.Time { return fixedNow }},
	})
	return &testEnv{store: store, tenants: tenants, svc: svc, root: root}
}

func (e *testEnv) read(t *testing.T, parts ...string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(append([]string{e.root}, parts...)...))
	require.NoError(t, err)
	return string(data)
}

func rowByKey(t *testing.T, res *RunResult, key string) RowResult {
	t.Helper()
	for _, g := range res.Groups {
		for _, r := range g.Rows {
			if r.BusinessKey == key {
				return r
			}
		}
	}
	t.Fatalf("no row for %s", key)
	return RowResult{}
}

func TestRunAddUpdate_NewRuleInserted(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(),
		ruleRequests([]string{"DQ-7", "c", "DQ-100", "mandatory", ""}))
	require.NoError(t, err)

	row := rowByKey(t, res, "DQ-100")
	assert.Equal(t, OutcomeInserted, row.Outcome)
	assert.Equal(t, int64(42), row.ID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Rules)
	assert.Equal(t, []string{"Provider Network", "Address", "Network"}, res.Missing)

	csv := env.read(t, "data", "load_validation_rules_data_ver_3_5_1.csv")
	lines := strings.Split(strings.TrimRight(csv, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `"rule_id","business_rule_id","rule_category_id"`))
	assert.Contains(t, lines[1], `"42","DQ-100","1","COMPLETENESS","NPI required","NPI must be present","10","20"`)
	assert.Contains(t, lines[1], `"2026-01-15","Y","SYSTEM","25","40","28","31","TRUE"`)

	xml := env.read(t, "data", "load_validation_rules_data_ver_3_5_1.xml")
	assert.Contains(t, xml, `id="load_validation_rules_data_3_5_1__DQ-7"`)
	assert.Contains(t, xml, `file="load_validation_rules_data_ver_3_5_1.csv"`)
	assert.Equal(t, len(schema.ValidationRulesColumns), strings.Count(xml, "<column index="))

	manifest := env.read(t, "dev-3.5.0.xml")
	assert.Contains(t, manifest, `<include file="data/load_validation_rules_data_ver_3_5_1.xml" relativeToChangelogFile="true"/>`)
	assert.Contains(t, manifest, "below are for DQ-7 ADD DQ Rules")
}

func TestRunAddUpdate_IDsAreContiguous(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-7", "c", "DQ-999", "MANDATORY", ""},
		[]string{"DQ-7", "c", "DQ-101", "MANDATORY", ""},
		[]string{"DQ-7", "c", "DQ-102", "FORMAT", ""},
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
	))
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	rows := res.Groups[0].Rows
	require.Len(t, rows, 5)

	assert.Equal(t, OutcomeInserted, rows[0].Outcome)
	assert.Equal(t, int64(42), rows[0].ID)
	assert.Equal(t, OutcomeSkippedNotFound, rows[1].Outcome)
	assert.Zero(t, rows[1].ID)
	assert.Equal(t, int64(43), rows[2].ID)
	assert.Equal(t, int64(44), rows[3].ID)
	assert.Equal(t, OutcomeSkippedDuplicate, rows[4].Outcome)
	assert.Equal(t, int64(42), rows[4].ID)

	assert.Equal(t, 3, res.Counts[OutcomeInserted])
}

func TestRunAddUpdate_RepeatedKeyWithChangeReplacesRow(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-7", "c", "DQ-100", "FORMAT", ""},
	))
	require.NoError(t, err)

	rows := res.Groups[0].Rows
	assert.Equal(t, OutcomeInserted, rows[1].Outcome, "a rule not in the store is still an insert")
	assert.Equal(t, []string{"rule_type_id"}, rows[1].Changed)
	assert.Equal(t, rows[0].ID, rows[1].ID)
	assert.Equal(t, 2, res.Counts[OutcomeInserted])
	assert.Zero(t, res.Counts[OutcomeUpdated])

	csv := env.read(t, "data", "load_validation_rules_data_ver_3_5_1.csv")
	assert.Equal(t, 2, strings.Count(csv, "\n"), "header plus one row")
	assert.Contains(t, csv, `"42","DQ-100","1","COMPLETENESS","NPI required","NPI must be present","11"`)
}

func TestRunAddUpdate_KeyRepeatedAcrossTickets(t *testing.T) {
	env := newTestEnv(t, seededStore(), true)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-8", "c", "DQ-100", "MANDATORY", ""},
	))
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)

	first, second := res.Groups[0].Rows[0], res.Groups[1].Rows[0]
	assert.Equal(t, OutcomeInserted, first.Outcome)
	assert.Equal(t, OutcomeSkippedDuplicate, second.Outcome)
	assert.Equal(t, int64(42), second.ID)
	assert.Contains(t, second.Reason, "earlier ticket")

	assert.Equal(t, 1, res.Counts[OutcomeInserted])
	assert.Equal(t, 1, res.Applied)
	assert.Empty(t, res.Groups[1].Emit.Version, "nothing emitted for the second ticket")

	_, err = os.Stat(filepath.Join(env.root, "data", "load_validation_rules_data_ver_3_5_2.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunAddUpdate_KeyChangedUnderLaterTicket(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-8", "c", "DQ-100", "FORMAT", ""},
	))
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)

	second := res.Groups[1].Rows[0]
	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, []string{"rule_type_id"}, second.Changed)
	assert.Equal(t, int64(42), second.ID)
	assert.Equal(t, "3_5_2", res.Groups[1].Emit.Version)

	csv := env.read(t, "data", "load_validation_rules_data_ver_3_5_2.csv")
	assert.Contains(t, csv, `"42","DQ-100","1","COMPLETENESS","NPI required","NPI must be present","11"`)
}

func TestRunAddUpdate_ResubmissionIsIdempotent(t *testing.T) {
	store := seededStore()
	env := newTestEnv(t, store, true)
	reqs := ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""})

	first, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), reqs)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, rowByKey(t, first, "DQ-100").Outcome)
	assert.Equal(t, 1, first.Applied)
	assert.Len(t, first.Files, 3)

	second, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), reqs)
	require.NoError(t, err)

	row := rowByKey(t, second, "DQ-100")
	assert.Equal(t, OutcomeSkippedDuplicate, row.Outcome)
	assert.Equal(t, int64(42), row.ID)
	assert.Empty(t, second.Files)
	assert.Zero(t, second.Applied)
	assert.Equal(t, 1, store.applied, "store unchanged by the second run")

	entries, err := os.ReadDir(filepath.Join(env.root, "data"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no second version written")
}

func TestRunAddUpdate_ChangedStoredRuleUpdated(t *testing.T) {
	store := seededStore()
	env := newTestEnv(t, store, true)
	reqs := ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""})

	_, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), reqs)
	require.NoError(t, err)

	stored := store.rules[rulesNS]["DQ-100"]
	stored.SetString("rule_name", "old name")
	stored.SetString("enabled", "true")
	stored.SetString("rule_category_id", "1.0")

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), reqs)
	require.NoError(t, err)

	row := rowByKey(t, res, "DQ-100")
	assert.Equal(t, OutcomeUpdated, row.Outcome)
	assert.Equal(t, []string{"rule_name"}, row.Changed)
	assert.Equal(t, int64(42), row.ID)

	_, err = os.Stat(filepath.Join(env.root, "data", "load_validation_rules_data_ver_3_5_2.csv"))
	assert.NoError(t, err)
}

func TestRunAddUpdate_TenantGroupsGetOwnVersions(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "p", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-7", "hf", "DQ-101", "MANDATORY", ""},
		[]string{"DQ-8", "pehp", "DQ-102", "FORMAT", ""},
	))
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	assert.Equal(t, "pehp", res.Groups[0].Tenant)
	assert.Equal(t, "healthfirst", res.Groups[1].Tenant)
	assert.Equal(t, "3_5_1", res.Groups[0].Emit.Version)
	assert.Equal(t, "3_5_1", res.Groups[1].Emit.Version)
	assert.Equal(t, "3_5_2", res.Groups[2].Emit.Version)

	manifest := env.read(t, "tenants", "pehp", "dev-3.5.0.xml")
	assert.Contains(t, manifest, "load_validation_rules_data_ver_3_5_1.xml")
	assert.Contains(t, manifest, "load_validation_rules_data_ver_3_5_2.xml")
	assert.Less(t,
		strings.Index(manifest, "ver_3_5_1.xml"),
		strings.Index(manifest, "ver_3_5_2.xml"))

	ids := map[int64]bool{}
	for _, g := range res.Groups {
		for _, r := range g.Rows {
			assert.False(t, ids[r.ID], "id %d reused", r.ID)
			ids[r.ID] = true
		}
	}
}

func TestRunAddUpdate_UnresolvedMetadataLeftEmpty(t *testing.T) {
	store := seededStore()
	env := newTestEnv(t, store, false)

	wb := masterWorkbook()
	wb.Sheets[0].Rows[0][5] = "N/A"

	_, err := env.svc.RunAddUpdate(context.Background(), wb,
		ruleRequests([]string{"DQ-7", "c", "DQ-100", "UNKNOWN-TYPE", ""}))
	require.NoError(t, err)

	csv := env.read(t, "data", "load_validation_rules_data_ver_3_5_1.csv")
	assert.Contains(t, csv, `"NPI must be present","","20"`, "rule_type_id empty")
	assert.Contains(t, csv, `"25","40","","","TRUE"`, "enforcement and error/warning type empty")
}

func TestRunAddUpdate_MetadataMemoised(t *testing.T) {
	store := seededStore()
	env := newTestEnv(t, store, false)

	_, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(), ruleRequests(
		[]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""},
		[]string{"DQ-7", "c", "DQ-101", "MANDATORY", ""},
	))
	require.NoError(t, err)
	// DQ-101 differs only in enforcement level.
	assert.Equal(t, 7, store.metadataCalls)
}

func TestRun_RequestErrorsFailBeforeWork(t *testing.T) {
	tests := []struct {
		name    string
		wf      Workflow
		sheet   *workbook.Sheet
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown tenant",
			wf:      WorkflowAddUpdate,
			sheet:   ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""}, []string{"DQ-7", "acme", "DQ-101", "MANDATORY", ""}),
			wantErr: config.ErrUnknownTenant,
			wantMsg: "line 3",
		},
		{
			name:    "missing column",
			wf:      WorkflowAddUpdate,
			sheet:   &workbook.Sheet{Header: []string{"ticket", "rule id"}, Rows: [][]string{{"DQ-7", "DQ-100"}}},
			wantErr: ErrInvalidRequest,
			wantMsg: "tenant",
		},
		{
			name:    "missing ticket",
			wf:      WorkflowAddUpdate,
			sheet:   ruleRequests([]string{"", "c", "DQ-100", "MANDATORY", ""}),
			wantErr: ErrInvalidRequest,
			wantMsg: "line 2",
		},
		{
			name:    "configure on tenant without schema",
			wf:      WorkflowConfigure,
			sheet:   configRequests([]string{"DQ-7", "common", "DQ-100", "RAW", "HRP"}),
			wantMsg: "has no schema",
		},
		{
			name:    "no rows",
			wf:      WorkflowAddUpdate,
			sheet:   ruleRequests(),
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "unknown workflow",
			wf:      Workflow("delete"),
			sheet:   ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""}),
			wantErr: ErrUnknownWorkflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			env := newTestEnv(t, store, false)

			_, err := env.svc.Run(context.Background(), tt.wf, masterWorkbook(), tt.sheet)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}

			assert.Zero(t, store.metadataCalls)
			entries, _ := os.ReadDir(env.root)
			assert.Empty(t, entries)
		})
	}
}

func TestRun_StoreErrorAborts(t *testing.T) {
	store := seededStore()
	store.failOp = "find_rule"
	env := newTestEnv(t, store, false)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(),
		ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""}))
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "find rule", se.Op)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Contains(t, err.Error(), "line 2 (DQ-100)")
	assert.Empty(t, res.Files)
	assert.Equal(t, "DB003", MapError(err).Code)
}

func TestRun_ApplyErrorAfterFilesWritten(t *testing.T) {
	store := seededStore()
	store.failOp = "apply"
	env := newTestEnv(t, store, true)

	res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(),
		ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""}))
	require.Error(t, err)
	assert.Len(t, res.Files, 3, "files written before the failure stay")
}

func configureStore() *memStore {
	m := seededStore()

	rule := Record{}
	rule.SetInt("rule_id", 7)
	rule.SetString("business_rule_id", "DQ-101")
	m.addRule(pehpNS, rule)

	rule = Record{}
	rule.SetInt("rule_id", 8)
	rule.SetString("business_rule_id", "DQ-102")
	m.addRule(pehpNS, rule)

	m.zones[storeKey(pehpNS, "PRACTITIONER", "RAW")] = 501
	m.zones[storeKey(pehpNS, "ORGANIZATION", "RAW")] = 502
	m.entities[storeKey(pehpNS, "PRACTITIONER")] = EntityInfo{ID: 3, KeyField: "practitioner_id"}
	m.entities[storeKey(pehpNS, "ORGANIZATION")] = EntityInfo{ID: 4, KeyField: "organization_id"}
	m.sources[storeKey(pehpNS, "FACETS")] = []string{"12", "11"}

	for _, e := range []struct {
		id    int64
		owner string
	}{{100, "HRP"}, {103, "FACETS"}} {
		r := Record{}
		r.SetInt("rule_extn_id", e.id)
		r.SetInt("rule_id", 1)
		r.SetString("source_owner_name", e.owner)
		m.addExtension(pehpNS, r)
	}
	return m
}

func TestRunConfigure_MissingRuleSkippedOthersProcessed(t *testing.T) {
	env := newTestEnv(t, configureStore(), false)

	res, err := env.svc.RunConfigure(context.Background(), masterWorkbook(), configRequests(
		[]string{"DQ-9", "pehp", "DQ-100", "RAW", "HRP"},
		[]string{"DQ-9", "pehp", "DQ-101", "RAW", "HRP"},
	))
	require.NoError(t, err)

	missing := rowByKey(t, res, "DQ-100")
	assert.Equal(t, OutcomeSkippedNotFound, missing.Outcome)
	assert.Contains(t, missing.Reason, "validation_rules")

	row := rowByKey(t, res, "DQ-101")
	assert.Equal(t, OutcomeInserted, row.Outcome)
	assert.Equal(t, int64(101), row.ID)

	csv := env.read(t, "tenants", "pehp", "data", "load_des_validation_rules_extn_data_ver_3_5_1.csv")
	assert.True(t, strings.HasPrefix(csv, `"rule_extn_id","rule_id"`))
	assert.Contains(t, csv, `"101","7","","RAW","501","LAST_NAME"`)
	assert.Contains(t, csv, `"practitioner_id","3","HRP"`)

	manifest := env.read(t, "tenants", "pehp", "dev-3.5.0.xml")
	assert.Contains(t, manifest, "Configure DQ Rules")
}

func TestRunConfigure_HRPSkipsIDsStoredForOtherOwners(t *testing.T) {
	store := configureStore()
	other := Record{}
	other.SetInt("rule_extn_id", 101)
	other.SetInt("rule_id", 2)
	other.SetString("source_owner_name", "FACETS")
	store.addExtension(pehpNS, other)
	env := newTestEnv(t, store, false)

	res, err := env.svc.RunConfigure(context.Background(), masterWorkbook(), configRequests(
		[]string{"DQ-9", "pehp", "DQ-101", "RAW", "HRP"},
		[]string{"DQ-9", "pehp", "DQ-102", "RAW", "HRP"},
	))
	require.NoError(t, err)

	rows := res.Groups[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, int64(102), rows[0].ID, "101 is held by a FACETS row")
	assert.Equal(t, int64(104), rows[1].ID, "103 is held by a FACETS row")
}

func TestRunConfigure_ExtensionIDLookupFailureAborts(t *testing.T) {
	store := configureStore()
	store.failOp = "extn_exists"
	env := newTestEnv(t, store, false)

	_, err := env.svc.RunConfigure(context.Background(), masterWorkbook(), configRequests(
		[]string{"DQ-9", "pehp", "DQ-101", "RAW", "HRP"},
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
}

func TestRunConfigure_SourceOwnersDoNotCollide(t *testing.T) {
	env := newTestEnv(t, configureStore(), false)

	res, err := env.svc.RunConfigure(context.Background(), masterWorkbook(), configRequests(
		[]string{"DQ-9", "p", "DQ-101", "raw", "Facets"},
		[]string{"DQ-9", "p", "DQ-101", "RAW", "hrp"},
		[]string{"DQ-9", "p", "DQ-102", "RAW", "HRP"},
		[]string{"DQ-9", "p", "DQ-102", "RAW", "FACETS"},
	))
	require.NoError(t, err)

	rows := res.Groups[0].Rows
	require.Len(t, rows, 4)
	assert.Equal(t, int64(104), rows[0].ID)
	assert.Equal(t, "HRP", rows[1].SourceOwner)
	assert.Equal(t, int64(101), rows[1].ID)
	assert.Equal(t, int64(102), rows[2].ID)
	assert.Equal(t, int64(105), rows[3].ID)

	csv := env.read(t, "tenants", "pehp", "data", "load_des_validation_rules_extn_data_ver_3_5_1.csv")
	assert.Contains(t, csv, `"11,12"`, "source tables joined for non-HRP owners")
}

func TestRunConfigure_MissingZoneTableSkipped(t *testing.T) {
	env := newTestEnv(t, configureStore(), false)

	res, err := env.svc.RunConfigure(context.Background(), masterWorkbook(), configRequests(
		[]string{"DQ-9", "pehp", "DQ-101", "CURATED", "HRP"},
	))
	require.NoError(t, err)

	row := rowByKey(t, res, "DQ-101")
	assert.Equal(t, OutcomeSkippedNotFound, row.Outcome)
	assert.Contains(t, row.Reason, "CURATED")
	assert.Empty(t, res.Files)
}

func TestService_ConcurrentRunsAllocateDistinctIDs(t *testing.T) {
	store := seededStore()
	env := newTestEnv(t, store, true)

	keys := []string{"DQ-100", "DQ-101", "DQ-102"}
	type out struct {
		res *RunResult
		err error
	}
	results := make(chan out, len(keys))
	for _, k := range keys {
		go func(k string) {
			res, err := env.svc.RunAddUpdate(context.Background(), masterWorkbook(),
				ruleRequests([]string{"DQ-7", "c", k, "MANDATORY", ""}))
			results <- out{res, err}
		}(k)
	}

	seen := map[int64]bool{}
	versions := map[string]bool{}
	for range keys {
		o := <-results
		require.NoError(t, o.err)
		row := o.res.Groups[0].Rows[0]
		assert.False(t, seen[row.ID], "duplicate id %d", row.ID)
		seen[row.ID] = true
		versions[o.res.Groups[0].Emit.Version] = true
	}
	assert.Equal(t, map[int64]bool{42: true, 43: true, 44: true}, seen)
	assert.Len(t, versions, 3)
}

func TestRun_CancelledContext(t *testing.T) {
	env := newTestEnv(t, seededStore(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// One slot, already taken, so Acquire must observe the cancellation.
	env.svc.limiter = NewRunLimiter(1, time.Second)
	require.NoError(t, env.svc.limiter.Acquire(context.Background()))
	defer env.svc.limiter.Release()

	_, err := env.svc.RunAddUpdate(ctx, masterWorkbook(),
		ruleRequests([]string{"DQ-7", "c", "DQ-100", "MANDATORY", ""}))
	assert.True(t, errors.Is(err, context.Canceled))
}
