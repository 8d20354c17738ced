package core

// reconcile.go decides, for each request row, whether the target row is new,
// unchanged or changed, and assigns its surrogate id.
//
// Per row the steps are fixed: resolve the master record, resolve every
// lookup the target schema needs, find the stored row by business key, and
// only then reuse or allocate the id. Because ids are allocated last, rows
// that end up skipped never consume one, and N new keys in a batch receive
// exactly max+1..max+N.

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/schema"
)

// Fixed values written to every generated row.
const (
	DefaultEnabled       = "Y"
	DefaultUserName      = "SYSTEM"
	DefaultTicketIndFlag = "TRUE"
	DefaultActiveFlag    = "Y"
)

// Batch is the ordered set of records to emit for one table. A business key
// appears at most once.
type Batch struct {
	Table   schema.Table
	Records []Record
	index   map[string]int
	kinds   []Outcome
}

// NewBatch returns an empty batch for t.
func NewBatch(t schema.Table) *Batch {
	return &Batch{Table: t, index: make(map[string]int)}
}

// Len returns the number of records.
func (b *Batch) Len() int { return len(b.Records) }

// lookup returns the record batched under key and the outcome it was first
// batched with.
func (b *Batch) lookup(key string) (Record, Outcome, bool) {
	i, ok := b.index[key]
	if !ok {
		return nil, "", false
	}
	return b.Records[i], b.kinds[i], true
}

// put adds r under key, or replaces the batched record keeping its outcome.
func (b *Batch) put(key string, r Record, o Outcome) {
	if i, ok := b.index[key]; ok {
		b.Records[i] = r
		return
	}
	b.index[key] = len(b.Records)
	b.Records = append(b.Records, r)
	b.kinds = append(b.kinds, o)
}

// Reconciler holds the per-run state shared by all rows of a run: the
// consolidated master, the memoised metadata answers, the id allocators
// seeded from the store and every record emitted so far. Callers must not
// run two reconcilers against the same schema at once; Service serialises them.
type Reconciler struct {
	store    Store
	catalog  *Catalog
	metadata *MetadataResolver

	rules map[string]*RuleAllocator
	exts  map[string]*ExtensionAllocator

	// emitted holds the latest record batched for each schema, table and
	// business key in any group of the run.
	emitted map[string]Record
}

// NewReconciler builds the per-run state. metadataNS holds validation_rule_metadata.
func NewReconciler(store Store, catalog *Catalog, metadataNS string) *Reconciler {
	return &Reconciler{
		store:    store,
		catalog:  catalog,
		metadata: NewMetadataResolver(store, metadataNS),
		rules:    make(map[string]*RuleAllocator),
		exts:     make(map[string]*ExtensionAllocator),
		emitted:  make(map[string]Record),
	}
}

func (r *Reconciler) ruleAllocator(ctx context.Context, ns string) (*RuleAllocator, error) {
	if a, ok := r.rules[ns]; ok {
		return a, nil
	}
	max, err := r.store.MaxRuleID(ctx, ns)
	if err != nil {
		return nil, storeErr("max rule_id", err)
	}
	logging.FromContext(ctx).Info("rule id counter seeded", "schema", ns, "max_rule_id", max)
	a := NewRuleAllocator(max)
	r.rules[ns] = a
	return a, nil
}

func (r *Reconciler) extensionAllocator(ctx context.Context, ns string) (*ExtensionAllocator, error) {
	if a, ok := r.exts[ns]; ok {
		return a, nil
	}
	maxHRP, err := r.store.MaxRuleExtnID(ctx, ns, SourceOwnerHRP)
	if err != nil {
		return nil, storeErr("max HRP rule_extn_id", err)
	}
	maxAll, err := r.store.MaxRuleExtnID(ctx, ns, "")
	if err != nil {
		return nil, storeErr("max rule_extn_id", err)
	}
	logging.FromContext(ctx).Info("extension id counters seeded",
		"schema", ns, "max_hrp_rule_extn_id", maxHRP, "max_rule_extn_id", maxAll)
	a := NewExtensionAllocator(maxHRP, maxAll)
	r.exts[ns] = a
	return a, nil
}

// ReconcileRules processes add-update requests against validation_rules in ns,
// adding INSERTED and UPDATED rows to batch. A store failure aborts and is returned.
func (r *Reconciler) ReconcileRules(ctx context.Context, ns string, reqs []RuleRequest, batch *Batch) ([]RowResult, error) {
	results := make([]RowResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := r.reconcileRule(ctx, ns, req, batch)
		if err != nil {
			return results, fmt.Errorf("line %d (%s): %w", req.Line, req.BusinessRuleID, err)
		}
		logOutcome(ctx, res)
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) reconcileRule(ctx context.Context, ns string, req RuleRequest, batch *Batch) (RowResult, error) {
	res := RowResult{Line: req.Line, Tenant: req.Tenant, Ticket: req.Ticket, BusinessKey: req.BusinessRuleID}

	master, ok := r.catalog.Lookup(req.BusinessRuleID)
	if !ok {
		res.Outcome = OutcomeSkippedNotFound
		res.Reason = "rule id not in master workbook"
		return res, nil
	}

	cand, err := r.buildRule(ctx, req, master)
	if err != nil {
		return res, err
	}

	existing, found, err := r.store.FindRule(ctx, ns, req.BusinessRuleID)
	if err != nil {
		return res, storeErr("find rule", err)
	}

	var id int64
	if found {
		if id, ok = existing.Int(schema.ValidationRules.PrimaryKey); !ok {
			return res, storeErr("find rule", fmt.Errorf("stored rule_id %q is not an integer", existing.Get("rule_id")))
		}
	} else {
		alloc, err := r.ruleAllocator(ctx, ns)
		if err != nil {
			return res, err
		}
		id = alloc.Reserve(req.BusinessRuleID)
	}
	cand.SetInt(schema.ValidationRules.PrimaryKey, id)
	res.ID = id

	r.decide(ns, batch, req.BusinessRuleID, existing, found, cand, &res)
	return res, nil
}

// buildRule merges the master record, resolved metadata and the request's
// rule type into a validation_rules candidate without its rule_id.
func (r *Reconciler) buildRule(ctx context.Context, req RuleRequest, m CatalogRecord) (Record, error) {
	category := CanonicalRuleCategory(m.RuleType)

	lookups := []struct {
		col, set, value string
	}{
		{"rule_category_id", SetRuleCategory, category},
		{"rule_type_id", SetRuleType, strings.ToUpper(strings.TrimSpace(req.RuleType))},
		{"entity_type_id", SetEntityType, CanonicalEntityType(m.Entity)},
		{"sub_entity_type_id", SetSubEntityType, CanonicalSubEntity(m.SubEntity)},
		{"ingest_or_ui_id", SetIngestOrUI, strings.ToUpper(strings.TrimSpace(m.IngestOrUI))},
		{"enforcement_level_id", SetEnforcementLevel, strings.ToUpper(strings.TrimSpace(m.EnforcementLevel))},
	}

	rec := make(Record, len(schema.ValidationRulesColumns))
	for _, l := range lookups {
		id, ok, err := r.metadata.Resolve(ctx, l.set, l.value)
		if err != nil {
			return nil, err
		}
		rec.SetOptionalInt(l.col, id, ok)
	}

	enforcementID, resolved := rec.Int("enforcement_level_id")
	ewt, ok := ErrorWarningType(enforcementID, resolved)
	rec.SetOptionalInt("error_warning_type_id", ewt, ok)

	desc := m.RuleDescription
	if desc == "" {
		desc = req.Description
	}

	rec.SetString("business_rule_id", req.BusinessRuleID)
	rec.SetString("rule_category_desc", category)
	rec.SetString("rule_name", m.RuleName)
	rec.SetString("rule_desc", desc)
	rec.SetString("range_type_id", "")
	rec.SetString("min", "")
	rec.SetString("max", "")
	rec.SetString("regex_pattern", "")
	rec.SetString("sql_query", "")
	rec.SetString("batch_error_message", m.BatchErrorMessage)
	rec.SetString("ui_error_message_summary", m.UIErrorSummary)
	rec.SetString("ui_field_error_message", m.UIFieldErrorMessage)
	rec.SetString("endorsement_date", m.DateUpdated)
	rec.SetString("enabled", DefaultEnabled)
	rec.SetString("user_name", DefaultUserName)
	rec.SetString("dq_wkflw_ticket_ind", DefaultTicketIndFlag)
	return rec, nil
}

// ReconcileConfigs processes configure requests against the tenant schema ns.
func (r *Reconciler) ReconcileConfigs(ctx context.Context, ns string, reqs []ConfigRequest, batch *Batch) ([]RowResult, error) {
	results := make([]RowResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := r.reconcileConfig(ctx, ns, req, batch)
		if err != nil {
			return results, fmt.Errorf("line %d (%s/%s): %w", req.Line, req.BusinessRuleID, req.SourceOwner, err)
		}
		logOutcome(ctx, res)
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) reconcileConfig(ctx context.Context, ns string, req ConfigRequest, batch *Batch) (RowResult, error) {
	owner := strings.ToUpper(strings.TrimSpace(req.SourceOwner))
	res := RowResult{Line: req.Line, Tenant: req.Tenant, Ticket: req.Ticket, BusinessKey: req.BusinessRuleID, SourceOwner: owner}
	skip := func(reason string) (RowResult, error) {
		res.Outcome = OutcomeSkippedNotFound
		res.Reason = reason
		return res, nil
	}

	master, ok := r.catalog.Lookup(req.BusinessRuleID)
	if !ok {
		return skip("rule id not in master workbook")
	}

	rule, found, err := r.store.FindRule(ctx, ns, req.BusinessRuleID)
	if err != nil {
		return res, storeErr("find rule", err)
	}
	if !found {
		return skip("rule not present in tenant validation_rules")
	}
	ruleID, ok := rule.Int("rule_id")
	if !ok {
		return res, storeErr("find rule", fmt.Errorf("stored rule_id %q is not an integer", rule.Get("rule_id")))
	}

	zone := strings.ToUpper(strings.TrimSpace(req.Zone))
	table := strings.ToUpper(strings.TrimSpace(master.TableName))
	tableID, ok, err := r.store.ZoneTableID(ctx, ns, table, zone)
	if err != nil {
		return res, storeErr("zone table lookup", err)
	}
	if !ok {
		return skip(fmt.Sprintf("no zone table %q in zone %q", table, zone))
	}

	entityName := strings.ToUpper(strings.TrimSpace(master.Entity))
	entity, ok, err := r.store.EntityInfo(ctx, ns, entityName)
	if err != nil {
		return res, storeErr("entity lookup", err)
	}
	if !ok || entity.KeyField == "" {
		return skip(fmt.Sprintf("entity %q not in pdm_entity_master", entityName))
	}

	var sourceTables string
	if owner != SourceOwnerHRP {
		ids, err := r.store.SourceTableIDs(ctx, ns, owner)
		if err != nil {
			return res, storeErr("source table lookup", err)
		}
		sourceTables = strings.Join(ids, ",")
	}

	cand := make(Record, len(schema.RuleExtensionColumns))
	for _, c := range schema.RuleExtensionColumns {
		cand.SetString(c.Name, "")
	}
	cand.SetInt("rule_id", ruleID)
	cand.SetString("rule_applied_zone", zone)
	cand.SetInt("hrpdm_table_id", tableID)
	cand.SetString("hrpdm_column_names", strings.ToUpper(master.ColumnName))
	cand.SetString("source_table_id", sourceTables)
	cand.SetString("active_flag", DefaultActiveFlag)
	cand.SetString("entity_key", entity.KeyField)
	cand.SetInt("pdm_entity_id", entity.ID)
	cand.SetString("source_owner_name", owner)

	existing, found, err := r.store.FindRuleExtension(ctx, ns, ruleID, owner)
	if err != nil {
		return res, storeErr("find rule extension", err)
	}

	key := extensionKey(ruleID, owner)
	var id int64
	if found {
		if id, ok = existing.Int(schema.RuleExtensions.PrimaryKey); !ok {
			return res, storeErr("find rule extension", fmt.Errorf("stored rule_extn_id %q is not an integer", existing.Get("rule_extn_id")))
		}
	} else {
		alloc, err := r.extensionAllocator(ctx, ns)
		if err != nil {
			return res, err
		}
		if id, err = r.reserveExtensionID(ctx, ns, alloc, key, owner); err != nil {
			return res, err
		}
	}
	cand.SetInt(schema.RuleExtensions.PrimaryKey, id)
	res.ID = id

	r.decide(ns, batch, key, existing, found, cand, &res)
	return res, nil
}

// reserveExtensionID reserves the next id for key. HRP ids come from their
// own range, which can run into ids stored for other owners; those are
// skipped so an upsert never lands on an unrelated extension row.
func (r *Reconciler) reserveExtensionID(ctx context.Context, ns string, alloc *ExtensionAllocator, key, owner string) (int64, error) {
	id := alloc.Reserve(key, owner)
	if !IsHRP(owner) {
		return id, nil
	}
	for {
		taken, err := r.store.RuleExtnIDExists(ctx, ns, id)
		if err != nil {
			return 0, storeErr("rule_extn_id lookup", err)
		}
		if !taken {
			return id, nil
		}
		logging.FromContext(ctx).Warn("HRP rule_extn_id already stored, skipping", "schema", ns, "rule_extn_id", id)
		id = alloc.Skip(key, owner)
	}
}

// decide sets the outcome of a built candidate and adds it to the batch when
// it must be emitted. The candidate is compared with the newest copy of its
// key: the one in this batch, then one emitted by an earlier group of the
// run, then the stored row. Identical is a duplicate. A key first batched as
// an insert stays INSERTED when a later row in the same batch replaces it.
func (r *Reconciler) decide(ns string, batch *Batch, key string, existing Record, found bool, cand Record, res *RowResult) {
	runKey := ns + "\x00" + batch.Table.Name + "\x00" + key
	emit := func(o Outcome) {
		res.Outcome = o
		batch.put(key, cand, o)
		r.emitted[runKey] = cand
	}

	if prev, kind, ok := batch.lookup(key); ok {
		changed := Diff(batch.Table, prev, cand)
		if len(changed) == 0 {
			res.Outcome = OutcomeSkippedDuplicate
			res.Reason = "repeated in request batch"
			return
		}
		res.Reason = "replaces earlier row in request batch"
		res.Changed = changed
		emit(kind)
		return
	}

	if prev, ok := r.emitted[runKey]; ok {
		changed := Diff(batch.Table, prev, cand)
		if len(changed) == 0 {
			res.Outcome = OutcomeSkippedDuplicate
			res.Reason = "already emitted for an earlier ticket in this run"
			return
		}
		res.Reason = "changes the row emitted for an earlier ticket in this run"
		res.Changed = changed
		emit(OutcomeUpdated)
		return
	}

	if !found {
		emit(OutcomeInserted)
		return
	}

	changed := Diff(batch.Table, existing, cand)
	if len(changed) == 0 {
		res.Outcome = OutcomeSkippedDuplicate
		res.Reason = "identical to stored row"
		return
	}
	res.Changed = changed
	emit(OutcomeUpdated)
}

func logOutcome(ctx context.Context, res RowResult) {
	log := logging.FromContext(ctx)
	args := []any{
		"line", res.Line,
		"business_rule_id", res.BusinessKey,
		"outcome", res.Outcome,
	}
	if res.SourceOwner != "" {
		args = append(args, "source_owner", res.SourceOwner)
	}
	if res.ID != 0 {
		args = append(args, "id", res.ID)
	}
	if len(res.Changed) > 0 {
		args = append(args, "changed", res.Changed)
	}
	if res.Reason != "" {
		args = append(args, "reason", res.Reason)
	}

	if res.Outcome == OutcomeSkippedNotFound {
		log.Warn("row skipped", args...)
		return
	}
	log.Info("row reconciled", args...)
}
