package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/dqgen/internal/config"
	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/workbook"
	"github.com/google/uuid"
)

// DefaultRunTimeout bounds one workflow run when no timeout is configured.
var DefaultRunTimeout = 2 * time.Minute

// Recorder receives run measurements. internal/metrics implements it.
type Recorder interface {
	RowOutcome(workflow Workflow, outcome Outcome)
	FilesWritten(workflow Workflow, n int)
	RunFinished(workflow Workflow, d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RowOutcome(Workflow, Outcome)               {}
func (nopRecorder) FilesWritten(Workflow, int)                 {}
func (nopRecorder) RunFinished(Workflow, time.Duration, error) {}

// Options tune a Service. Zero values pick the defaults.
type Options struct {
	MaxConcurrent int
	MaxWait       time.Duration
	Timeout       time.Duration

	// ApplyToStore upserts emitted rows into the store after the files are
	// written, so the next run sees them without a Liquibase deploy.
	ApplyToStore bool

	Recorder Recorder
	Emitter  *Emitter
}

// Service runs the add-update and configure workflows.
type Service struct {
	store   Store
	tenants *config.Tenants
	opts    Options

	limiter  *RunLimiter
	locks    *scopeLocks
	emitter  *Emitter
	recorder Recorder
}

// NewService creates a Service writing below tenants.ChangelogRoot.
func NewService(store Store, tenants *config.Tenants, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRunTimeout
	}
	s := &Service{
		store:    store,
		tenants:  tenants,
		opts:     opts,
		limiter:  NewRunLimiter(opts.MaxConcurrent, opts.MaxWait),
		locks:    newScopeLocks(),
		emitter:  opts.Emitter,
		recorder: opts.Recorder,
	}
	if s.emitter == nil {
		s.emitter = NewEmitter()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	return s
}

// Tenants returns the tenant catalog.
func (s *Service) Tenants() *config.Tenants { return s.tenants }

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus { return s.limiter.Status() }

// Drain waits for in-flight runs to finish.
func (s *Service) Drain(ctx context.Context) error { return s.limiter.WaitForDrain(ctx) }

// GroupResult is the outcome of one (tenant, ticket) group.
type GroupResult struct {
	Tenant string      `json:"tenant"`
	Ticket string      `json:"ticket"`
	Schema string      `json:"schema"`
	Rows   []RowResult `json:"rows"`
	Emit   *EmitResult `json:"emit,omitempty"`
}

// RunResult is the outcome of one workflow run. On failure it holds what
// completed before the error.
type RunResult struct {
	RunID    string          `json:"run_id"`
	Workflow Workflow        `json:"workflow"`
	Rules    int             `json:"master_rules"`
	Missing  []string        `json:"missing_sheets,omitempty"`
	Groups   []GroupResult   `json:"groups"`
	Files    []string        `json:"files"`
	Counts   map[Outcome]int `json:"counts"`
	Applied  int             `json:"applied,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

func (r *RunResult) add(g GroupResult) {
	for _, row := range g.Rows {
		r.Counts[row.Outcome]++
	}
	if g.Emit != nil {
		r.Files = append(r.Files, g.Emit.Files...)
		if g.Emit.ManifestUpdated {
			r.Files = append(r.Files, g.Emit.Manifest)
		}
	}
	r.Groups = append(r.Groups, g)
}

// group is the planned work for one tenant and ticket, in request order.
type group struct {
	tenant config.Tenant
	ticket string
	ns     string
	rules  []RuleRequest
	cfgs   []ConfigRequest
}

func (g *group) lockKeys(table, dir string) []string {
	return []string{"ids:" + table + ":" + g.ns, "files:" + table + ":" + dir}
}

// RunAddUpdate runs the add-update workflow.
func (s *Service) RunAddUpdate(ctx context.Context, master *workbook.Workbook, requests *workbook.Sheet) (*RunResult, error) {
	return s.Run(ctx, WorkflowAddUpdate, master, requests)
}

// RunConfigure runs the configure workflow.
func (s *Service) RunConfigure(ctx context.Context, master *workbook.Workbook, requests *workbook.Sheet) (*RunResult, error) {
	return s.Run(ctx, WorkflowConfigure, master, requests)
}

// Run validates the request rows, consolidates the master workbook,
// reconciles every row and writes one changelog version per (tenant, ticket)
// group. Request problems fail before any store call or file write. A store
// or file failure aborts the run; files already written stay.
func (s *Service) Run(ctx context.Context, wf Workflow, master *workbook.Workbook, requests *workbook.Sheet) (res *RunResult, err error) {
	runID := uuid.NewString()
	ctx, log := logging.WithFields(ctx, "run_id", runID, "workflow", string(wf))
	start := time.Now()

	res = &RunResult{RunID: runID, Workflow: wf, Counts: make(map[Outcome]int)}
	defer func() {
		res.Duration = time.Since(start)
		s.recorder.RunFinished(wf, res.Duration, err)
		if err != nil {
			log.Error("workflow run failed", "error", err, "duration", res.Duration)
			return
		}
		log.Info("workflow run finished",
			"duration", res.Duration,
			"files", len(res.Files),
			"inserted", res.Counts[OutcomeInserted],
			"updated", res.Counts[OutcomeUpdated],
			"skipped_duplicate", res.Counts[OutcomeSkippedDuplicate],
			"skipped_not_found", res.Counts[OutcomeSkippedNotFound],
		)
	}()

	if master == nil || requests == nil {
		return res, fmt.Errorf("%w: no file provided", ErrInvalidRequest)
	}

	groups, err := s.plan(wf, requests)
	if err != nil {
		return res, err
	}
	planned := []any{"groups", len(groups)}
	if who, ok := RequesterFromContext(ctx); ok {
		planned = append(planned, "source", who.Source, "ip", who.IP, "user_agent", who.UserAgent)
	}
	log.Info("workflow run planned", planned...)

	if err := s.limiter.Acquire(ctx); err != nil {
		return res, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	table := wf.Table()
	var keys []string
	for _, g := range groups {
		keys = append(keys, g.lockKeys(table.Name, s.tenants.Dir(g.tenant))...)
	}
	release, err := s.locks.lockAll(ctx, keys)
	if err != nil {
		return res, err
	}
	defer release()

	catalog := Consolidate(ctx, master, s.tenants.Sheets)
	res.Rules = catalog.Len()
	res.Missing = catalog.MissingSheets()

	rec := NewReconciler(s.store, catalog, s.tenants.MetadataSchema)
	var pending []applyBatch

	for _, g := range groups {
		gctx, _ := logging.WithFields(ctx, "tenant", g.tenant.Name, "ticket", g.ticket)
		gr, batch, err := s.runGroup(gctx, wf, rec, g)
		res.add(gr)
		if err != nil {
			return res, err
		}
		if batch.Len() > 0 {
			pending = append(pending, applyBatch{ns: g.ns, batch: batch})
		}
	}

	if s.opts.ApplyToStore {
		for _, p := range pending {
			if err := s.store.ApplyRecords(ctx, p.ns, p.batch.Table, p.batch.Records); err != nil {
				return res, storeErr("apply records", err)
			}
			res.Applied += p.batch.Len()
		}
		log.Info("emitted rows applied to store", "rows", res.Applied)
	}
	return res, nil
}

type applyBatch struct {
	ns    string
	batch *Batch
}

func (s *Service) runGroup(ctx context.Context, wf Workflow, rec *Reconciler, g *group) (GroupResult, *Batch, error) {
	gr := GroupResult{Tenant: g.tenant.Name, Ticket: g.ticket, Schema: g.ns}
	batch := NewBatch(wf.Table())

	var err error
	switch wf {
	case WorkflowConfigure:
		gr.Rows, err = rec.ReconcileConfigs(ctx, g.ns, g.cfgs, batch)
	default:
		gr.Rows, err = rec.ReconcileRules(ctx, g.ns, g.rules, batch)
	}
	for _, row := range gr.Rows {
		s.recorder.RowOutcome(wf, row.Outcome)
	}
	if err != nil {
		return gr, batch, err
	}

	out, err := s.emitter.Emit(ctx, EmitRequest{
		Table:   batch.Table,
		Dir:     s.tenants.Dir(g.tenant),
		DataDir: s.tenants.DataDir,
		Ticket:  g.ticket,
		Records: batch.Records,
	})
	gr.Emit = out
	if out != nil {
		n := len(out.Files)
		if out.ManifestUpdated {
			n++
		}
		s.recorder.FilesWritten(wf, n)
	}
	return gr, batch, err
}

// plan parses the request sheet, checks every tenant and splits the rows
// into (tenant, ticket) groups in order of first appearance.
func (s *Service) plan(wf Workflow, sheet *workbook.Sheet) ([]*group, error) {
	var (
		groups []*group
		byKey  = make(map[string]*group)
	)
	find := func(line int, tenantName, ticket string) (*group, error) {
		tn, err := s.tenants.Lookup(tenantName)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		key := tn.Key + "\x00" + ticket
		if g, ok := byKey[key]; ok {
			return g, nil
		}

		ns := s.tenants.RulesSchema
		if wf == WorkflowConfigure {
			if tn.Schema == "" {
				return nil, fmt.Errorf("line %d: tenant %q has no schema", line, tn.Name)
			}
			ns = tn.Schema
		}
		g := &group{tenant: tn, ticket: ticket, ns: ns}
		byKey[key] = g
		groups = append(groups, g)
		return g, nil
	}

	switch wf {
	case WorkflowAddUpdate:
		reqs, err := ParseRuleRequests(sheet)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			g, err := find(r.Line, r.Tenant, r.Ticket)
			if err != nil {
				return nil, err
			}
			g.rules = append(g.rules, r)
		}
	case WorkflowConfigure:
		reqs, err := ParseConfigRequests(sheet)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			g, err := find(r.Line, r.Tenant, r.Ticket)
			if err != nil {
				return nil, err
			}
			g.cfgs = append(g.cfgs, r)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, wf)
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no request rows", ErrInvalidRequest)
	}
	return groups, nil
}
