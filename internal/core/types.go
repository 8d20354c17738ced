package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/jackc/pgx/v5/pgtype"
)

// Workflow names one of the two request workflows.
type Workflow string

const (
	WorkflowAddUpdate Workflow = "add-update"
	WorkflowConfigure Workflow = "configure"
)

// ParseWorkflow accepts the workflow names used in URLs and CLI flags.
func ParseWorkflow(s string) (Workflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add-update", "add_update", "addupdate", "add":
		return WorkflowAddUpdate, nil
	case "configure", "config":
		return WorkflowConfigure, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownWorkflow, s)
}

// Table returns the target table written by the workflow.
func (w Workflow) Table() schema.Table {
	if w == WorkflowConfigure {
		return schema.RuleExtensions
	}
	return schema.ValidationRules
}

// Outcome is the terminal state of one request row.
type Outcome string

const (
	OutcomeSkippedNotFound  Outcome = "SKIPPED_NOT_FOUND"
	OutcomeSkippedDuplicate Outcome = "SKIPPED_DUPLICATE"
	OutcomeInserted         Outcome = "INSERTED"
	OutcomeUpdated          Outcome = "UPDATED"
)

// Emitted reports whether rows with this outcome enter the output batch.
func (o Outcome) Emitted() bool {
	return o == OutcomeInserted || o == OutcomeUpdated
}

// RuleRequest is one add-update request row.
type RuleRequest struct {
	Line           int
	Ticket         string
	Tenant         string
	BusinessRuleID string
	RuleType       string
	Description    string
}

// ConfigRequest is one configure request row.
type ConfigRequest struct {
	Line           int
	Ticket         string
	Tenant         string
	BusinessRuleID string
	Zone           string
	SourceOwner    string
}

// EntityInfo is a pdm_entity_master row.
type EntityInfo struct {
	ID       int64
	KeyField string
}

// Record is one target-table row keyed by declared column name. A value with
// Valid=false is NULL and is written as an empty quoted field.
type Record map[string]pgtype.Text

// Get returns the column value or "" when absent.
func (r Record) Get(col string) string {
	v, ok := r[col]
	if !ok || !v.Valid {
		return ""
	}
	return v.String
}

// SetString stores s, or NULL when s is blank.
func (r Record) SetString(col, s string) {
	r[col] = ToPgText(s)
}

// SetInt stores an identifier.
func (r Record) SetInt(col string, v int64) {
	r[col] = pgtype.Text{String: strconv.FormatInt(v, 10), Valid: true}
}

// SetOptionalInt stores v when ok, otherwise NULL.
func (r Record) SetOptionalInt(col string, v int64, ok bool) {
	if !ok {
		r[col] = pgtype.Text{}
		return
	}
	r.SetInt(col, v)
}

// Int parses a numeric column. Values such as "12.0" read back from the store are accepted.
func (r Record) Int(col string) (int64, bool) {
	s := strings.TrimSpace(r.Get(col))
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Values returns the record's values in the table's declared order.
func (r Record) Values(t schema.Table) []pgtype.Text {
	out := make([]pgtype.Text, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = r[c.Name]
	}
	return out
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// RowResult is the reported outcome of one request row.
type RowResult struct {
	Line        int      `json:"line"`
	Tenant      string   `json:"tenant"`
	Ticket      string   `json:"ticket"`
	BusinessKey string   `json:"business_rule_id"`
	SourceOwner string   `json:"source_owner,omitempty"`
	Outcome     Outcome  `json:"outcome"`
	ID          int64    `json:"id,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Changed     []string `json:"changed,omitempty"`
}

// Store is the read/write contract of the rule and extension tables. ns is
// the schema namespace; implementations must treat it as an identifier.
type Store interface {
	// MetadataID resolves (set, value) case- and whitespace-insensitively.
	MetadataID(ctx context.Context, ns, set, value string) (int64, bool, error)

	MaxRuleID(ctx context.Context, ns string) (int64, error)
	FindRule(ctx context.Context, ns, businessRuleID string) (Record, bool, error)

	// MaxRuleExtnID returns the maximum rule_extn_id. A non-empty sourceOwner
	// restricts it to rows of that owner (case-insensitive).
	MaxRuleExtnID(ctx context.Context, ns, sourceOwner string) (int64, error)
	FindRuleExtension(ctx context.Context, ns string, ruleID int64, sourceOwner string) (Record, bool, error)
	// RuleExtnIDExists reports whether any extension row, of any owner, holds id.
	RuleExtnIDExists(ctx context.Context, ns string, id int64) (bool, error)

	ZoneTableID(ctx context.Context, ns, tableName, zone string) (int64, bool, error)
	EntityInfo(ctx context.Context, ns, entityName string) (EntityInfo, bool, error)
	SourceTableIDs(ctx context.Context, ns, sourceOwner string) ([]string, error)

	// ApplyRecords upserts records keyed by the table's primary key.
	ApplyRecords(ctx context.Context, ns string, table schema.Table, records []Record) error
}
