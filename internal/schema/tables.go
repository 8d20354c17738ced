// Package schema declares the fixed column contracts of the changelog tables
// and the header vocabularies accepted from workbooks and request files.
package schema

import (
	"regexp"
	"strings"
)

// ColumnType is the loadUpdateData column type written to changelog fragments.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeString  ColumnType = "string"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
)

// Column is one declared column of a target table.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes a target table: its declared column order, surrogate key
// and the file family used for its generated data files.
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []Column

	// FilePrefix is the versioned file name stem, e.g. "load_validation_rules_data_ver_".
	FilePrefix string

	// ChangeSetPrefix names the changeSet id stem, e.g. "load_validation_rules_data_".
	ChangeSetPrefix string

	// ManifestLabel is written in the comment preceding a manifest include.
	ManifestLabel string
}

// ValidationRulesColumns is the 24-column contract of validation_rules.
var ValidationRulesColumns = []Column{
	{Name: "rule_id", Type: TypeNumeric},
	{Name: "business_rule_id", Type: TypeString},
	{Name: "rule_category_id", Type: TypeNumeric},
	{Name: "rule_category_desc", Type: TypeString},
	{Name: "rule_name", Type: TypeString},
	{Name: "rule_desc", Type: TypeString},
	{Name: "rule_type_id", Type: TypeNumeric},
	{Name: "entity_type_id", Type: TypeNumeric},
	{Name: "range_type_id", Type: TypeNumeric},
	{Name: "min", Type: TypeString},
	{Name: "max", Type: TypeString},
	{Name: "regex_pattern", Type: TypeString},
	{Name: "sql_query", Type: TypeString},
	{Name: "batch_error_message", Type: TypeString},
	{Name: "ui_error_message_summary", Type: TypeString},
	{Name: "ui_field_error_message", Type: TypeString},
	{Name: "endorsement_date", Type: TypeDate},
	{Name: "enabled", Type: TypeBoolean},
	{Name: "user_name", Type: TypeString},
	{Name: "sub_entity_type_id", Type: TypeNumeric},
	{Name: "ingest_or_ui_id", Type: TypeNumeric},
	{Name: "enforcement_level_id", Type: TypeNumeric},
	{Name: "error_warning_type_id", Type: TypeNumeric},
	{Name: "dq_wkflw_ticket_ind", Type: TypeBoolean},
}

// RuleExtensionColumns is the 16-column contract of des_validation_rules_extn.
var RuleExtensionColumns = []Column{
	{Name: "rule_extn_id", Type: TypeNumeric},
	{Name: "rule_id", Type: TypeNumeric},
	{Name: "task_id", Type: TypeNumeric},
	{Name: "rule_applied_zone", Type: TypeString},
	{Name: "hrpdm_table_id", Type: TypeNumeric},
	{Name: "hrpdm_column_names", Type: TypeString},
	{Name: "source_table_id", Type: TypeString},
	{Name: "source_column_names", Type: TypeString},
	{Name: "sql_query", Type: TypeString},
	{Name: "active_flag", Type: TypeString},
	{Name: "implmnt_type", Type: TypeString},
	{Name: "implmnt_order", Type: TypeNumeric},
	{Name: "reference_codeset_id", Type: TypeNumeric},
	{Name: "entity_key", Type: TypeString},
	{Name: "pdm_entity_id", Type: TypeNumeric},
	{Name: "source_owner_name", Type: TypeString},
}

var (
	ValidationRules = Table{
		Name:            "validation_rules",
		PrimaryKey:      "rule_id",
		Columns:         ValidationRulesColumns,
		FilePrefix:      "load_validation_rules_data_ver_",
		ChangeSetPrefix: "load_validation_rules_data_",
		ManifestLabel:   "ADD DQ Rules",
	}

	RuleExtensions = Table{
		Name:            "des_validation_rules_extn",
		PrimaryKey:      "rule_extn_id",
		Columns:         RuleExtensionColumns,
		FilePrefix:      "load_des_validation_rules_extn_data_ver_",
		ChangeSetPrefix: "load_des_validation_rules_extn_data_",
		ManifestLabel:   "Configure DQ Rules",
	}
)

// ColumnNames returns the declared column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// CompareColumns returns every declared column except the surrogate key.
func (t Table) CompareColumns() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == t.PrimaryKey {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// Column looks up a declared column by name (case-insensitive).
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// FileName returns the data file name for a version stamp and extension ("csv" or "xml").
func (t Table) FileName(version, ext string) string {
	return t.FilePrefix + version + "." + ext
}

// VersionPattern matches generated file names of this table's family and
// captures year code, month and sequence.
func (t Table) VersionPattern() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(t.FilePrefix) + `(\d+)_(\d+)_(\d+)\.(csv|xml)$`)
}
