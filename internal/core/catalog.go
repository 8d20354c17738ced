package core

import (
	"context"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/logging"
	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/JonMunkholm/dqgen/internal/workbook"
)

// CatalogRecord is one consolidated rules master row.
type CatalogRecord struct {
	RuleID              string
	RuleType            string
	SubEntity           string
	Entity              string
	IngestOrUI          string
	EnforcementLevel    string
	RuleName            string
	RuleDescription     string
	TableName           string
	ColumnName          string
	BatchErrorMessage   string
	UIErrorSummary      string
	UIFieldErrorMessage string
	DateUpdated         string
	SourceSheet         string
}

// field returns the struct field backing a canonical column.
func (r *CatalogRecord) field(c schema.CatalogColumn) *string {
	switch c {
	case schema.CatRuleID:
		return &r.RuleID
	case schema.CatRuleType:
		return &r.RuleType
	case schema.CatSubEntity:
		return &r.SubEntity
	case schema.CatEntity:
		return &r.Entity
	case schema.CatIngestUIOnly:
		return &r.IngestOrUI
	case schema.CatEnforcementLevel:
		return &r.EnforcementLevel
	case schema.CatRuleName:
		return &r.RuleName
	case schema.CatRuleDescription:
		return &r.RuleDescription
	case schema.CatTableName:
		return &r.TableName
	case schema.CatColumnName:
		return &r.ColumnName
	case schema.CatBatchErrorMessage:
		return &r.BatchErrorMessage
	case schema.CatUIErrorSummary:
		return &r.UIErrorSummary
	case schema.CatUIFieldErrorMessage:
		return &r.UIFieldErrorMessage
	case schema.CatDateUpdated:
		return &r.DateUpdated
	}
	return nil
}

// Catalog is the consolidated rules master of one run. It is immutable once built.
type Catalog struct {
	records []CatalogRecord
	byID    map[string]int
	missing []string
}

// Consolidate merges the named sheets of wb, in the given order, into one catalog.
//
// Headers are mapped to canonical columns through the synonym table; when
// several headers of a sheet map to the same column the first non-empty value
// in the row wins. Unrecognised headers are ignored. A sheet absent from the
// workbook is logged and skipped. Rows without a rule id are dropped.
func Consolidate(ctx context.Context, wb *workbook.Workbook, sheets []string) *Catalog {
	log := logging.FromContext(ctx)
	c := &Catalog{byID: make(map[string]int)}

	for _, name := range sheets {
		sheet, ok := wb.Sheet(name)
		if !ok {
			log.Warn("master sheet missing, skipping", "sheet", name, "available", wb.SheetNames())
			c.missing = append(c.missing, name)
			continue
		}

		cols := make([]schema.CatalogColumn, len(sheet.Header))
		for i, h := range sheet.Header {
			if canon, ok := schema.CanonicalCatalogColumn(h); ok {
				cols[i] = canon
			}
		}

		kept := 0
		for _, row := range sheet.Rows {
			rec := CatalogRecord{SourceSheet: name}
			for i, canon := range cols {
				if canon == "" || i >= len(row) {
					continue
				}
				f := rec.field(canon)
				if *f == "" {
					*f = strings.TrimSpace(row[i])
				}
			}
			if rec.RuleID == "" {
				continue
			}
			if rec.DateUpdated != "" {
				rec.DateUpdated = NormalizeDate(rec.DateUpdated)
			}

			if prev, dup := c.byID[rec.RuleID]; dup {
				log.Warn("rule id repeated in master, first row wins",
					"rule_id", rec.RuleID,
					"first_sheet", c.records[prev].SourceSheet,
					"sheet", name,
				)
			} else {
				c.byID[rec.RuleID] = len(c.records)
			}
			c.records = append(c.records, rec)
			kept++
		}
		log.Debug("master sheet consolidated", "sheet", name, "rules", kept)
	}

	log.Info("master consolidated", "rules", len(c.records), "sheets", len(sheets)-len(c.missing))
	return c
}

// Lookup returns the first record with the given business rule id.
func (c *Catalog) Lookup(ruleID string) (CatalogRecord, bool) {
	i, ok := c.byID[strings.TrimSpace(ruleID)]
	if !ok {
		return CatalogRecord{}, false
	}
	return c.records[i], true
}

// Len returns the number of consolidated rows.
func (c *Catalog) Len() int { return len(c.records) }

// Records returns the consolidated rows in sheet order.
func (c *Catalog) Records() []CatalogRecord { return c.records }

// MissingSheets lists configured sheets that were not in the workbook.
func (c *Catalog) MissingSheets() []string { return c.missing }
