package schema

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// CatalogColumn is a canonical column of the consolidated rules master.
type CatalogColumn string

const (
	CatRuleID              CatalogColumn = "RuleID"
	CatRuleType            CatalogColumn = "RuleType"
	CatSubEntity           CatalogColumn = "SubEntity"
	CatEntity              CatalogColumn = "Entity"
	CatIngestUIOnly        CatalogColumn = "IngestUIOnly"
	CatEnforcementLevel    CatalogColumn = "EnforcementLevel"
	CatColumnName          CatalogColumn = "ColumnName"
	CatTableName           CatalogColumn = "TableName"
	CatRuleName            CatalogColumn = "RuleName"
	CatRuleDescription     CatalogColumn = "RuleDescription"
	CatBatchErrorMessage   CatalogColumn = "BatchErrorMessage"
	CatUIErrorSummary      CatalogColumn = "UIErrorSummary"
	CatUIFieldErrorMessage CatalogColumn = "UIFieldErrorMessage"
	CatDateUpdated         CatalogColumn = "DateUpdated"
)

// catalogSynonyms lists every header spelling seen in rules master sheets.
// Spellings are folded before lookup, so casing and spacing variants of an
// entry need not be listed separately.
var catalogSynonyms = map[CatalogColumn][]string{
	CatRuleID:              {"Rule ID", "RuleID", "Rule_ID", "Business Rule ID"},
	CatRuleType:            {"Rule Type", "RuleType", "Rule Category", "RuleCategory"},
	CatSubEntity:           {"Sub Entity", "Sub-Entity", "SubEntity", "Sub_Entity"},
	CatEntity:              {"Entity", "Entity Type"},
	CatIngestUIOnly:        {"Ingest+UI/UI Only", "IngestUIOnly", "Ingest/UI", "Ingest Or UI"},
	CatEnforcementLevel:    {"Enforcement Level", "EnforcementLevel"},
	CatColumnName:          {"Column Name", "ColumnName"},
	CatTableName:           {"Table Name", "TableName"},
	CatRuleName:            {"Rule Name", "RuleName"},
	CatRuleDescription:     {"Rule Description", "RuleDescription"},
	CatBatchErrorMessage:   {"Interface( Batch, API) ingestion Error Message", "Batch Error Message"},
	CatUIErrorSummary:      {"UI Error Message Summary"},
	CatUIFieldErrorMessage: {"UI Error Message Under Field"},
	CatDateUpdated:         {"Date Updated", "Last Updated"},
}

// RequestColumn is a canonical column of a rule or configuration request file.
type RequestColumn string

const (
	ReqTicket      RequestColumn = "ticket"
	ReqTenant      RequestColumn = "tenant"
	ReqRuleID      RequestColumn = "ruleid"
	ReqRuleType    RequestColumn = "ruletype"
	ReqDescription RequestColumn = "description"
	ReqZone        RequestColumn = "zoneapplied"
	ReqSourceOwner RequestColumn = "sourceownername"
)

var requestSynonyms = map[RequestColumn][]string{
	ReqTicket:      {"ticket", "ticket number", "jira"},
	ReqTenant:      {"tenant"},
	ReqRuleID:      {"ruleid", "rule id", "business_rule_id", "business rule id"},
	ReqRuleType:    {"ruletype", "rule type"},
	ReqDescription: {"description", "rule description"},
	ReqZone:        {"zoneapplied", "zone applied", "zone"},
	ReqSourceOwner: {"sourceownername", "source owner name", "source owner", "sourceowner"},
}

var (
	catalogIndex = buildIndex(catalogSynonyms)
	requestIndex = buildIndex(requestSynonyms)
)

func buildIndex[K ~string](synonyms map[K][]string) map[string]K {
	idx := make(map[string]K)
	for canonical, spellings := range synonyms {
		idx[FoldHeader(string(canonical))] = canonical
		for _, s := range spellings {
			idx[FoldHeader(s)] = canonical
		}
	}
	return idx
}

// FoldHeader reduces a header to its comparison form: NFKC normalised,
// case folded, trimmed, with internal whitespace runs collapsed to one space.
func FoldHeader(h string) string {
	h = norm.NFKC.String(h)
	h = cases.Fold().String(h)
	return strings.Join(strings.Fields(h), " ")
}

// CanonicalCatalogColumn maps a sheet header to its canonical column.
func CanonicalCatalogColumn(header string) (CatalogColumn, bool) {
	c, ok := catalogIndex[FoldHeader(header)]
	return c, ok
}

// CanonicalRequestColumn maps a request file header to its canonical column.
func CanonicalRequestColumn(header string) (RequestColumn, bool) {
	c, ok := requestIndex[FoldHeader(header)]
	return c, ok
}
