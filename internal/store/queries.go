package store

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/jackc/pgx/v5"
)

// Tables read or written by the generator, relative to a tenant schema.
const (
	tableMetadata   = "validation_rule_metadata"
	tableZoneTables = "des_zone_table_list"
	tableEntities   = "pdm_entity_master"
)

// qualified returns ns.table quoted for use in SQL.
func qualified(ns, table string) string {
	return pgx.Identifier{ns, table}.Sanitize()
}

func quoteColumns(cols []string) []string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return quoted
}

// selectColumns reads every declared column as text so values compare the
// same way regardless of the column's SQL type.
func selectColumns(t schema.Table) string {
	cols := quoteColumns(t.ColumnNames())
	for i, c := range cols {
		cols[i] = c + "::text"
	}
	return strings.Join(cols, ", ")
}

func metadataQuery(ns string) string {
	return fmt.Sprintf(`SELECT metadata_id::bigint FROM %s
WHERE UPPER(TRIM(metadata_set)) = UPPER(TRIM($1)) AND UPPER(TRIM(metadata_value)) = UPPER(TRIM($2))
ORDER BY metadata_id LIMIT 1`, qualified(ns, tableMetadata))
}

func maxRuleIDQuery(ns string) string {
	return fmt.Sprintf(`SELECT COALESCE(MAX(rule_id), 0)::bigint FROM %s`,
		qualified(ns, schema.ValidationRules.Name))
}

func findRuleQuery(ns string) string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE TRIM(business_rule_id) = $1 ORDER BY rule_id LIMIT 1`,
		selectColumns(schema.ValidationRules), qualified(ns, schema.ValidationRules.Name))
}

func maxRuleExtnIDQuery(ns string, byOwner bool) string {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(rule_extn_id), 0)::bigint FROM %s`,
		qualified(ns, schema.RuleExtensions.Name))
	if byOwner {
		q += ` WHERE UPPER(TRIM(source_owner_name)) = UPPER($1)`
	}
	return q
}

func findRuleExtensionQuery(ns string) string {
	return fmt.Sprintf(`SELECT %s FROM %s
WHERE rule_id = $1 AND UPPER(TRIM(source_owner_name)) = UPPER($2)
ORDER BY rule_extn_id LIMIT 1`,
		selectColumns(schema.RuleExtensions), qualified(ns, schema.RuleExtensions.Name))
}

func ruleExtnIDExistsQuery(ns string) string {
	return fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE rule_extn_id = $1)`,
		qualified(ns, schema.RuleExtensions.Name))
}

func zoneTableQuery(ns string) string {
	return fmt.Sprintf(`SELECT table_id::bigint FROM %s
WHERE UPPER(table_name) = $1 AND UPPER(process_zone) = $2
ORDER BY table_id LIMIT 1`, qualified(ns, tableZoneTables))
}

func entityQuery(ns string) string {
	return fmt.Sprintf(`SELECT pdm_entity_id::bigint, COALESCE(entity_key_field_name, '') FROM %s
WHERE UPPER(entity_name) = $1
ORDER BY pdm_entity_id LIMIT 1`, qualified(ns, tableEntities))
}

func sourceTablesQuery(ns string) string {
	return fmt.Sprintf(`SELECT DISTINCT source_table_id::text FROM %s
WHERE UPPER(TRIM(source_owner_name)) = UPPER($1) AND source_table_id IS NOT NULL
ORDER BY 1`, qualified(ns, schema.RuleExtensions.Name))
}

// upsertQuery inserts one row of t or replaces the row with the same
// primary key. Parameters are sent as text and cast to the column type.
func upsertQuery(ns string, t schema.Table) string {
	cols := quoteColumns(t.ColumnNames())
	params := make([]string, len(t.Columns))
	var sets []string
	for i, c := range t.Columns {
		params[i] = fmt.Sprintf("$%d::text::%s", i+1, sqlType(c.Type))
		if c.Name == t.PrimaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", cols[i], cols[i]))
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		qualified(ns, t.Name),
		strings.Join(cols, ", "),
		strings.Join(params, ", "),
		pgx.Identifier{t.PrimaryKey}.Sanitize(),
		strings.Join(sets, ", "),
	)
}

func sqlType(t schema.ColumnType) string {
	switch t {
	case schema.TypeNumeric:
		return "numeric"
	case schema.TypeDate:
		return "date"
	case schema.TypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}
