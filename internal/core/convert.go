package core

// convert.go normalises workbook and store values before they are written or compared.
//
// Master sheets are hand-edited, so the same value arrives in many spellings:
// dates as 1/2/2024, 2024-01-02 or 2024-01-02 00:00:00, booleans as Y or TRUE,
// numbers read back from the store as 12.0. Everything is carried as
// pgtype.Text and canonicalised here.

import (
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/jackc/pgx/v5/pgtype"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006", "January 2, 2006",
		"20060102",
	}
)

// ToPgText converts a string to pgtype.Text. Blank strings become NULL.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ParseDate parses s with the supported layouts. Two-digit years beyond the
// pivot are placed in the previous century.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivot := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDate returns s as YYYY-MM-DD when it parses, otherwise s trimmed.
func NormalizeDate(s string) string {
	if t, ok := ParseDate(s); ok {
		return t.Format("2006-01-02")
	}
	return strings.TrimSpace(s)
}

// canonicalValue reduces v to the form used for duplicate comparison.
// The second result is false for NULL or blank values.
func canonicalValue(typ schema.ColumnType, v pgtype.Text) (string, bool) {
	if !v.Valid {
		return "", false
	}
	s := strings.TrimSpace(v.String)
	if s == "" {
		return "", false
	}

	switch typ {
	case schema.TypeNumeric:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	case schema.TypeDate:
		if t, ok := ParseDate(s); ok {
			return t.Format("2006-01-02"), true
		}
	case schema.TypeBoolean:
		switch strings.ToLower(s) {
		case "true", "t", "yes", "y", "1":
			return "TRUE", true
		case "false", "f", "no", "n", "0":
			return "FALSE", true
		}
	}
	return strings.ToUpper(s), true
}

// Diff compares the declared non-key columns of two records and returns the
// names of those that differ. Blank and missing are the same; both absent is
// equal, one absent is a difference. Columns outside the table are ignored.
func Diff(t schema.Table, existing, candidate Record) []string {
	var changed []string
	for _, col := range t.CompareColumns() {
		a, aok := canonicalValue(col.Type, existing[col.Name])
		b, bok := canonicalValue(col.Type, candidate[col.Name])
		if aok != bok || a != b {
			changed = append(changed, col.Name)
		}
	}
	return changed
}
