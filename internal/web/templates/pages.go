// Package templates renders the HTML pages of the web UI.
//
// The *.templ files are the sources; regenerate the *_templ.go files with
// `templ generate` after editing them.
package templates

import (
	"strconv"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/core"
)

// Multipart field names of a run submission.
const (
	FieldWorkbook = "workbook"
	FieldRequests = "requests"
)

// TenantInfo is one row of the tenant table.
type TenantInfo struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
	Dir     string   `json:"dir"`
	Schema  string   `json:"schema,omitempty"`
}

// outcomes is the display order of the run counters.
var outcomes = []core.Outcome{
	core.OutcomeInserted,
	core.OutcomeUpdated,
	core.OutcomeSkippedDuplicate,
	core.OutcomeSkippedNotFound,
}

func rowID(row core.RowResult) string {
	if row.ID == 0 {
		return ""
	}
	return strconv.FormatInt(row.ID, 10)
}

func rowDetail(row core.RowResult) string {
	if len(row.Changed) > 0 {
		return "changed: " + strings.Join(row.Changed, ", ")
	}
	return row.Reason
}
