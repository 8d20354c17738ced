package core

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/dqgen/internal/schema"
	"github.com/JonMunkholm/dqgen/internal/workbook"
)

// requestColumns indexes a request sheet header by canonical column.
type requestColumns map[schema.RequestColumn]int

func indexRequestHeader(header []string) requestColumns {
	idx := make(requestColumns)
	for i, h := range header {
		if c, ok := schema.CanonicalRequestColumn(h); ok {
			if _, seen := idx[c]; !seen {
				idx[c] = i
			}
		}
	}
	return idx
}

func (rc requestColumns) require(cols ...schema.RequestColumn) error {
	var missing []string
	for _, c := range cols {
		if _, ok := rc[c]; !ok {
			missing = append(missing, string(c))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required column(s): %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

func (rc requestColumns) get(row []string, c schema.RequestColumn) string {
	i, ok := rc[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseRuleRequests reads add-update request rows. Line counts the header as
// line 1 and skips blank rows. Rows with no rule id are ignored.
func ParseRuleRequests(s *workbook.Sheet) ([]RuleRequest, error) {
	cols := indexRequestHeader(s.Header)
	if err := cols.require(schema.ReqTicket, schema.ReqTenant, schema.ReqRuleID, schema.ReqRuleType); err != nil {
		return nil, err
	}

	var reqs []RuleRequest
	for i, row := range s.Rows {
		r := RuleRequest{
			Line:           i + 2,
			Ticket:         cols.get(row, schema.ReqTicket),
			Tenant:         cols.get(row, schema.ReqTenant),
			BusinessRuleID: cols.get(row, schema.ReqRuleID),
			RuleType:       cols.get(row, schema.ReqRuleType),
			Description:    cols.get(row, schema.ReqDescription),
		}
		if r.BusinessRuleID == "" {
			continue
		}
		if r.Ticket == "" || r.Tenant == "" {
			return nil, fmt.Errorf("%w: line %d: ticket and tenant are required", ErrInvalidRequest, r.Line)
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// ParseConfigRequests reads configure request rows.
func ParseConfigRequests(s *workbook.Sheet) ([]ConfigRequest, error) {
	cols := indexRequestHeader(s.Header)
	if err := cols.require(schema.ReqTicket, schema.ReqTenant, schema.ReqRuleID, schema.ReqZone, schema.ReqSourceOwner); err != nil {
		return nil, err
	}

	var reqs []ConfigRequest
	for i, row := range s.Rows {
		r := ConfigRequest{
			Line:           i + 2,
			Ticket:         cols.get(row, schema.ReqTicket),
			Tenant:         cols.get(row, schema.ReqTenant),
			BusinessRuleID: cols.get(row, schema.ReqRuleID),
			Zone:           cols.get(row, schema.ReqZone),
			SourceOwner:    cols.get(row, schema.ReqSourceOwner),
		}
		if r.BusinessRuleID == "" {
			continue
		}
		if r.Ticket == "" || r.Tenant == "" {
			return nil, fmt.Errorf("%w: line %d: ticket and tenant are required", ErrInvalidRequest, r.Line)
		}
		if r.Zone == "" || r.SourceOwner == "" {
			return nil, fmt.Errorf("%w: line %d: zone and source owner are required", ErrInvalidRequest, r.Line)
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}
