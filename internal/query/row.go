package query

import (
	"time"

	"github.com/crm-insights/server/internal/crm"
)

// row adapts typed opportunities and map records to one read-only view.
type row interface {
	text(field string) string
	number(field string) (float64, bool)
	date(field string) (time.Time, bool)
	value() any
}

type opportunityRow struct {
	o *crm.Opportunity
}

func (r opportunityRow) text(field string) string {
	return r.o.Field(field)
}

// number reads the normalized amount directly; other fields are coerced.
func (r opportunityRow) number(field string) (float64, bool) {
	if crm.IsAmountField(field) {
		return r.o.Amount, true
	}
	return crm.ParseNumber(r.o.Field(field))
}

func (r opportunityRow) date(field string) (time.Time, bool) {
	if isDateField(field) {
		return r.o.CloseTime()
	}
	return crm.ParseCloseDate(r.o.Field(field))
}

func (r opportunityRow) value() any {
	return *r.o
}

type recordRow crm.Record

func (r recordRow) text(field string) string {
	return r[field]
}

func (r recordRow) number(field string) (float64, bool) {
	return crm.ParseNumber(r[field])
}

func (r recordRow) date(field string) (time.Time, bool) {
	return crm.ParseCloseDate(r[field])
}

func (r recordRow) value() any {
	return crm.Record(r)
}

// rowsOf returns the collection named by e as rows, or false for unknown entities.
func rowsOf(ds *crm.Dataset, e crm.Entity) ([]row, bool) {
	switch e {
	case crm.EntityOpportunities:
		rows := make([]row, len(ds.Opportunities))
		for i := range ds.Opportunities {
			rows[i] = opportunityRow{o: &ds.Opportunities[i]}
		}
		return rows, true
	case crm.EntityLeads:
		return recordRows(ds.Leads), true
	case crm.EntityAccounts:
		return recordRows(ds.Accounts), true
	case crm.EntityContacts:
		return recordRows(ds.Contacts), true
	}
	return nil, false
}

func recordRows(recs []crm.Record) []row {
	rows := make([]row, len(recs))
	for i, r := range recs {
		rows[i] = recordRow(r)
	}
	return rows
}
