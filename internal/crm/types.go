package crm

import (
	"strconv"
	"time"
)

// Entity names a record collection.
type Entity string

const (
	EntityOpportunities Entity = "opportunities"
	EntityLeads         Entity = "leads"
	EntityAccounts      Entity = "accounts"
	EntityContacts      Entity = "contacts"
)

// Entities lists every known collection in schema order.
var Entities = []Entity{EntityOpportunities, EntityLeads, EntityAccounts, EntityContacts}

// Valid reports whether e names a known collection.
func (e Entity) Valid() bool {
	switch e {
	case EntityOpportunities, EntityLeads, EntityAccounts, EntityContacts:
		return true
	}
	return false
}

// Record is a loosely typed CSV row keyed by header name.
type Record map[string]string

// Get returns the trimmed cell for field, or "" when the column is absent.
func (r Record) Get(field string) string {
	return r[field]
}

// Opportunity is the normalized shape of an opportunities row.
type Opportunity struct {
	CompanyID       string  `json:"companyId" yaml:"companyId"`
	Amount          float64 `json:"amount" yaml:"amount"`
	OpportunityName string  `json:"opportunityName" yaml:"opportunityName"`
	Stage           string  `json:"stage" yaml:"stage"`
	CloseDate       string  `json:"closeDate" yaml:"closeDate"`

	closeAt time.Time
	closeOK bool
}

// NewOpportunity builds an Opportunity and caches its parsed close date.
func NewOpportunity(companyID string, amount float64, name, stage, closeDate string) Opportunity {
	o := Opportunity{
		CompanyID:       companyID,
		Amount:          amount,
		OpportunityName: name,
		Stage:           stage,
		CloseDate:       closeDate,
	}
	o.closeAt, o.closeOK = ParseCloseDate(closeDate)
	return o
}

// CloseTime returns the parsed close date and whether it was valid.
func (o Opportunity) CloseTime() (time.Time, bool) {
	return o.closeAt, o.closeOK
}

// opportunityAliases maps source column names onto normalized field names so
// filters written against either vocabulary resolve to the same value.
var opportunityAliases = map[string]string{
	"CompanEXTID":      "companyId",
	"Amount":           "amount",
	"Oppurtunity Name": "opportunityName",
	"Project Name":     "opportunityName",
	"Stage":            "stage",
	"Close Date":       "closeDate",
}

// Field returns the string form of a normalized field. Unknown fields yield "".
func (o Opportunity) Field(name string) string {
	if alias, ok := opportunityAliases[name]; ok {
		name = alias
	}
	switch name {
	case "companyId":
		return o.CompanyID
	case "amount":
		return strconv.FormatFloat(o.Amount, 'f', -1, 64)
	case "opportunityName":
		return o.OpportunityName
	case "stage":
		return o.Stage
	case "closeDate":
		return o.CloseDate
	}
	return ""
}

// IsAmountField reports whether name refers to the typed amount column.
func IsAmountField(name string) bool {
	return name == "amount" || name == "Amount"
}

// Dataset is an immutable snapshot of the four CRM collections.
type Dataset struct {
	Opportunities []Opportunity
	Leads         []Record
	Accounts      []Record
	Contacts      []Record
}

// NewDataset assembles a snapshot from already parsed collections.
func NewDataset(opps []Opportunity, leads, accounts, contacts []Record) *Dataset {
	return &Dataset{
		Opportunities: opps,
		Leads:         leads,
		Accounts:      accounts,
		Contacts:      contacts,
	}
}

// Size returns the number of records in the named collection, or -1 for an unknown entity.
func (d *Dataset) Size(e Entity) int {
	switch e {
	case EntityOpportunities:
		return len(d.Opportunities)
	case EntityLeads:
		return len(d.Leads)
	case EntityAccounts:
		return len(d.Accounts)
	case EntityContacts:
		return len(d.Contacts)
	}
	return -1
}
