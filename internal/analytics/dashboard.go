package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/crm-insights/server/internal/crm"
)

// Filter mirrors the dashboard controls: the stage dropdown plus one clicked
// chart element (a stage bar or a month point).
type Filter struct {
	// Stages restricts to these stages; nil selects every stage.
	Stages []string
	// Stage is the clicked stage bar, "" for none.
	Stage string
	// Month is the clicked month label (e.g. "Jan '24"), "" for none.
	Month string
}

// KPIs are the headline cards.
type KPIs struct {
	RevenueTitle  string  `json:"revenueTitle" yaml:"revenueTitle"`
	Revenue       float64 `json:"revenue" yaml:"revenue"`
	Subtitle      string  `json:"subtitle" yaml:"subtitle"`
	TotalAccounts int     `json:"totalAccounts" yaml:"totalAccounts"`
	TotalContacts int     `json:"totalContacts" yaml:"totalContacts"`
	TotalLeads    int     `json:"totalLeads" yaml:"totalLeads"`
	Filtered      bool    `json:"filtered" yaml:"filtered"`
}

// Dashboard is the chart-ready payload for one filter state.
type Dashboard struct {
	Stages         []string       `json:"stages" yaml:"stages"`
	SelectedStages []string       `json:"selectedStages" yaml:"selectedStages"`
	KPIs           KPIs           `json:"kpis" yaml:"kpis"`
	RevenueByStage []StageRevenue `json:"revenueByStage" yaml:"revenueByStage"`
	Cumulative     []MonthPoint   `json:"cumulative" yaml:"cumulative"`
	LeadStatus     []StatusCount  `json:"leadStatus" yaml:"leadStatus"`
}

// Selected returns opportunities whose stage passes the dropdown selection.
func (f Filter) Selected(opps []crm.Opportunity) []crm.Opportunity {
	if f.Stages == nil {
		return opps
	}
	allowed := make(map[string]bool, len(f.Stages))
	for _, s := range f.Stages {
		allowed[s] = true
	}
	return keep(opps, func(o crm.Opportunity) bool { return allowed[o.Stage] })
}

// Apply narrows opps by the dropdown and both chart clicks.
func (f Filter) Apply(opps []crm.Opportunity) []crm.Opportunity {
	out := f.Selected(opps)
	if f.Stage != "" {
		out = keep(out, byStage(f.Stage))
	}
	if f.Month != "" {
		out = keep(out, byMonth(f.Month))
	}
	return out
}

// BuildDashboard derives every chart for ds under f. The stage chart follows the
// clicked month and the cumulative line follows the clicked stage, so clicking
// one chart updates the other.
func BuildDashboard(ds *crm.Dataset, f Filter) Dashboard {
	all := Stages(ds.Opportunities)
	selected := f.Selected(ds.Opportunities)

	stageOpps := selected
	if f.Month != "" {
		stageOpps = keep(selected, byMonth(f.Month))
	}
	lineOpps := selected
	if f.Stage != "" {
		lineOpps = keep(selected, byStage(f.Stage))
	}

	var revenue float64
	for _, o := range f.Apply(ds.Opportunities) {
		revenue += o.Amount
	}

	selectedStages := all
	if f.Stages != nil {
		selectedStages = crm.OrderStages(f.Stages)
	}
	dropdownFiltered := f.Stages != nil && len(selectedStages) != len(all)
	filtered := dropdownFiltered || f.Stage != "" || f.Month != ""

	kpis := KPIs{
		RevenueTitle:  "Total Pipeline Revenue",
		Revenue:       math.Round(revenue),
		Subtitle:      subtitle(f, dropdownFiltered, len(selectedStages)),
		TotalAccounts: len(ds.Accounts),
		TotalContacts: len(ds.Contacts),
		TotalLeads:    len(ds.Leads),
		Filtered:      filtered,
	}
	if filtered {
		kpis.RevenueTitle = "Filtered Pipeline Revenue"
	}

	return Dashboard{
		Stages:         all,
		SelectedStages: selectedStages,
		KPIs:           kpis,
		RevenueByStage: RevenueByStage(stageOpps),
		Cumulative:     CumulativeByMonth(lineOpps),
		LeadStatus:     LeadStatusDistribution(ds.Leads),
	}
}

func subtitle(f Filter, dropdownFiltered bool, selected int) string {
	switch {
	case f.Stage != "":
		return "Stage: " + f.Stage
	case f.Month != "":
		return "Month: " + f.Month
	case dropdownFiltered:
		if selected == 1 {
			return "1 stage selected"
		}
		return fmt.Sprintf("%d stages selected", selected)
	}
	return "All opportunity stages"
}

// PageSize is the number of rows per opportunities table page.
const PageSize = 25

// SortKey selects the opportunities table ordering column.
type SortKey string

const (
	SortAmount    SortKey = "amount"
	SortCloseDate SortKey = "closeDate"
)

// TableOptions control searching, sorting and paging. Page is 1-based.
// Search is a case-insensitive substring matched against the opportunity
// name, stage and close date.
type TableOptions struct {
	Search  string
	SortKey SortKey
	Desc    bool
	Page    int
}

// TablePage is one page of the opportunities table.
type TablePage struct {
	Rows       []crm.Opportunity `json:"rows" yaml:"rows"`
	Page       int               `json:"page" yaml:"page"`
	TotalPages int               `json:"totalPages" yaml:"totalPages"`
	Total      int               `json:"total" yaml:"total"`
	From       int               `json:"from" yaml:"from"`
	To         int               `json:"to" yaml:"to"`
}

// Table searches and sorts a copy of opps and returns the requested page,
// clamped to range. Rows with unparseable close dates sort first when ordering
// by date.
func Table(opps []crm.Opportunity, opt TableOptions) TablePage {
	rows := make([]crm.Opportunity, len(opps))
	copy(rows, opps)
	if q := strings.ToLower(strings.TrimSpace(opt.Search)); q != "" {
		rows = keep(rows, matchesSearch(q))
	}

	if opt.SortKey == SortAmount || opt.SortKey == SortCloseDate {
		less := func(a, b crm.Opportunity) bool { return a.Amount < b.Amount }
		if opt.SortKey == SortCloseDate {
			less = func(a, b crm.Opportunity) bool {
				at, _ := a.CloseTime()
				bt, _ := b.CloseTime()
				return at.Before(bt)
			}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if opt.Desc {
				return less(rows[j], rows[i])
			}
			return less(rows[i], rows[j])
		})
	}

	total := len(rows)
	pages := max(1, (total+PageSize-1)/PageSize)
	page := min(max(opt.Page, 1), pages)

	start := (page - 1) * PageSize
	end := min(start+PageSize, total)
	tp := TablePage{
		Rows:       rows[start:end],
		Page:       page,
		TotalPages: pages,
		Total:      total,
		To:         end,
	}
	if total > 0 {
		tp.From = start + 1
	}
	return tp
}

func keep(opps []crm.Opportunity, pred func(crm.Opportunity) bool) []crm.Opportunity {
	out := make([]crm.Opportunity, 0, len(opps))
	for _, o := range opps {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

func matchesSearch(q string) func(crm.Opportunity) bool {
	return func(o crm.Opportunity) bool {
		return strings.Contains(strings.ToLower(o.OpportunityName), q) ||
			strings.Contains(strings.ToLower(o.Stage), q) ||
			strings.Contains(strings.ToLower(o.CloseDate), q)
	}
}

func byStage(stage string) func(crm.Opportunity) bool {
	return func(o crm.Opportunity) bool { return o.Stage == stage }
}

func byMonth(label string) func(crm.Opportunity) bool {
	return func(o crm.Opportunity) bool {
		k, ok := o.MonthKey()
		return ok && k.Label == label
	}
}
