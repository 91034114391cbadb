package crm

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// parseLine splits one CSV line on commas outside double quotes. Quote
// characters toggle the quoted state and are dropped; escaped quotes are not
// recognised. Cells are trimmed.
func parseLine(line string) []string {
	var (
		cells   []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			cells = append(cells, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(cells, strings.TrimSpace(current.String()))
}

// ParseRecords reads a header row followed by data rows. Blank lines are
// skipped and missing trailing cells default to "".
func ParseRecords(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		headers []string
		records []Record
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if headers == nil {
			headers = parseLine(strings.TrimPrefix(line, "\ufeff"))
			continue
		}
		cells := parseLine(line)
		rec := make(Record, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				rec[h] = cells[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan csv: %w", err)
	}
	return records, nil
}

// opportunityFromRecord projects a raw opportunities row onto the typed shape.
func opportunityFromRecord(r Record) Opportunity {
	name := r.Get("Oppurtunity Name")
	if name == "" {
		name = r.Get("Project Name")
	}
	return NewOpportunity(
		r.Get("CompanEXTID"),
		ParseAmount(r.Get("Amount")),
		name,
		r.Get("Stage"),
		r.Get("Close Date"),
	)
}

// NormalizeOpportunities projects raw rows in order.
func NormalizeOpportunities(rows []Record) []Opportunity {
	out := make([]Opportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, opportunityFromRecord(r))
	}
	return out
}
