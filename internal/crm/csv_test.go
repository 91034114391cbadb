package crm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []string
	}{
		{"plain", "a,b,c", []string{"a", "b", "c"}},
		{"trimmed", " a , b ,c ", []string{"a", "b", "c"}},
		{"quoted delimiter", `"Acme, Inc",$1,200.00,Closed Won`, []string{"Acme, Inc", "$1", "200.00", "Closed Won"}},
		{"quoted amount", `Acme,"$1,200.00",Discovery`, []string{"Acme", "$1,200.00", "Discovery"}},
		{"trailing empty", "a,,", []string{"a", "", ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLine(tc.line))
		})
	}
}

func TestParseRecords(t *testing.T) {
	src := "Company,Lead Status,City\r\n" +
		"\"Acme, Inc\",Working,Austin\r\n" +
		"\r\n" +
		"Globex,New\n"

	rows, err := ParseRecords(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Acme, Inc", rows[0].Get("Company"))
	assert.Equal(t, "Working", rows[0].Get("Lead Status"))
	assert.Equal(t, "Austin", rows[0].Get("City"))

	// missing trailing cell defaults to empty
	v, ok := rows[1]["City"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
}

func TestParseRecordsHeaderOnly(t *testing.T) {
	rows, err := ParseRecords(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNormalizeOpportunities(t *testing.T) {
	rows := []Record{
		{"CompanEXTID": "C1", "Amount": "$1,250.50", "Oppurtunity Name": "", "Project Name": "Roof", "Stage": "Discovery", "Close Date": "3/15/24"},
		{"CompanEXTID": "C2", "Amount": "n/a", "Oppurtunity Name": "Siding", "Stage": "Closed Won", "Close Date": "bad"},
	}

	opps := NormalizeOpportunities(rows)
	require.Len(t, opps, 2)

	assert.Equal(t, "C1", opps[0].CompanyID)
	assert.Equal(t, 1250.50, opps[0].Amount)
	assert.Equal(t, "Roof", opps[0].OpportunityName)
	_, ok := opps[0].CloseTime()
	assert.True(t, ok)

	assert.Equal(t, 0.0, opps[1].Amount)
	assert.Equal(t, "Siding", opps[1].OpportunityName)
	_, ok = opps[1].CloseTime()
	assert.False(t, ok)
}
