package exchange

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/kbase/pkg/kbase/store"
	"github.com/cognicore/kbase/pkg/kbase/store/memstore"
)

var exportTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func populated(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()

	d, err := st.AddDomain(ctx, store.Domain{Name: "medicine", Description: "клиника, терапия"})
	require.NoError(t, err)
	a, err := st.AddAgent(ctx, store.Agent{Name: "doctor", DomainID: d.ID})
	require.NoError(t, err)
	_, _, err = st.AddRule(ctx, store.Rule{
		Name:       "Правило из 'medical.txt'",
		Condition:  "температура выше 38",
		Action:     "это \"лихорадка\"",
		Type:       store.Conditional,
		Priority:   2,
		Confidence: 0.85,
		AgentID:    a.ID,
		DomainID:   d.ID,
		Tags:       []string{"extracted", "regex"},
		Metadata:   map[string]string{"language": "ru"},
		CreatedAt:  exportTime.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = st.AddFact(ctx, store.Fact{
		Variable:   "температура",
		Value:      "36.60",
		Confidence: 0.7,
		AgentID:    a.ID,
		DomainID:   d.ID,
		Derived:    true,
		CreatedAt:  exportTime.Add(-time.Minute),
	})
	require.NoError(t, err)
	return st
}

func TestExportCollectsEverything(t *testing.T) {
	doc, err := Export(context.Background(), populated(t), exportTime)
	require.NoError(t, err)

	assert.Len(t, doc.ExportID, 26)
	assert.Equal(t, Version, doc.Version)
	assert.Len(t, doc.Domains, 1)
	assert.Len(t, doc.Agents, 1)
	assert.Len(t, doc.Rules, 1)
	assert.Len(t, doc.Facts, 1)
}

func TestCSVRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := populated(t)
	doc, err := Export(ctx, src, exportTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, doc))
	assert.True(t, strings.HasPrefix(buf.String(), "[EXPORT_INFO]\n"))
	assert.Contains(t, buf.String(), "\n[RULES]\n")

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.ExportID, back.ExportID)
	assert.True(t, doc.ExportedAt.Equal(back.ExportedAt))
	require.Len(t, back.Rules, 1)
	require.Len(t, back.Facts, 1)

	r := back.Rules[0]
	assert.Equal(t, doc.Rules[0].ID, r.ID)
	assert.Equal(t, "это \"лихорадка\"", r.Action)
	assert.Equal(t, 2, r.Priority)
	assert.InDelta(t, 0.85, r.Confidence, 1e-9)
	assert.Equal(t, []string{"extracted", "regex"}, r.Tags)
	assert.Equal(t, "ru", r.Metadata["language"])

	f := back.Facts[0]
	assert.Equal(t, "36.60", f.Value, "text columns are not sniffed")
	assert.True(t, f.Derived)

	dst := memstore.New()
	stats, err := Import(ctx, dst, back)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Domains: 1, Agents: 1, Rules: 1, Facts: 1}, stats)

	got, _, _ := dst.GetRule(ctx, r.ID)
	assert.Equal(t, "температура выше 38", got.Condition)
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	doc, err := Export(ctx, populated(t), exportTime)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, doc))
	assert.Contains(t, buf.String(), `"variable_name": "температура"`)

	back, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, doc.Rules[0].Tags, back.Rules[0].Tags)
	assert.Equal(t, doc.Facts[0].Value, back.Facts[0].Value)
}

func TestImportTwiceCountsDuplicates(t *testing.T) {
	ctx := context.Background()
	doc, err := Export(ctx, populated(t), exportTime)
	require.NoError(t, err)

	dst := memstore.New()
	_, err = Import(ctx, dst, doc)
	require.NoError(t, err)

	stats, err := Import(ctx, dst, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Rules)
	assert.Equal(t, 0, stats.Facts)
	assert.Equal(t, 4, stats.Duplicates)

	st, _ := dst.Statistics(ctx)
	assert.Equal(t, 1, st.Rules)
	assert.Equal(t, 1, st.Facts)
}

func TestImportMergesDomainByName(t *testing.T) {
	ctx := context.Background()
	doc, err := Export(ctx, populated(t), exportTime)
	require.NoError(t, err)

	dst := memstore.New()
	existing, err := dst.AddDomain(ctx, store.Domain{Name: "medicine"})
	require.NoError(t, err)

	_, err = Import(ctx, dst, doc)
	require.NoError(t, err)

	agents, _ := dst.ListAgents(ctx, existing.ID)
	require.Len(t, agents, 1)
	rules, _ := dst.ListRules(ctx, store.Filter{DomainID: existing.ID})
	assert.Len(t, rules, 1)
}

func TestReadCSVLegacyHeader(t *testing.T) {
	in := "[EXPORT_INFO]\n" +
		"export_date,2024-01-02T03:04:05.123456\n" +
		"\n" +
		"[FACTS]\n" +
		"variable_name,value,confidence,agent_id,is_derived,extra\n" +
		"пульс,90,0.8,agent_1,false,x\n" +
		"short,row\n"

	doc, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2024, doc.ExportedAt.Year())
	require.Len(t, doc.Facts, 1)
	assert.Equal(t, "пульс", doc.Facts[0].Variable)
	assert.InDelta(t, 0.8, doc.Facts[0].Confidence, 1e-9)
	assert.False(t, doc.Facts[0].Derived)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"TRUE", true},
		{"false", false},
		{"42", 42},
		{"-3", -3.0},
		{"0.85", 0.85},
		{"1e3", 1000.0},
		{"лихорадка", "лихорадка"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sniff(tt.in), "Sniff(%q)", tt.in)
	}
}
