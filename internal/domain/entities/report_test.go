package entities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReport_StructuredObject(t *testing.T) {
	result := DecodeReport(`{"incident_summary":"disk full","solution":"rotate logs","severity":"high"}`)

	require.NotNil(t, result.Structured)
	require.NoError(t, result.Err)

	report := result.Record()
	assert.Equal(t, "disk full", report.Get(FieldIncidentSummary))
	assert.Equal(t, "rotate logs", report.Get(FieldSolution))
	assert.JSONEq(t, `"high"`, string(report.Extra["severity"]))
}

func TestDecodeReport_CodeFence(t *testing.T) {
	raw := "```json\n{\"solution\": \"restart pgbouncer\"}\n```"

	result := DecodeReport(raw)

	require.NotNil(t, result.Structured)
	assert.Equal(t, "restart pgbouncer", result.Record().Get(FieldSolution))
}

func TestDecodeReport_RawTextFallsBackToSummary(t *testing.T) {
	result := DecodeReport("Инцидент связан с переполнением диска.")

	assert.Nil(t, result.Structured)
	assert.Error(t, result.Err)

	report := result.Record()
	assert.Equal(t, "Инцидент связан с переполнением диска.", report.Get(FieldIncidentSummary))
	assert.Nil(t, report.Solution)
}

func TestDecodeReport_NonObjectJSON(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `[1,2,3]`, `{"broken": `} {
		result := DecodeReport(raw)
		assert.Nil(t, result.Structured, raw)
		assert.Equal(t, raw, result.Record().Get(FieldIncidentSummary))
	}
}

func TestReport_FlattensListsAndIgnoresNull(t *testing.T) {
	var report Report
	err := json.Unmarshal([]byte(`{"solution":["step one","step two"],"root_cause":null,"impact":42}`), &report)
	require.NoError(t, err)

	assert.Equal(t, "step one\nstep two", report.Get(FieldSolution))
	assert.Nil(t, report.RootCause)
	assert.Equal(t, "42", report.Get(FieldImpact))
}

func TestReport_EmptyStringIsSet(t *testing.T) {
	var report Report
	require.NoError(t, json.Unmarshal([]byte(`{"solution":""}`), &report))

	require.NotNil(t, report.Solution)
	assert.Equal(t, "", *report.Solution)
}

func TestMergeReports_FieldWiseOverride(t *testing.T) {
	base := Report{
		IncidentSummary: Text("old summary"),
		RootCause:       Text("bad index"),
		Extra:           map[string]json.RawMessage{"ticket": json.RawMessage(`"INC-1"`)},
	}
	update := Report{
		IncidentSummary: Text("new summary"),
		Solution:        Text("reindex"),
		Extra:           map[string]json.RawMessage{"severity": json.RawMessage(`"low"`)},
	}

	merged := MergeReports(base, update)

	assert.Equal(t, "new summary", merged.Get(FieldIncidentSummary))
	assert.Equal(t, "bad index", merged.Get(FieldRootCause))
	assert.Equal(t, "reindex", merged.Get(FieldSolution))
	assert.Len(t, merged.Extra, 2)

	// inputs untouched
	assert.Equal(t, "old summary", base.Get(FieldIncidentSummary))
	assert.Len(t, base.Extra, 1)
}

func TestMergeReports_Idempotent(t *testing.T) {
	update := Report{Solution: Text("vacuum full")}
	once := MergeReports(Report{}, update)
	twice := MergeReports(once, update)

	a, err := json.Marshal(once)
	require.NoError(t, err)
	b, err := json.Marshal(twice)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestReport_MarshalOnlySetFields(t *testing.T) {
	report := Report{Solution: Text("restart")}

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{"solution":"restart"}`, string(data))

	fields := report.Fields()
	assert.Equal(t, map[string]any{"solution": "restart"}, fields)
}
