package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
	"github.com/0xcro3dile/incidentrag-go/internal/domain/ports"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "incidents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveThenMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveContent(ctx, "inc-1", "лог созвона"))
	require.NoError(t, s.MergeReport(ctx, "inc-1", entities.Report{
		IncidentSummary: entities.Text("упал сервис"),
		Solution:        entities.Text("решение не обсуждалось"),
	}))
	require.NoError(t, s.MergeReport(ctx, "inc-1", entities.Report{
		Solution: entities.Text("перезапуск пода"),
	}))

	rec, err := s.Get(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, "лог созвона", rec.Content)
	assert.Equal(t, "упал сервис", rec.Report.Get(entities.FieldIncidentSummary))
	assert.Equal(t, "перезапуск пода", rec.Report.Get(entities.FieldSolution))
	assert.Nil(t, rec.Report.RootCause)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestSQLiteStore_MergeWithoutContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MergeReport(ctx, "inc-2", entities.Report{Impact: entities.Text("ночь без алертов")}))
	require.NoError(t, s.SaveContent(ctx, "inc-2", "текст"))

	rec, err := s.Get(ctx, "inc-2")
	require.NoError(t, err)
	assert.Equal(t, "текст", rec.Content)
	assert.Equal(t, "ночь без алертов", rec.Report.Get(entities.FieldImpact))
}

func TestSQLiteStore_MergeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	report := entities.Report{RootCause: entities.Text("диск")}

	require.NoError(t, s.MergeReport(ctx, "inc-3", report))
	first, err := s.Get(ctx, "inc-3")
	require.NoError(t, err)
	require.NoError(t, s.MergeReport(ctx, "inc-3", report))
	second, err := s.Get(ctx, "inc-3")
	require.NoError(t, err)

	assert.Equal(t, first.Report, second.Report)
}

func TestSQLiteStore_ExtraFieldsSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var report entities.Report
	require.NoError(t, report.UnmarshalJSON([]byte(`{"severity":"P1","solution":"откат"}`)))
	require.NoError(t, s.MergeReport(ctx, "inc-4", report))

	rec, err := s.Get(ctx, "inc-4")
	require.NoError(t, err)
	assert.JSONEq(t, `"P1"`, string(rec.Report.Extra["severity"]))
	assert.Equal(t, "откат", rec.Report.Get(entities.FieldSolution))
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSQLiteStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveContent(ctx, "inc-5", "persisted"))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "inc-5")
	require.NoError(t, err)
	assert.Equal(t, "persisted", rec.Content)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveContent(context.Background(), "x", "y"))
	require.NoError(t, s.Ping(context.Background()))
}

func TestIncidentDoc_Record(t *testing.T) {
	doc := incidentDoc{
		ID:      "inc-6",
		Content: "текст",
		Fields: bson.M{
			"incident_summary": "сбой",
			"timeline":         bson.A{"10:00 алерт", "10:05 откат"},
		},
	}

	rec, err := doc.record()
	require.NoError(t, err)
	assert.Equal(t, "сбой", rec.Report.Get(entities.FieldIncidentSummary))
	assert.Equal(t, "10:00 алерт\n10:05 откат", rec.Report.Get(entities.FieldTimeline))
}

func TestReportFields_DropsReservedKeys(t *testing.T) {
	var report entities.Report
	require.NoError(t, json.Unmarshal([]byte(`{
		"incident_summary": "сбой",
		"content": "подмена текста",
		"_id": "other",
		"updated_at": "вчера",
		"$unset": "x",
		"a.b": "путь",
		"severity": "high"
	}`), &report))

	fields := reportFields(report)

	assert.Equal(t, bson.M{"incident_summary": "сбой", "severity": "high"}, fields)
}

func TestReportFields_OnlyReservedKeys(t *testing.T) {
	report := entities.Report{Extra: map[string]json.RawMessage{
		"content": json.RawMessage(`"x"`),
		"_id":     json.RawMessage(`"y"`),
	}}
	assert.Empty(t, reportFields(report))
}
