package partnertracksdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnertrack/internal/config"
	"partnertrack/internal/engine"
	"partnertrack/internal/logging"
	"partnertrack/internal/persist"
	"partnertrack/internal/server"
	"partnertrack/internal/store"
	partnertracksdk "partnertrack/sdk/go"
)

func newClient(t *testing.T) *partnertracksdk.Client {
	t.Helper()
	log := logging.Discard()
	clock := func() time.Time { return time.Date(2024, 6, 20, 8, 0, 0, 0, time.UTC) }
	s := store.New(context.Background(), persist.NewMemoryBackend(log), store.Reducer{Now: clock}, log)
	e := engine.New(s, config.Default(), log)
	e.Now = clock
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v1", Log: log})
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return partnertracksdk.New(ts.URL)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	b, err := c.CreatePartner(ctx, "20002", "Beta")
	require.NoError(t, err)
	a, err := c.CreatePartner(ctx, "20001", "Alpha")
	require.NoError(t, err)

	partners, err := c.Partners(ctx)
	require.NoError(t, err)
	require.Len(t, partners, 2)
	assert.Equal(t, "20001", partners[0].Code)

	task, err := c.CreateTask(ctx, partnertracksdk.NewTask{
		Title:      "Summer TPS",
		Category:   "TPS",
		Deadline:   "2024-06-25",
		PartnerIDs: []string{a.ID, b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, task.Progress.Percent)

	task, err = c.ToggleAssignment(ctx, task.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, task.Progress.Completed)
	assert.Equal(t, 2, task.Progress.Total)
	assert.Equal(t, "50% 完了", task.Progress.Label)

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dash.UrgentCount)
	require.Len(t, dash.Urgent, 1)
	assert.Equal(t, 5, dash.Urgent[0].DaysLeft)

	data, name, err := c.ExportCSV(ctx)
	require.NoError(t, err)
	assert.Equal(t, "未完了タスク一覧_2024-06-20.csv", name)
	assert.Contains(t, string(data), `"20002","Beta","Summer TPS"`)
	assert.NotContains(t, string(data), "Alpha")

	archived, err := c.ArchiveTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived)

	active, err := c.Tasks(ctx, false, "")
	require.NoError(t, err)
	assert.Empty(t, active)
	old, err := c.Tasks(ctx, true, "tps")
	require.NoError(t, err)
	assert.Len(t, old, 1)
}

func TestClientTemplates(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.CreatePartner(ctx, "30001", "Gamma")
	require.NoError(t, err)

	r, err := c.CreateRecurring(ctx, "Annual training", "研修", 9, "")
	require.NoError(t, err)
	draft, err := c.Draft(ctx, r.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-09-01", draft.Deadline)
	assert.Len(t, draft.PartnerIDs, 1)

	task, err := c.ApplyTemplate(ctx, r.ID, 2025, nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01", task.Deadline)

	list, err := c.Recurring(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClientAPIError(t *testing.T) {
	c := newClient(t)
	_, err := c.Task(context.Background(), "missing")
	var apiErr *partnertracksdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "not_found")
}

