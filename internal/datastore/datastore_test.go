package datastore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Damatnic/astral-core-v7-sub003/internal/telemetry"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func openTestStore(t *testing.T) (*Store, *telemetry.Collector) {
	t.Helper()
	collector := telemetry.NewCollector(telemetry.DefaultConfig(), nil)
	store, err := Open(context.Background(), Options{
		Driver: "sqlite3",
		DSN:    ":memory:",
	}, collector, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, collector
}

func testAppointment(n int) *Appointment {
	return &Appointment{
		ID:          fmt.Sprintf("appt-%d", n),
		ClientName:  fmt.Sprintf("client-%d", n),
		ScheduledAt: time.Now().Add(time.Duration(n) * time.Hour),
	}
}

func TestCreateAndList(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateAppointment(ctx, testAppointment(i)))
	}

	appts, err := store.ListAppointments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, appts, 3)
	// Newest first.
	assert.Equal(t, "appt-2", appts[0].ID)
	assert.Equal(t, "scheduled", appts[0].Status)
}

func TestCreateRequiresID(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.CreateAppointment(context.Background(), &Appointment{ClientName: "x"})
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAppointment(ctx, testAppointment(1)))
	require.NoError(t, store.UpdateAppointmentStatus(ctx, "appt-1", "completed"))

	appts, err := store.ListAppointments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "completed", appts[0].Status)
}

func TestUpdateMissingAppointment(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.UpdateAppointmentStatus(context.Background(), "missing", "completed")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAppointment(ctx, testAppointment(1)))
	require.NoError(t, store.DeleteAppointment(ctx, "appt-1"))

	appts, err := store.ListAppointments(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestOperationsAreInstrumented(t *testing.T) {
	store, collector := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAppointment(ctx, testAppointment(1)))
	_, err := store.ListAppointments(ctx, 10)
	require.NoError(t, err)
	require.NoError(t, store.UpdateAppointmentStatus(ctx, "appt-1", "completed"))
	require.NoError(t, store.DeleteAppointment(ctx, "appt-1"))

	queries := collector.Queries()
	require.Len(t, queries, 4)
	assert.Equal(t, types.OpInsert, queries[0].Operation)
	assert.Equal(t, types.OpRead, queries[1].Operation)
	assert.Equal(t, types.OpUpdate, queries[2].Operation)
	assert.Equal(t, types.OpDelete, queries[3].Operation)
	for _, q := range queries {
		assert.True(t, q.Success)
		assert.Equal(t, "appointments", q.Table)
	}
	assert.Equal(t, int64(1), queries[0].RowCount)
	assert.Equal(t, int64(1), queries[1].RowCount)
}

func TestFailedQueryRecorded(t *testing.T) {
	store, collector := openTestStore(t)
	ctx := context.Background()

	appt := testAppointment(1)
	require.NoError(t, store.CreateAppointment(ctx, appt))
	// Duplicate primary key.
	err := store.CreateAppointment(ctx, appt)
	require.Error(t, err)

	queries := collector.Queries()
	require.Len(t, queries, 2)
	assert.True(t, queries[0].Success)
	assert.False(t, queries[1].Success)
	assert.NotEmpty(t, queries[1].Error)

	stats := collector.QueryStats(time.Now())
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 1, stats.FailedQueries)
}

func TestOpenUnknownDriver(t *testing.T) {
	collector := telemetry.NewCollector(telemetry.DefaultConfig(), nil)
	_, err := Open(context.Background(), Options{Driver: "bogus", DSN: "x"}, collector, nil)
	assert.Error(t, err)
}
