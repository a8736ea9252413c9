package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconlabs/beacon/pkg/types"
)

func openTestStore(t *testing.T, maxRows int64) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "beacon.db"), maxRows)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_AppendAndRead(t *testing.T) {
	st := openTestStore(t, 100)

	ev := &types.Event{
		EventType:       "button_clicked",
		EventProperties: map[string]interface{}{"screen": "home", "count": float64(3)},
		Timestamp:       1700000000000,
		SessionID:       1700000000000,
		SequenceNumber:  1,
		UUID:            "uuid-1",
		DeviceID:        "device-1",
	}

	rowID, err := st.Append(types.KindEvent, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rowID)

	rows, err := st.Read(types.KindEvent, -1, -1)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, rowID, got.RowID)
	assert.Equal(t, types.KindEvent, got.Kind)
	assert.Equal(t, ev.EventType, got.EventType)
	assert.Equal(t, ev.EventProperties, got.EventProperties)
	assert.Equal(t, ev.Timestamp, got.Timestamp)
	assert.Equal(t, ev.SessionID, got.SessionID)
	assert.Equal(t, ev.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, ev.UUID, got.UUID)
	assert.Equal(t, ev.DeviceID, got.DeviceID)
}

func TestStore_IndependentRowIDSpaces(t *testing.T) {
	st := openTestStore(t, 100)

	eventID, err := st.Append(types.KindEvent, &types.Event{EventType: "a"})
	require.NoError(t, err)
	identifyID, err := st.Append(types.KindIdentify, &types.Event{EventType: types.EventTypeIdentify})
	require.NoError(t, err)

	// Each kind has its own auto-increment space.
	assert.Equal(t, int64(1), eventID)
	assert.Equal(t, int64(1), identifyID)

	events, err := st.Count(types.KindEvent)
	require.NoError(t, err)
	identifys, err := st.Count(types.KindIdentify)
	require.NoError(t, err)
	assert.Equal(t, int64(1), events)
	assert.Equal(t, int64(1), identifys)

	total, err := st.TotalCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestStore_ReadBounds(t *testing.T) {
	st := openTestStore(t, 100)

	for i := 0; i < 5; i++ {
		_, err := st.Append(types.KindEvent, &types.Event{EventType: "e", Timestamp: int64(i)})
		require.NoError(t, err)
	}

	rows, err := st.Read(types.KindEvent, 3, -1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(3), rows[2].RowID)

	rows, err = st.Read(types.KindEvent, -1, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].RowID)
	assert.Equal(t, int64(2), rows[1].RowID)
}

func TestStore_EvictsOldestAtCap(t *testing.T) {
	st := openTestStore(t, 10)

	for i := 0; i < 10; i++ {
		_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
		require.NoError(t, err)
	}

	// The 11th append evicts max(1, 10/10) = 1 oldest row first.
	_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
	require.NoError(t, err)

	count, err := st.Count(types.KindEvent)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	rows, err := st.Read(types.KindEvent, -1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].RowID, "oldest row should be evicted")
}

func TestStore_EvictsTenPercent(t *testing.T) {
	st := openTestStore(t, 30)

	for i := 0; i < 30; i++ {
		_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
		require.NoError(t, err)
	}

	_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
	require.NoError(t, err)

	count, err := st.Count(types.KindEvent)
	require.NoError(t, err)
	// 3 evicted, 1 inserted.
	assert.Equal(t, int64(28), count)

	rows, err := st.Read(types.KindEvent, -1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rows[0].RowID)
}

func TestStore_DeleteUpTo(t *testing.T) {
	st := openTestStore(t, 100)

	for i := 0; i < 5; i++ {
		_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
		require.NoError(t, err)
	}

	require.NoError(t, st.DeleteUpTo(types.KindEvent, 3))

	rows, err := st.Read(types.KindEvent, -1, -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(4), rows[0].RowID)
	assert.Equal(t, int64(5), rows[1].RowID)
}

func TestStore_DeleteByID(t *testing.T) {
	st := openTestStore(t, 100)

	for i := 0; i < 3; i++ {
		_, err := st.Append(types.KindEvent, &types.Event{EventType: "e"})
		require.NoError(t, err)
	}

	require.NoError(t, st.DeleteByID(types.KindEvent, 2))

	rows, err := st.Read(types.KindEvent, -1, -1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].RowID)
	assert.Equal(t, int64(3), rows[1].RowID)
}

func TestStore_StringScalars(t *testing.T) {
	st := openTestStore(t, 100)

	_, ok, err := st.GetString(KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetString(KeyDeviceID, "device-1"))
	v, ok, err := st.GetString(KeyDeviceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "device-1", v)

	// Upsert overwrites.
	require.NoError(t, st.SetString(KeyDeviceID, "device-2"))
	v, _, _ = st.GetString(KeyDeviceID)
	assert.Equal(t, "device-2", v)

	require.NoError(t, st.DeleteString(KeyDeviceID))
	_, ok, err = st.GetString(KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LongScalars(t *testing.T) {
	st := openTestStore(t, 100)

	_, ok, err := st.GetLong(KeyLastEventTime)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetLong(KeyLastEventTime, 1700000000000))
	v, ok, err := st.GetLong(KeyLastEventTime)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), v)

	require.NoError(t, st.DeleteLong(KeyLastEventTime))
	_, ok, err = st.GetLong(KeyLastEventTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_NextSequenceNumber(t *testing.T) {
	st := openTestStore(t, 100)

	for want := int64(1); want <= 5; want++ {
		got, err := st.NextSequenceNumber()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStore_SequenceNumberSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	st, err := Open(path, 100)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := st.NextSequenceNumber()
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	st, err = Open(path, 100)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.NextSequenceNumber()
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}

func TestStore_Recreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	st, err := Open(path, 100)
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Append(types.KindEvent, &types.Event{EventType: "e"})
	require.NoError(t, err)
	require.NoError(t, st.SetString(KeyDeviceID, "device-1"))

	require.NoError(t, st.Recreate())

	total, err := st.TotalCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, ok, err := st.GetString(KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok, "scalar state should not survive recreate")

	// The store is usable again after recreate.
	_, err = st.Append(types.KindEvent, &types.Event{EventType: "e"})
	assert.NoError(t, err)
}

func TestStore_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	st, err := Open(path, 100)
	require.NoError(t, err)
	_, err = st.Append(types.KindEvent, &types.Event{EventType: "persisted"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path, 100)
	require.NoError(t, err)
	defer st.Close()

	rows, err := st.Read(types.KindEvent, -1, -1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "persisted", rows[0].EventType)
}

func TestStore_MigrationSetsUserVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.db")

	st, err := Open(path, 100)
	require.NoError(t, err)

	var version int
	require.NoError(t, st.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
	require.NoError(t, st.Close())

	// Reopening an up-to-date store is a no-op migration.
	st, err = Open(path, 100)
	require.NoError(t, err)
	defer st.Close()
}

func TestStore_OpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "beacon.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	st, err := Open(path, 100)
	require.NoError(t, err)
	defer st.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
