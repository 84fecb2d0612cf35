package db

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthcam/internal/bufferpool"
	"github.com/banshee-data/depthcam/internal/camera"
	"github.com/banshee-data/depthcam/internal/testutil"
)

func newTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	db, _ := newTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateDownAndUp(t *testing.T) {
	db, _ := newTestDB(t)
	fsys := MigrationsFS()

	require.NoError(t, db.MigrateDown(fsys))
	version, _, err := db.MigrateVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'session_stats'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateTo(fsys, 2))
	require.NoError(t, db.MigrateUp(fsys), "already latest")
}

func TestLatestMigrationVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"000003_c.up.sql":   {},
		"000003_c.down.sql": {},
		"000010_d.up.sql":   {},
		"readme.up.sql":     {},
	}
	v, err := LatestMigrationVersion(fsys)
	require.NoError(t, err)
	assert.Equal(t, uint(10), v)

	_, err = LatestMigrationVersion(fstest.MapFS{})
	require.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	db, _ := newTestDB(t)

	id, err := db.StartSession("cam-1", "ti-tintin", camera.CallbackDepth)
	require.NoError(t, err)

	s, err := db.Session(id)
	require.NoError(t, err)
	assert.Equal(t, "cam-1", s.CameraID)
	assert.Equal(t, "depth", s.CallbackType)
	assert.Nil(t, s.Stopped)

	stats := camera.Stats{
		Iterations:    10,
		Captured:      9,
		Delivered:     8,
		PoolExhausted: 1,
		Pools:         []bufferpool.Stats{{Name: "raw", InUse: 2}, {Name: "depth", InUse: 1}},
	}
	require.NoError(t, db.RecordStats(id, stats))
	stats.Iterations = 20
	require.NoError(t, db.RecordStats(id, stats))

	latest, err := db.LatestStats(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), latest.Iterations)
	assert.Equal(t, uint64(8), latest.Delivered)
	assert.Equal(t, uint64(1), latest.PoolExhausted)
	assert.Equal(t, 3, latest.BuffersInUse)

	require.NoError(t, db.EndSession(id))
	first, err := db.Session(id)
	require.NoError(t, err)
	require.NotNil(t, first.Stopped)
	require.NoError(t, db.EndSession(id))
	again, err := db.Session(id)
	require.NoError(t, err)
	assert.Equal(t, *first.Stopped, *again.Stopped, "second end keeps the first stop time")
	assert.False(t, again.Stopped.Before(again.Started))
}

func TestSessions_UnknownID(t *testing.T) {
	db, _ := newTestDB(t)

	require.ErrorIs(t, db.EndSession("nope"), ErrSessionNotFound)
	require.ErrorIs(t, db.RecordStats("nope", camera.Stats{}), ErrSessionNotFound)
	_, err := db.Session("nope")
	require.ErrorIs(t, err, ErrSessionNotFound)

	id, err := db.StartSession("cam-1", "ti-tintin", camera.CallbackRawUnprocessed)
	require.NoError(t, err)
	_, err = db.LatestStats(id)
	require.ErrorIs(t, err, ErrSessionNotFound, "no stats recorded yet")
}

func TestSessions_NewestFirst(t *testing.T) {
	db, _ := newTestDB(t)

	var ids []string
	for range 3 {
		id, err := db.StartSession("cam-1", "ti-tintin", camera.CallbackDepth)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := db.Sessions(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[2], got[0].ID)
	assert.Equal(t, ids[1], got[1].ID)
}

func TestHandleSessions(t *testing.T) {
	db, _ := newTestDB(t)

	rec := httptest.NewRecorder()
	db.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.JSONEq(t, "[]", rec.Body.String())

	id, err := db.StartSession("cam-1", "ti-haddock", camera.CallbackRawProcessed)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	db.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions?limit=5", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got []Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "raw_processed", got[0].CallbackType)

	rec = httptest.NewRecorder()
	db.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions?limit=x", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestHandleBackup(t *testing.T) {
	db, _ := newTestDB(t)

	rec := httptest.NewRecorder()
	db.handleBackup(rec, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0x1f, 0x8b}), "gzip magic")
}

func TestAttachAdminRoutes(t *testing.T) {
	db, _ := newTestDB(t)
	require.NoError(t, db.AttachAdminRoutes(http.NewServeMux()))
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2 (latest 2, dirty: false)")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"version", "1"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	require.Error(t, RunMigrateCommand(&out, nil, path))
	require.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	require.Error(t, RunMigrateCommand(&out, []string{"force"}, path))
	require.Error(t, RunMigrateCommand(&out, []string{"version", "two"}, path))

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"help"}, path))
	assert.Contains(t, out.String(), "Usage: depthcam migrate")
}
