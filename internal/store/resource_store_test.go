package store

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

// setupTestStore mirrors the teacher's TEST_DB_URL-gated integration test
// pattern (internal/repointel/service_test.go): these exercise the real
// Postgres-backed write/read/history path and are skipped unless a test
// database is configured, rather than mocked, since ResourceStore's
// correctness is inseparable from the SQL it runs.
func setupTestStore(t *testing.T) *ResourceStore {
	t.Helper()
	dsn := os.Getenv("TEST_DB_URL")
	if dsn == "" {
		t.Skip("skipping: TEST_DB_URL not set")
	}
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := &DB{Conn: conn}
	require.NoError(t, db.InitSchema())
	return NewResourceStore(db)
}

func TestResourceStore_CreateReadVReadDelete(t *testing.T) {
	s := setupTestStore(t)

	created, err := s.Create("Patient", "it-1", []byte(`{"resourceType":"Patient","id":"it-1"}`), nil, nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), created.VersionID)

	read, err := s.Read("Patient", "it-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), read.VersionID)
	require.False(t, read.Deleted)

	vread, err := s.VRead("Patient", "it-1", 1)
	require.NoError(t, err)
	require.Equal(t, read.Body, vread.Body)

	_, err = s.Delete("Patient", "it-1", nil)
	require.NoError(t, err)

	_, err = s.Read("Patient", "it-1")
	require.Error(t, err, "a deleted resource must not be readable as current")
}

func TestResourceStore_History(t *testing.T) {
	s := setupTestStore(t)

	id := "it-history-1"
	_, err := s.Create("Patient", id, []byte(`{"resourceType":"Patient","id":"`+id+`","active":true}`), nil, nil)
	require.NoError(t, err)

	_, created, err := s.Upsert("Patient", id, []byte(`{"resourceType":"Patient","id":"`+id+`","active":false}`), nil, nil, nil)
	require.NoError(t, err)
	require.False(t, created, "second write to an existing id is an update, not a create")

	rows, err := s.History("Patient", id, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(2), rows[0].VersionID, "most recent version first")
	require.Equal(t, int64(1), rows[1].VersionID)
}

func TestResourceStore_TypeHistoryLimit(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Create("Observation", "it-th-1", []byte(`{"resourceType":"Observation","id":"it-th-1"}`), nil, nil)
	require.NoError(t, err)
	_, err = s.Create("Observation", "it-th-2", []byte(`{"resourceType":"Observation","id":"it-th-2"}`), nil, nil)
	require.NoError(t, err)

	rows, err := s.TypeHistory("Observation", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
