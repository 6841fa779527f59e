package results

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []driver.Value
}

// recordingConnector is a database/sql driver that records Exec calls
type recordingConnector struct {
	mu    sync.Mutex
	calls []execCall
	fail  map[string]error
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) {
	return &recordingConn{c: c}, nil
}

func (c *recordingConnector) Driver() driver.Driver { return nil }

type recordingConn struct{ c *recordingConnector }

func (r *recordingConn) Prepare(query string) (driver.Stmt, error) {
	return &recordingStmt{c: r.c, query: query}, nil
}

func (r *recordingConn) Close() error { return nil }

func (r *recordingConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

type recordingStmt struct {
	c     *recordingConnector
	query string
}

func (s *recordingStmt) Close() error  { return nil }
func (s *recordingStmt) NumInput() int { return -1 }

func (s *recordingStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.calls = append(s.c.calls, execCall{query: s.query, args: args})
	if err := s.c.fail[s.query]; err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (s *recordingStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries not supported")
}

func newRecordingStore(t *testing.T) (*PostgresStore, *recordingConnector) {
	t.Helper()
	conn := &recordingConnector{fail: map[string]error{}}
	db := sql.OpenDB(conn)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), conn
}

func TestTouchUpdatesBothRecords(t *testing.T) {
	store, conn := newRecordingStore(t)

	require.NoError(t, store.Touch(context.Background(), 11, 500))

	require.Len(t, conn.calls, 2)
	assert.Equal(t,
		`UPDATE exercise SET "standardPoses" = NULL, "updatedAt" = timezone('Asia/Singapore', now()) WHERE id = $1`,
		conn.calls[0].query)
	assert.Equal(t, []driver.Value{int64(11)}, conn.calls[0].args)
	assert.Equal(t,
		`UPDATE user_data_exercise SET "updated_at" = timezone('Asia/Singapore', now()) WHERE id = $1`,
		conn.calls[1].query)
	assert.Equal(t, []driver.Value{int64(500)}, conn.calls[1].args)
}

func TestTouchStopsOnExerciseError(t *testing.T) {
	store, conn := newRecordingStore(t)
	conn.fail[touchExerciseQuery] = errors.New("column does not exist")

	err := store.Touch(context.Background(), 11, 500)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exercise 11")
	assert.Len(t, conn.calls, 1)
}

func TestSaveAccuracyStatement(t *testing.T) {
	store, conn := newRecordingStore(t)

	require.NoError(t, store.SaveAccuracy(context.Background(), 500, 87.65))

	require.Len(t, conn.calls, 1)
	assert.Equal(t, `UPDATE user_data_exercise SET accuracy = $1 WHERE id = $2`, conn.calls[0].query)
	assert.Equal(t, []driver.Value{87.65, int64(500)}, conn.calls[0].args)
}
