package testutil

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubDBUpsertsAndQueriesRows(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	require.NoError(t, conn.Ping(ctx))

	upsert := "INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload"
	_, err := conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "task"}, {Value: []byte("{}")}})
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, upsert, []driver.NamedValue{{Value: "task"}, {Value: []byte(`{"a":{}}`)}})
	require.NoError(t, err)
	require.Len(t, conn.Rows("state"), 1)

	rows, err := conn.QueryContext(ctx, "SELECT bucket, payload FROM state", nil)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 2)
	require.NoError(t, rows.Next(dest))
	require.Equal(t, "task", dest[0])
	require.Equal(t, []byte(`{"a":{}}`), dest[1])
}

func TestStubDBFailureToggles(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing = true
	require.Error(t, conn.Ping(ctx))
	conn.FailExec = true
	_, err := conn.ExecContext(ctx, "CREATE TABLE x (a TEXT)", nil)
	require.Error(t, err)
	conn.FailBegin = true
	_, err = conn.BeginTx(ctx, driver.TxOptions{})
	require.Error(t, err)
	_, err = conn.QueryContext(ctx, "DROP TABLE x", nil)
	require.Error(t, err)
}
