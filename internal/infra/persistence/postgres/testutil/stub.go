// Package testutil fakes just enough of a SQL server for the postgres
// snapshot store: DDL is accepted and ignored, INSERT ... ON CONFLICT upserts
// on the first listed column, and SELECT returns named columns of a table.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"gitlab.com/tozd/go/errors"
)

var driverSeq atomic.Int64

// StubConn is the single connection behind a stub *sql.DB. Tests flip the
// Fail fields to inject errors at each stage of a snapshot write.
type StubConn struct {
	Execs  []string
	Tables map[string][]map[string]any

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// RowsErr is returned once a SELECT has yielded all of its rows.
	RowsErr error
}

// NewStubDB registers a fresh driver name so parallel tests never share state.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("graphclone-stub-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

func (c *StubConn) Rows(table string) []map[string]any { return c.Tables[table] }

func fail(on bool, op string) error {
	if on {
		return errors.Errorf("stub %s failed", op)
	}
	return nil
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.Errorf("stub does not prepare statements: %s", query)
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) Ping(context.Context) error { return fail(c.FailPing, "ping") }

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if err := fail(c.FailBegin, "begin"); err != nil {
		return nil, err
	}
	return stubTx{conn: c}, nil
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if err := fail(c.FailExec, "exec"); err != nil {
		return nil, err
	}
	table, cols, ok := insertTarget(query)
	if !ok {
		return driver.RowsAffected(0), nil
	}
	if len(cols) != len(args) {
		return nil, errors.Errorf("insert into %s: %d columns, %d args", table, len(cols), len(args))
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	rows := c.Tables[table]
	if strings.Contains(strings.ToUpper(query), "ON CONFLICT") {
		for i, existing := range rows {
			if existing[cols[0]] == row[cols[0]] {
				rows[i] = row
				return driver.RowsAffected(1), nil
			}
		}
	}
	c.Tables[table] = append(rows, row)
	return driver.RowsAffected(1), nil
}

func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	table, cols, ok := selectTarget(query)
	if !ok {
		return nil, errors.Errorf("stub cannot query: %s", query)
	}
	out := &stubRows{cols: cols, err: c.RowsErr}
	for _, row := range c.Tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		out.rows = append(out.rows, vals)
	}
	return out, nil
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error   { return fail(t.conn.FailCommit, "commit") }
func (t stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if len(r.rows) == 0 {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[0])
	r.rows = r.rows[1:]
	return nil
}

// insertTarget reads "INSERT INTO table(col, ...)".
func insertTarget(query string) (string, []string, bool) {
	q := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToUpper(q), "INSERT INTO") {
		return "", nil, false
	}
	table, rest, ok := strings.Cut(q[len("INSERT INTO"):], "(")
	if !ok {
		return "", nil, false
	}
	list, _, ok := strings.Cut(rest, ")")
	if !ok {
		return "", nil, false
	}
	return strings.ToLower(strings.TrimSpace(table)), columns(list), true
}

// selectTarget reads "SELECT col, ... FROM table".
func selectTarget(query string) (string, []string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	list, ok := strings.CutPrefix(q, "select ")
	if !ok {
		return "", nil, false
	}
	list, from, ok := strings.Cut(list, " from ")
	if !ok {
		return "", nil, false
	}
	fields := strings.Fields(from)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], columns(list), true
}

func columns(list string) []string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return parts
}
