package clickhouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhongzachary/MultinomialCIProject2020/internal/storage"
)

// scriptedConn records estimate_runs headers and county batches in memory and
// fails the first failSends batch sends.
type scriptedConn struct {
	driver.Conn
	headers    map[string]bool
	countyRows int
	failSends  int
	order      []string
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{headers: make(map[string]bool)}
}

func (c *scriptedConn) QueryRow(_ context.Context, _ string, args ...any) driver.Row {
	var n uint64
	if c.headers[args[0].(string)] {
		n = 1
	}
	return countRow{n: n}
}

func (c *scriptedConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	return &scriptedBatch{conn: c}, nil
}

func (c *scriptedConn) Exec(_ context.Context, query string, args ...any) error {
	if strings.Contains(query, "INSERT INTO estimate_runs") {
		c.headers[args[0].(string)] = true
		c.order = append(c.order, "header")
	}
	return nil
}

type countRow struct {
	driver.Row
	n uint64
}

func (r countRow) Scan(dest ...any) error {
	*dest[0].(*uint64) = r.n
	return nil
}

type scriptedBatch struct {
	driver.Batch
	conn *scriptedConn
	rows int
}

func (b *scriptedBatch) Append(...any) error { b.rows++; return nil }
func (b *scriptedBatch) Abort() error        { return nil }

func (b *scriptedBatch) Send() error {
	if b.conn.failSends > 0 {
		b.conn.failSends--
		return errors.New("connection reset by peer")
	}
	b.conn.countyRows += b.rows
	b.conn.order = append(b.conn.order, "counties")
	return nil
}

func TestRunStore_FailedCountyBatchLeavesNoHeader(t *testing.T) {
	fake := newScriptedConn()
	fake.failSends = 1
	store := NewRunStore(&Conn{Conn: fake})
	ctx := context.Background()
	run := testRun("run-retry", time.Date(2020, 11, 5, 9, 0, 0, 0, time.UTC))

	err := store.Insert(ctx, run)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrDuplicateKey)
	assert.False(t, fake.headers["run-retry"], "header must not be written when counties fail")

	// The retry is not mistaken for an already stored run.
	require.NoError(t, store.Insert(ctx, run))
	assert.True(t, fake.headers["run-retry"])
	assert.Equal(t, len(run.Counties), fake.countyRows)
	assert.Equal(t, []string{"counties", "header"}, fake.order)

	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)
}
