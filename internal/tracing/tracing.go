// Package tracing records every control message a controller exchanges
// into a SQL database. SQLite (modernc.org/sqlite) and PostgreSQL
// (lib/pq) are supported.
package tracing

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
	_ "modernc.org/sqlite"

	"github.com/san-kum/cosim/internal/interval"
	"github.com/san-kum/cosim/internal/protocol"
)

var ErrUnknownDriver = errors.New("tracing: unknown driver")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultBatchSize = 256
)

const (
	DirectionRecv = "recv"
	DirectionSend = "send"
)

// Event is one traced message. Index counts the events of a run from 1
// in recording order.
type Event struct {
	RunID      string
	Index      uint64
	Direction  string
	MsgID      string
	Seq        uint64
	Flag       protocol.Flag
	Time       float64
	Width      float64
	Iterations int
	Residual   float64
	Value      string
	RecordedAt time.Time
}

// Recorder buffers events and writes them in batches. It is an
// interval.Hook.
type Recorder struct {
	db        *sql.DB
	driver    string
	runID     string
	insert    string
	batchSize int
	now       func() time.Time

	mu      sync.Mutex
	next    uint64
	pending []Event
	err     error
}

// Open connects to the database and prepares the schema. For sqlite the
// dsn is a file path.
func Open(driver, dsn string) (*Recorder, error) {
	switch driver {
	case DriverSQLite:
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("tracing: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	r := &Recorder{
		db:        db,
		driver:    driver,
		runID:     xid.New().String(),
		insert:    insertStatement(driver),
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("tracing: migrate: %w", err)
	}

	atexit.Register(func() { r.Flush() })

	return r, nil
}

func (r *Recorder) RunID() string { return r.runID }

// SetBatchSize changes how many events are buffered before a write.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	r.batchSize = n
	r.mu.Unlock()
}

func (r *Recorder) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		run_id      TEXT NOT NULL,
		idx         BIGINT NOT NULL,
		direction   TEXT NOT NULL,
		msg_id      TEXT NOT NULL,
		seq         BIGINT NOT NULL,
		flag        TEXT NOT NULL,
		time        DOUBLE PRECISION NOT NULL,
		width       DOUBLE PRECISION NOT NULL,
		iterations  INTEGER NOT NULL,
		residual    DOUBLE PRECISION NOT NULL,
		value       TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id, idx);
	`
	// One statement per Exec.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func insertStatement(driver string) string {
	cols := []string{"run_id", "idx", "direction", "msg_id", "seq", "flag", "time",
		"width", "iterations", "residual", "value", "recorded_at"}
	return fmt.Sprintf("INSERT INTO messages (%s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders(driver, len(cols)))
}

func placeholders(driver string, n int) string {
	ps := make([]string, n)
	for i := range ps {
		if driver == DriverPostgres {
			ps[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

// Func records messages received and sent by the controller.
func (r *Recorder) Func(ctx interval.HookCtx) {
	var dir string
	switch ctx.Pos {
	case interval.HookPosMsgRecv:
		dir = DirectionRecv
	case interval.HookPosMsgSend:
		dir = DirectionSend
	default:
		return
	}

	msg, ok := ctx.Item.(protocol.Message)
	if !ok {
		return
	}
	r.Record(dir, msg)
}

func (r *Recorder) Record(direction string, msg protocol.Message) {
	ev := Event{
		RunID:      r.runID,
		Direction:  direction,
		MsgID:      msg.ID,
		Seq:        msg.Seq,
		Flag:       msg.Flag,
		Time:       msg.Time,
		Width:      msg.Width,
		RecordedAt: r.now(),
	}
	if msg.Result != nil {
		ev.Iterations = msg.Result.Iterations
		ev.Residual = msg.Result.Residual
		if b, err := json.Marshal(msg.Result.Value); err == nil {
			ev.Value = string(b)
		}
	}

	r.mu.Lock()
	r.next++
	ev.Index = r.next
	r.pending = append(r.pending, ev)
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// Flush writes all buffered events in one transaction. The first write
// error is kept and returned again by Close.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return r.err
	}

	err := retryOnContention(func() error { return r.write(r.pending) })
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("tracing: flush %d events: %w", len(r.pending), err)
		}
		return r.err
	}

	r.pending = nil
	return r.err
}

func (r *Recorder) write(events []Event) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(r.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.Exec(
			ev.RunID,
			int64(ev.Index),
			ev.Direction,
			ev.MsgID,
			int64(ev.Seq),
			ev.Flag.String(),
			ev.Time,
			ev.Width,
			ev.Iterations,
			ev.Residual,
			ev.Value,
			ev.RecordedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Events returns the traced messages of a run in recording order.
func (r *Recorder) Events(runID string) ([]Event, error) {
	query := fmt.Sprintf(`SELECT run_id, idx, direction, msg_id, seq, flag, time, width,
		iterations, residual, value, recorded_at FROM messages WHERE run_id = %s ORDER BY idx`,
		placeholders(r.driver, 1))

	rows, err := r.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("tracing: query: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev       Event
			idx, seq int64
			flag, at string
		)
		if err := rows.Scan(&ev.RunID, &idx, &ev.Direction, &ev.MsgID, &seq, &flag, &ev.Time,
			&ev.Width, &ev.Iterations, &ev.Residual, &ev.Value, &at); err != nil {
			return nil, err
		}
		ev.Index, ev.Seq = uint64(idx), uint64(seq)
		if ev.Flag, err = protocol.ParseFlag(flag); err != nil {
			return nil, err
		}
		if ev.RecordedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close flushes pending events and closes the database.
func (r *Recorder) Close() error {
	flushErr := r.Flush()
	if err := r.db.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}
