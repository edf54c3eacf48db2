package storage

// sqlite.go: persistencia del liquidation queue.
//
// Estrategia:
//   - `queue_state`: UNA fila con el snapshot CBOR completo del queue. Se
//     reescribe tras cada operación de la CLI; el engine vive en memoria.
//   - `queue_events`: log append-only de eventos confirmados (auditoría,
//     comando `events`). Prune explícito por antigüedad.
//   - `custody_*`: el ledger de custody (ver custody.go).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/voantyh/tapioca-bar-audit/internal/domain"
	"github.com/voantyh/tapioca-bar-audit/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
-- Snapshot único del queue
CREATE TABLE IF NOT EXISTS queue_state (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    version  INTEGER NOT NULL,
    data     BLOB    NOT NULL,
    saved_at INTEGER NOT NULL
);

-- Log de eventos confirmados
CREATE TABLE IF NOT EXISTS queue_events (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    id       TEXT    NOT NULL UNIQUE,
    type     TEXT    NOT NULL,
    at_ns    INTEGER NOT NULL,
    caller   TEXT    NOT NULL,
    account  TEXT    NOT NULL,
    pool     INTEGER NOT NULL DEFAULT -1,
    position INTEGER NOT NULL DEFAULT -1,
    amount   TEXT    NOT NULL DEFAULT '0',
    extra    TEXT    NOT NULL DEFAULT '0',
    detail   TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_at      ON queue_events(at_ns);
CREATE INDEX IF NOT EXISTS idx_events_account ON queue_events(account);
`

// SQLiteStorage implementa ports.QueueStore y ports.Custody usando SQLite
// (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var (
	_ ports.QueueStore = (*SQLiteStorage)(nil)
	_ ports.Custody    = (*SQLiteStorage)(nil)
)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema del queue y del custody ledger.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{schema, custodySchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveSnapshot reemplaza el snapshot guardado.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: encode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_state (id, version, data, saved_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version  = excluded.version,
			data     = excluded.data,
			saved_at = excluded.saved_at`,
		snap.Version, data, time.Now().UTC().UnixNano(),
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot devuelve el snapshot guardado; ok=false si la base está vacía.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM queue_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.LoadSnapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("storage.LoadSnapshot: decode: %w", err)
	}
	return snap, true, nil
}

// Publish implementa ports.EventSink: inserta los eventos en una transacción.
func (s *SQLiteStorage) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Publish: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO queue_events
			(id, type, at_ns, caller, account, pool, position, amount, extra, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.Publish: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID,
			string(ev.Type),
			ev.At.UTC().UnixNano(),
			ev.Caller.Hex(),
			ev.Account.Hex(),
			ev.Pool,
			ev.Position,
			ev.Amount.Dec(),
			ev.Extra.Dec(),
			ev.Detail,
		); err != nil {
			return fmt.Errorf("storage.Publish: insert %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Publish: commit: %w", err)
	}
	return nil
}

// GetEvents devuelve los eventos con timestamp en [from, to], en orden de inserción.
func (s *SQLiteStorage) GetEvents(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, at_ns, caller, account, pool, position, amount, extra, detail
		FROM queue_events
		WHERE at_ns BETWEEN ? AND ?
		ORDER BY seq ASC`,
		from.UTC().UnixNano(), to.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("storage.GetEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var typ, caller, account, amount, extra string
		var atNs int64
		var detail sql.NullString

		if err := rows.Scan(&ev.ID, &typ, &atNs, &caller, &account,
			&ev.Pool, &ev.Position, &amount, &extra, &detail); err != nil {
			return nil, fmt.Errorf("storage.GetEvents: scan row: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.At = time.Unix(0, atNs).UTC()
		ev.Caller = common.HexToAddress(caller)
		ev.Account = common.HexToAddress(account)
		ev.Detail = detail.String
		if ev.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("storage.GetEvents: %w", err)
		}
		if ev.Extra, err = domain.ParseAmount(extra); err != nil {
			return nil, fmt.Errorf("storage.GetEvents: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// PruneEvents elimina eventos anteriores a before. Devuelve cuántos borró.
func (s *SQLiteStorage) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_events WHERE at_ns < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.PruneEvents: %w", err)
	}
	return res.RowsAffected()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
