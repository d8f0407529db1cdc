// Package sqlite stores the knowledge graph in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/poiesic/recall/graph"
	"github.com/poiesic/recall/storage"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS triples (
	subject   TEXT NOT NULL,
	predicate TEXT NOT NULL,
	kind      INTEGER NOT NULL,
	value     TEXT NOT NULL,
	datatype  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (subject, predicate, kind, value, datatype)
);
`

// Store implements storage.TripleStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ storage.TripleStore = (*Store)(nil)

// Open opens the database at dsn, enables WAL mode and creates the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (storage.TripleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Every connection to :memory: is a separate database.
	if dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "sqlite"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write replaces the stored triples of every subject in triples within a
// single transaction.
func (s *Store) Write(ctx context.Context, triples []graph.Triple) (storage.Ack, error) {
	if err := storage.CheckTriples(triples); err != nil {
		return storage.Ack{}, err
	}
	set := graph.Normalize(slices.Clone(triples))
	subjects := graph.Subjects(set)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Ack{}, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	del, err := tx.PrepareContext(ctx, `DELETE FROM triples WHERE subject = ?`)
	if err != nil {
		return storage.Ack{}, eris.Wrap(err, "sqlite: prepare delete")
	}
	defer del.Close()
	for _, subject := range subjects {
		if _, err := del.ExecContext(ctx, subject); err != nil {
			return storage.Ack{}, eris.Wrapf(err, "sqlite: delete %s", subject)
		}
	}

	ins, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO triples (subject, predicate, kind, value, datatype) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return storage.Ack{}, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer ins.Close()
	for _, t := range set {
		if _, err := ins.ExecContext(ctx, t.Subject, t.Predicate, int(t.Object.Kind), t.Object.Value, t.Object.Datatype); err != nil {
			return storage.Ack{}, eris.Wrapf(err, "sqlite: insert %s", t.Subject)
		}
	}

	if err := tx.Commit(); err != nil {
		return storage.Ack{}, eris.Wrap(storage.ErrTransactionFailed, err.Error())
	}

	s.logger.Debug("triples written", "triples", len(set), "subjects", len(subjects))
	return storage.Ack{Triples: len(set), Subjects: len(subjects), WrittenAt: s.now()}, nil
}

// Triples returns every stored triple in sorted order.
func (s *Store) Triples(ctx context.Context) ([]graph.Triple, error) {
	return s.query(ctx, `SELECT subject, predicate, kind, value, datatype FROM triples`)
}

// Subject returns the triples stored for subject.
func (s *Store) Subject(ctx context.Context, subject string) ([]graph.Triple, error) {
	return s.query(ctx, `SELECT subject, predicate, kind, value, datatype FROM triples WHERE subject = ?`, subject)
}

// Count returns the number of stored triples.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triples`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count")
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]graph.Triple, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close()

	var triples []graph.Triple
	for rows.Next() {
		var t graph.Triple
		var kind int
		if err := rows.Scan(&t.Subject, &t.Predicate, &kind, &t.Object.Value, &t.Object.Datatype); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan")
		}
		t.Object.Kind = graph.TermKind(kind)
		triples = append(triples, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: rows")
	}
	return graph.Normalize(triples), nil
}
