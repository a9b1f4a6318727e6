// Package store persists encoded artifacts in a content-addressed
// sqlite database. Every artifact is keyed by its content identifier,
// so writes are idempotent: storing the same value, graph or trace
// twice leaves a single row behind.
package store

import (
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/causality-lang/causality/internal/diag"
	"github.com/causality-lang/causality/internal/effect"
	"github.com/causality-lang/causality/internal/teg"
	"github.com/causality-lang/causality/internal/value"
)

// Artifact kinds recorded alongside each row.
const (
	KindValue = "value"
	KindGraph = "graph"
	KindTrace = "trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id         BLOB PRIMARY KEY,
	kind       TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_kind ON artifacts(kind);
`

// Store is a content-addressed artifact database. The zero value is
// not usable; construct one with Open.
type Store struct {
	db  *sql.DB
	log *log.Logger
}

// Open opens (creating if necessary) the artifact database at path.
// A nil logger makes the store silent.
func Open(path string, logger *log.Logger) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "OPEN", "open artifact database", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, log: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return diag.Wrap(diag.CategoryStore, "MIGRATE", "apply artifact schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put records an artifact under its content identifier. Storing an
// identifier that already exists is a no-op, since the payload is
// determined by the key.
func (s *Store) Put(id value.ID, kind string, data []byte) error {
	err := s.retry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO artifacts (id, kind, data, created_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			id[:], kind, data, time.Now().UTC().Format(time.RFC3339Nano),
		)
		return err
	})
	if err != nil {
		return diag.Wrap(diag.CategoryStore, "PUT", "store artifact "+id.Short(), err)
	}
	if s.log != nil {
		s.log.Printf("store: put %s %s (%d bytes)", kind, id.Short(), len(data))
	}
	return nil
}

// Get returns the kind and payload of an artifact.
func (s *Store) Get(id value.ID) (string, []byte, error) {
	var kind string
	var data []byte
	err := s.db.QueryRow(`SELECT kind, data FROM artifacts WHERE id = ?`, id[:]).Scan(&kind, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, diag.Newf(diag.CategoryStore, "NOT_FOUND", "no artifact %s", id.Short())
	}
	if err != nil {
		return "", nil, diag.Wrap(diag.CategoryStore, "GET", "load artifact "+id.Short(), err)
	}
	return kind, data, nil
}

// Has reports whether an artifact with the given identifier exists.
func (s *Store) Has(id value.ID) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM artifacts WHERE id = ?`, id[:]).Scan(&n)
	if err != nil {
		return false, diag.Wrap(diag.CategoryStore, "HAS", "probe artifact "+id.Short(), err)
	}
	return n > 0, nil
}

// List returns the identifiers of every stored artifact of a kind,
// in ascending identifier order.
func (s *Store) List(kind string) ([]value.ID, error) {
	rows, err := s.db.Query(`SELECT id FROM artifacts WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "LIST", "list "+kind+" artifacts", err)
	}
	defer rows.Close()

	var ids []value.ID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, diag.Wrap(diag.CategoryStore, "LIST", "scan artifact row", err)
		}
		if len(raw) != len(value.ID{}) {
			return nil, diag.Newf(diag.CategoryStore, "CORRUPT", "malformed artifact identifier")
		}
		var id value.ID
		copy(id[:], raw)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "LIST", "iterate artifact rows", err)
	}
	return ids, nil
}

// PutValue stores an encoded value under its content identifier.
func (s *Store) PutValue(v *value.Value) (value.ID, error) {
	id := value.ContentID(v)
	return id, s.Put(id, KindValue, value.Encode(v))
}

// GetValue loads and decodes a stored value.
func (s *Store) GetValue(id value.ID) (*value.Value, error) {
	kind, data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if kind != KindValue {
		return nil, diag.Newf(diag.CategoryStore, "KIND", "artifact %s is a %s, not a value", id.Short(), kind)
	}
	v, err := value.Decode(data)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "CORRUPT", "decode value "+id.Short(), err)
	}
	return v, nil
}

// PutGraph stores an encoded graph under its content identifier.
func (s *Store) PutGraph(g *teg.Graph) (value.ID, error) {
	id := g.ContentID()
	return id, s.Put(id, KindGraph, teg.Encode(g))
}

// GetGraph loads and decodes a stored graph.
func (s *Store) GetGraph(id value.ID) (*teg.Graph, error) {
	kind, data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if kind != KindGraph {
		return nil, diag.Newf(diag.CategoryStore, "KIND", "artifact %s is a %s, not a graph", id.Short(), kind)
	}
	g, err := teg.Decode(data)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "CORRUPT", "decode graph "+id.Short(), err)
	}
	return g, nil
}

// TraceID derives the content identifier of an execution trace.
func TraceID(t effect.Trace) value.ID {
	return value.Digest("causality/trace", effect.EncodeTrace(t))
}

// PutTrace stores an encoded execution trace under its content
// identifier.
func (s *Store) PutTrace(t effect.Trace) (value.ID, error) {
	data := effect.EncodeTrace(t)
	id := value.Digest("causality/trace", data)
	return id, s.Put(id, KindTrace, data)
}

// GetTrace loads and decodes a stored execution trace.
func (s *Store) GetTrace(id value.ID) (effect.Trace, error) {
	kind, data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if kind != KindTrace {
		return nil, diag.Newf(diag.CategoryStore, "KIND", "artifact %s is a %s, not a trace", id.Short(), kind)
	}
	t, err := effect.DecodeTrace(data)
	if err != nil {
		return nil, diag.Wrap(diag.CategoryStore, "CORRUPT", "decode trace "+id.Short(), err)
	}
	return t, nil
}

// retry re-runs fn while sqlite reports the database as busy or
// locked. Contention windows under WAL are short, so a handful of
// attempts with a small backoff suffices.
func (s *Store) retry(fn func() error) error {
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		err = fn()
		if err == nil || !isContention(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

func isContention(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
