package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/divyang-garg/docxtract/internal/docerrors"
	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/metrics"
)

// Schema is the DDL the store expects to already exist (migrations are
// an operational concern, not this package's). Kept here so the shape
// backing the JSON columns below is visible in one place.
const Schema = `
CREATE TABLE IF NOT EXISTS templates (
	id                    TEXT PRIMARY KEY,
	label                 TEXT NOT NULL,
	sample_count          INTEGER NOT NULL DEFAULT 0,
	structural_signature  JSONB NOT NULL,
	field_patterns        JSONB NOT NULL,
	field_confidence      JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS templates_label_idx ON templates (label);
`

// NewConnection opens a Postgres connection pool, grounded on the
// teacher's internal/repository/database.go connection settings.
func NewConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.NewConnection", "failed to open database", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.NewConnection", "failed to ping database", err)
	}
	return db, nil
}

// Store is the Postgres-backed template store (spec.md §4.3). Writes
// are serialised per label; reads take no lock and always observe a
// committed row, never a torn one (spec.md §5).
type Store struct {
	db  *sql.DB
	log logging.Logger
	met *metrics.Registry

	perLabelCap int

	labelMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New wraps an already-connected *sql.DB. perLabelCap governs the
// per-label quota enforced by Upsert (spec.md §6 "template.max_per_label");
// perLabelCap<=0 falls back to DefaultPerLabelCap. log/met may be nil.
func New(db *sql.DB, perLabelCap int, met *metrics.Registry, log logging.Logger) *Store {
	if perLabelCap <= 0 {
		perLabelCap = DefaultPerLabelCap
	}
	if log == nil {
		log = logging.Nop()
	}
	if met == nil {
		met = metrics.Noop()
	}
	return &Store{db: db, perLabelCap: perLabelCap, log: log, met: met, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(label string) *sync.Mutex {
	s.labelMu.Lock()
	defer s.labelMu.Unlock()
	l, ok := s.locks[label]
	if !ok {
		l = &sync.Mutex{}
		s.locks[label] = l
	}
	return l
}

// List returns label's templates ordered by sample_count descending,
// then updated_at descending (spec.md §4.3).
func (s *Store) List(ctx context.Context, label string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, sample_count, structural_signature, field_patterns, field_confidence, created_at, updated_at
		FROM templates
		WHERE label = $1
		ORDER BY sample_count DESC, updated_at DESC`, label)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.List", "failed to query templates", err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, docerrors.Wrap(docerrors.KindPersistence, "template.List", "failed to scan template", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.List", "error iterating templates", err)
	}
	return out, nil
}

// Get fetches a single template by (label, id).
func (s *Store) Get(ctx context.Context, label, id string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, sample_count, structural_signature, field_patterns, field_confidence, created_at, updated_at
		FROM templates WHERE label = $1 AND id = $2`, label, id)

	t, err := scanTemplate(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, docerrors.New(docerrors.KindInternal, "template.Get", fmt.Sprintf("template %s/%s not found", label, id))
		}
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.Get", "failed to get template", err)
	}
	return t, nil
}

// Upsert atomically inserts or replaces tmpl by id, serialised against
// other writers for the same label, and enforces the per-label cap
// (spec.md §5 quotas).
func (s *Store) Upsert(ctx context.Context, label string, tmpl *Template) error {
	lock := s.lockFor(label)
	lock.Lock()
	defer lock.Unlock()

	if tmpl.ID == "" {
		tmpl.ID = uuid.NewString()
	}
	tmpl.Label = label
	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	sig, err := json.Marshal(tmpl.StructuralSignature)
	if err != nil {
		return docerrors.Wrap(docerrors.KindInternal, "template.Upsert", "failed to marshal structural signature", err)
	}
	patterns, err := json.Marshal(tmpl.FieldPatterns)
	if err != nil {
		return docerrors.Wrap(docerrors.KindInternal, "template.Upsert", "failed to marshal field patterns", err)
	}
	confidence, err := json.Marshal(tmpl.FieldConfidence)
	if err != nil {
		return docerrors.Wrap(docerrors.KindInternal, "template.Upsert", "failed to marshal field confidence", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (id, label, sample_count, structural_signature, field_patterns, field_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			sample_count = EXCLUDED.sample_count,
			structural_signature = EXCLUDED.structural_signature,
			field_patterns = EXCLUDED.field_patterns,
			field_confidence = EXCLUDED.field_confidence,
			updated_at = EXCLUDED.updated_at`,
		tmpl.ID, label, tmpl.SampleCount, sig, patterns, confidence, tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		return docerrors.Wrap(docerrors.KindPersistence, "template.Upsert", "failed to upsert template", err)
	}

	s.met.TemplateCount.WithLabelValues(label).Set(float64(s.countLabelLocked(ctx, label)))
	return s.evictOverCapLocked(ctx, label)
}

// Delete removes a template by (label, id).
func (s *Store) Delete(ctx context.Context, label, id string) error {
	lock := s.lockFor(label)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE label = $1 AND id = $2`, label, id)
	if err != nil {
		return docerrors.Wrap(docerrors.KindPersistence, "template.Delete", "failed to delete template", err)
	}
	return nil
}

// CountPerLabel reports how many templates are stored per label.
func (s *Store) CountPerLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, COUNT(*) FROM templates GROUP BY label`)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.KindPersistence, "template.CountPerLabel", "failed to count templates", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, docerrors.Wrap(docerrors.KindPersistence, "template.CountPerLabel", "failed to scan count", err)
		}
		out[label] = count
	}
	return out, rows.Err()
}

func (s *Store) countLabelLocked(ctx context.Context, label string) int {
	var n int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE label = $1`, label).Scan(&n)
	return n
}

// evictOverCapLocked drops the lowest-confidence, lowest-sample-count
// template(s) for label until it is at or under s.perLabelCap. Caller
// must hold the per-label lock.
func (s *Store) evictOverCapLocked(ctx context.Context, label string) error {
	all, err := s.List(ctx, label)
	if err != nil {
		return err
	}
	if len(all) <= s.perLabelCap {
		return nil
	}

	sort.Slice(all, func(i, j int) bool {
		ci, cj := meanConfidence(all[i]), meanConfidence(all[j])
		if ci != cj {
			return ci < cj
		}
		return all[i].SampleCount < all[j].SampleCount
	})

	toEvict := all[:len(all)-s.perLabelCap]
	for _, t := range toEvict {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE label = $1 AND id = $2`, label, t.ID); err != nil {
			return docerrors.Wrap(docerrors.KindPersistence, "template.evictOverCapLocked", "failed to evict template", err)
		}
		s.log.Info("evicted template over per-label cap", "label", label, "template_id", t.ID)
	}
	return nil
}

func meanConfidence(t *Template) float64 {
	if len(t.FieldConfidence) == 0 {
		return 0
	}
	var sum float64
	for _, c := range t.FieldConfidence {
		sum += c
	}
	return sum / float64(len(t.FieldConfidence))
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row scanner) (*Template, error) {
	var t Template
	var sig, patterns, confidence []byte

	if err := row.Scan(&t.ID, &t.Label, &t.SampleCount, &sig, &patterns, &confidence, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sig, &t.StructuralSignature); err != nil {
		return nil, fmt.Errorf("failed to unmarshal structural_signature: %w", err)
	}
	if err := json.Unmarshal(patterns, &t.FieldPatterns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field_patterns: %w", err)
	}
	if err := json.Unmarshal(confidence, &t.FieldConfidence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field_confidence: %w", err)
	}
	return &t, nil
}
