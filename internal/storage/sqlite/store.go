// Package sqlite implements storage interfaces on an embedded SQLite
// database. It suits single-host deployments where running MongoDB is
// not worth the operational weight.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/sirosfoundation/go-etims/internal/storage"
	"github.com/sirosfoundation/go-etims/pkg/fiscal"
	"github.com/sirosfoundation/go-etims/pkg/sequence"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Config holds SQLite settings.
type Config struct {
	Path string
}

// NewStore opens (creating if necessary) the database at cfg.Path.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("sqlite: path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DocumentStore implementation

func (s *Store) CreateDocument(ctx context.Context, doc *fiscal.Document) error {
	return s.writeDocument(ctx, doc, false)
}

func (s *Store) UpdateDocument(ctx context.Context, doc *fiscal.Document) error {
	return s.writeDocument(ctx, doc, true)
}

func (s *Store) writeDocument(ctx context.Context, doc *fiscal.Document, upsert bool) error {
	lines, err := json.Marshal(doc.Lines)
	if err != nil {
		return fmt.Errorf("encoding lines: %w", err)
	}
	validations, err := json.Marshal(doc.Validations)
	if err != nil {
		return fmt.Errorf("encoding validations: %w", err)
	}

	query := `INSERT INTO documents
		(id, kind, number, status, counterparty_tin, counterparty_name,
		 currency, lines, issued_at, validations, receipt_number,
		 receipt_signature, confirmed_at, internal_data, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if upsert {
		query += ` ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, number=excluded.number, status=excluded.status,
			counterparty_tin=excluded.counterparty_tin,
			counterparty_name=excluded.counterparty_name,
			currency=excluded.currency, lines=excluded.lines,
			issued_at=excluded.issued_at, validations=excluded.validations,
			receipt_number=excluded.receipt_number,
			receipt_signature=excluded.receipt_signature,
			confirmed_at=excluded.confirmed_at,
			internal_data=excluded.internal_data, last_error=excluded.last_error`
	}

	_, err = s.db.ExecContext(ctx, query,
		doc.ID, string(doc.Kind), doc.Number, string(doc.Status),
		doc.Counterparty.TIN, doc.Counterparty.Name, doc.Currency,
		string(lines), unixOrZero(doc.IssuedAt), string(validations),
		doc.ReceiptNumber, doc.ReceiptSignature, unixOrZero(doc.ConfirmedAt),
		doc.InternalData, doc.LastError)
	return err
}

func (s *Store) GetDocument(ctx context.Context, id string) (*fiscal.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, kind, number, status, counterparty_tin, counterparty_name,
		currency, lines, issued_at, validations, receipt_number,
		receipt_signature, confirmed_at, internal_data, last_error
		FROM documents WHERE id = ?`, id)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return doc, err
}

func (s *Store) ListDocuments(ctx context.Context, filter *storage.DocumentFilter) ([]*fiscal.Document, error) {
	query := `SELECT
		id, kind, number, status, counterparty_tin, counterparty_name,
		currency, lines, issued_at, validations, receipt_number,
		receipt_signature, confirmed_at, internal_data, last_error
		FROM documents WHERE 1=1`
	var args []any
	if filter != nil {
		if filter.Kind != "" {
			query += " AND kind = ?"
			args = append(args, string(filter.Kind))
		}
		if filter.Status != "" {
			query += " AND status = ?"
			args = append(args, string(filter.Status))
		}
	}
	query += " ORDER BY id"
	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter != nil && filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*fiscal.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*fiscal.Document, error) {
	var (
		doc         fiscal.Document
		kind        string
		status      string
		lines       string
		validations string
		issuedAt    int64
		confirmedAt int64
	)
	err := row.Scan(&doc.ID, &kind, &doc.Number, &status,
		&doc.Counterparty.TIN, &doc.Counterparty.Name, &doc.Currency,
		&lines, &issuedAt, &validations, &doc.ReceiptNumber,
		&doc.ReceiptSignature, &confirmedAt, &doc.InternalData, &doc.LastError)
	if err != nil {
		return nil, err
	}
	doc.Kind = fiscal.DocumentKind(kind)
	doc.Status = fiscal.Status(status)
	doc.IssuedAt = timeOrZero(issuedAt)
	doc.ConfirmedAt = timeOrZero(confirmedAt)
	if err := json.Unmarshal([]byte(lines), &doc.Lines); err != nil {
		return nil, fmt.Errorf("decoding lines: %w", err)
	}
	if err := json.Unmarshal([]byte(validations), &doc.Validations); err != nil {
		return nil, fmt.Errorf("decoding validations: %w", err)
	}
	return &doc, nil
}

// ResultStore implementation

func (s *Store) RecordResult(ctx context.Context, result *fiscal.TransmissionResult) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO transmission_results
		(id, outcome, device_id, document_id, number, receipt_number,
		 receipt_signature, confirmed_at, internal_data, code, message,
		 hint, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, string(result.Outcome), result.DeviceID, result.DocumentID,
		result.Number, result.ReceiptNumber, result.ReceiptSignature,
		unixOrZero(result.ConfirmedAt), result.InternalData, result.Code,
		result.Message, result.Hint, result.AttemptedAt.UnixNano())
	return err
}

func (s *Store) ListResults(ctx context.Context, documentID string) ([]*fiscal.TransmissionResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, outcome, device_id, document_id, number, receipt_number,
		receipt_signature, confirmed_at, internal_data, code, message,
		hint, attempted_at
		FROM transmission_results WHERE document_id = ?
		ORDER BY attempted_at`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*fiscal.TransmissionResult
	for rows.Next() {
		var (
			r           fiscal.TransmissionResult
			outcome     string
			confirmedAt int64
			attemptedAt int64
		)
		err := rows.Scan(&r.ID, &outcome, &r.DeviceID, &r.DocumentID,
			&r.Number, &r.ReceiptNumber, &r.ReceiptSignature, &confirmedAt,
			&r.InternalData, &r.Code, &r.Message, &r.Hint, &attemptedAt)
		if err != nil {
			return nil, err
		}
		r.Outcome = fiscal.Outcome(outcome)
		r.ConfirmedAt = timeOrZero(confirmedAt)
		r.AttemptedAt = time.Unix(0, attemptedAt)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// CounterStore implementation

func (s *Store) GetCounter(ctx context.Context, scope sequence.Scope) (*sequence.Counter, error) {
	counter := &sequence.Counter{Scope: scope}
	err := s.db.QueryRowContext(ctx,
		`SELECT next, pending FROM counters WHERE device_id = ? AND kind = ?`,
		scope.DeviceID, string(scope.Kind)).Scan(&counter.Next, &counter.Pending)
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown scope starts a fresh counter
		return counter, nil
	}
	if err != nil {
		return nil, err
	}
	return counter, nil
}

func (s *Store) SaveCounter(ctx context.Context, counter *sequence.Counter) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO counters
		(device_id, kind, next, pending) VALUES (?, ?, ?, ?)
		ON CONFLICT(device_id, kind) DO UPDATE SET
		next=excluded.next, pending=excluded.pending`,
		counter.Scope.DeviceID, string(counter.Scope.Kind),
		counter.Next, counter.Pending)
	return err
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func timeOrZero(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
