// Package fraudcases provides SQLite persistence for the fraud-case records
// surfaced by the console's reporting endpoints.
package fraudcases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Case is one reported fraud case.
type Case struct {
	ID           int64     `json:"id"`
	CaseID       string    `json:"case_id"`
	CustomerName string    `json:"customer_name"`
	CaseType     string    `json:"case_type"`
	Channel      string    `json:"channel"`
	Amount       float64   `json:"amount"`
	Status       string    `json:"status"`
	ReportedAt   time.Time `json:"reported_at"`
	Description  string    `json:"description"`
}

// Store provides SQLite persistence for fraud cases.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and runs migrations.
// WAL mode and a busy timeout are set for concurrent console reads.
func NewStore(dbPath string) (*Store, error) {
	// busy_timeout avoids "database locked" errors
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fraud_cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		case_id TEXT NOT NULL UNIQUE,
		customer_name TEXT NOT NULL,
		case_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		amount REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'investigating', 'resolved', 'closed')),
		reported_at TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_fraud_cases_status ON fraud_cases(status);
	CREATE INDEX IF NOT EXISTS idx_fraud_cases_reported_at ON fraud_cases(reported_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a new case. A zero ReportedAt is stamped with the current
// time.
func (s *Store) Insert(ctx context.Context, c Case) error {
	if c.ReportedAt.IsZero() {
		c.ReportedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO fraud_cases (case_id, customer_name, case_type, channel, amount, status, reported_at, description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.CaseID, c.CustomerName, c.CaseType, c.Channel, c.Amount, c.Status,
		c.ReportedAt.UTC().Format(time.RFC3339), c.Description,
	)
	if err != nil {
		return fmt.Errorf("insert fraud case: %w", err)
	}
	return nil
}

// List retrieves cases, newest first. A limit of 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Case, error) {
	query := `
	SELECT id, case_id, customer_name, case_type, channel, amount, status, reported_at, description
	FROM fraud_cases
	ORDER BY reported_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cases []Case
	for rows.Next() {
		c, err := scanCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Get retrieves a single case by its case ID. Returns nil without error when
// the case does not exist.
func (s *Store) Get(ctx context.Context, caseID string) (*Case, error) {
	query := `
	SELECT id, case_id, customer_name, case_type, channel, amount, status, reported_at, description
	FROM fraud_cases
	WHERE case_id = ?
	`

	c, err := scanCase(s.db.QueryRowContext(ctx, query, caseID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SummaryByStatus returns the number of cases per status.
func (s *Store) SummaryByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM fraud_cases GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	summary := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

// scanCase reads one row through the given Scan function.
func scanCase(scan func(dest ...any) error) (Case, error) {
	var c Case
	var reportedAt string

	if err := scan(&c.ID, &c.CaseID, &c.CustomerName, &c.CaseType, &c.Channel,
		&c.Amount, &c.Status, &reportedAt, &c.Description); err != nil {
		return Case{}, err
	}

	t, err := time.Parse(time.RFC3339, reportedAt)
	if err != nil {
		return Case{}, fmt.Errorf("parse reported_at: %w", err)
	}
	c.ReportedAt = t
	return c, nil
}

// Seed inserts a small set of demo cases when the table is empty, so a fresh
// deployment has dummy data to show. Idempotent.
func (s *Store) Seed(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fraud_cases`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	base := time.Now().UTC().Add(-30 * 24 * time.Hour)
	demo := []Case{
		{CaseID: "FC-1001", CustomerName: "Ramesh Iyer", CaseType: "upi_fraud", Channel: "upi", Amount: 14999, Status: "open", ReportedAt: base, Description: "Customer reports an unauthorized UPI collect request approved by mistake."},
		{CaseID: "FC-1002", CustomerName: "Sunita Rao", CaseType: "card_skimming", Channel: "atm", Amount: 42000, Status: "investigating", ReportedAt: base.Add(5 * 24 * time.Hour), Description: "Multiple ATM withdrawals after suspected skimming at a fuel station."},
		{CaseID: "FC-1003", CustomerName: "Arjun Mehta", CaseType: "phishing", Channel: "netbanking", Amount: 8750, Status: "resolved", ReportedAt: base.Add(9 * 24 * time.Hour), Description: "Credentials entered on a fake KYC-update page; funds moved out the same day."},
		{CaseID: "FC-1004", CustomerName: "Farida Khan", CaseType: "impersonation", Channel: "phone", Amount: 25000, Status: "open", ReportedAt: base.Add(14 * 24 * time.Hour), Description: "Caller posing as bank staff obtained an OTP for a fixed-deposit closure."},
		{CaseID: "FC-1005", CustomerName: "Vikram Singh", CaseType: "upi_fraud", Channel: "upi", Amount: 1999, Status: "closed", ReportedAt: base.Add(20 * 24 * time.Hour), Description: "Small-value QR swap at a market stall; merchant refunded after review."},
	}

	for _, c := range demo {
		if err := s.Insert(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
