package invoice

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Postgres driver
)

// postgresSchema is applied on startup. Line items and metadata are stored
// as JSONB documents; the columns queried for reports are first-class.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS invoices (
	id             TEXT PRIMARY KEY,
	phone          TEXT NOT NULL DEFAULT '',
	document       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS invoices_phone_idx ON invoices (phone);

CREATE TABLE IF NOT EXISTS billing_metrics (
	phone            TEXT PRIMARY KEY,
	invoices_created INTEGER NOT NULL DEFAULT 0,
	scans            INTEGER NOT NULL DEFAULT 0,
	pdfs_generated   INTEGER NOT NULL DEFAULT 0
);
`

// PostgresDB implements the DB interface on Postgres via sqlx
type PostgresDB struct {
	db *sqlx.DB
}

// NewPostgresDB connects to Postgres and ensures the schema exists
func NewPostgresDB(dsn string) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &PostgresDB{db: db}, nil
}

// SaveInvoice saves an invoice to the database
func (p *PostgresDB) SaveInvoice(inv *Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}
	_, err = p.db.Exec(`
		INSERT INTO invoices (id, phone, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET phone = EXCLUDED.phone, document = EXCLUDED.document`,
		inv.ID, inv.Phone, data)
	if err != nil {
		return fmt.Errorf("saving invoice: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by ID
func (p *PostgresDB) GetInvoice(id string) (*Invoice, error) {
	var data []byte
	err := p.db.Get(&data, `SELECT document FROM invoices WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying invoice: %w", err)
	}
	var inv Invoice
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice: %w", err)
	}
	return &inv, nil
}

// ListInvoices returns all invoices
func (p *PostgresDB) ListInvoices() ([]*Invoice, error) {
	return p.listWhere(`SELECT document FROM invoices`)
}

// ListInvoicesByPhone returns all invoices owned by a phone number
func (p *PostgresDB) ListInvoicesByPhone(phone string) ([]*Invoice, error) {
	return p.listWhere(`SELECT document FROM invoices WHERE phone = $1`, phone)
}

func (p *PostgresDB) listWhere(query string, args ...interface{}) ([]*Invoice, error) {
	var rows [][]byte
	if err := p.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying invoices: %w", err)
	}
	invoices := make([]*Invoice, 0, len(rows))
	for _, data := range rows {
		var inv Invoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, fmt.Errorf("unmarshaling invoice: %w", err)
		}
		invoices = append(invoices, &inv)
	}
	return invoices, nil
}

// DeleteInvoice removes an invoice from the database
func (p *PostgresDB) DeleteInvoice(id string) error {
	if _, err := p.db.Exec(`DELETE FROM invoices WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting invoice: %w", err)
	}
	return nil
}

// IncrementMetric bumps a per-user usage counter
func (p *PostgresDB) IncrementMetric(phone string, metric string) error {
	var column string
	switch metric {
	case "invoices_created":
		column = "invoices_created"
	case "scans":
		column = "scans"
	case "pdfs_generated":
		column = "pdfs_generated"
	default:
		// Unknown metrics are ignored
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO billing_metrics (phone, %s) VALUES ($1, 1)
		ON CONFLICT (phone) DO UPDATE SET %s = billing_metrics.%s + 1`,
		column, column, column)
	if _, err := p.db.Exec(query, phone); err != nil {
		return fmt.Errorf("incrementing metric: %w", err)
	}
	return nil
}

// GetMetrics reads per-user usage counters
func (p *PostgresDB) GetMetrics(phone string) (*Metrics, error) {
	metrics := &Metrics{}
	err := p.db.QueryRow(`
		SELECT invoices_created, scans, pdfs_generated
		FROM billing_metrics WHERE phone = $1`, phone).
		Scan(&metrics.InvoicesCreated, &metrics.Scans, &metrics.PDFsGenerated)
	if errors.Is(err, sql.ErrNoRows) {
		return metrics, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	return metrics, nil
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	return p.db.Close()
}
