// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shipping

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kargohat/assistant/services/assistant/textnorm"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed seed.sql
var seedSQL string

const movementLayout = "2006-01-02 15:04"

// Config configures a SQLite-backed store.
type Config struct {
	// Path is the database file. Ignored when InMemory is true.
	Path string

	// InMemory opens a private in-memory database. Useful for tests.
	InMemory bool

	// Seed loads the demo customers, orders, branches, tariff and invoices.
	Seed bool

	// Logger is optional. Defaults to slog.Default().
	Logger *slog.Logger
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on SQLite through database/sql.
//
// # Thread Safety
//
// Safe for concurrent use. The pool is capped at one connection, so SQLite
// sees writes strictly serialized.
type SQLiteStore struct {
	db     *sql.DB
	q      querier
	inTx   bool
	logger *slog.Logger
}

// Open opens the database, applies the schema and optionally seeds it.
//
// # Description
//
// Creates the parent directory for file databases. The schema is
// idempotent (CREATE ... IF NOT EXISTS) and the seed uses INSERT OR IGNORE,
// so reopening an existing database is safe.
//
// # Inputs
//
//   - ctx: Bounds schema creation and seeding.
//   - cfg: Store configuration. Path is required unless InMemory is set.
//
// # Outputs
//
//   - *SQLiteStore: Ready store. Caller must Close it.
//   - error: Non-nil if the database cannot be opened or migrated.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if !cfg.InMemory {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		dsn = cfg.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, q: db, logger: logger}
	if err := s.init(ctx, cfg.Seed); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("shipping store opened",
		slog.String("path", dsn),
		slog.Bool("seeded", cfg.Seed),
	)
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context, seed bool) error {
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	if seed {
		if _, err := s.db.ExecContext(ctx, seedSQL); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance commands and tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// InTx implements Store. Nested calls reuse the open transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	bound := &SQLiteStore{db: s.db, q: tx, inTx: true, logger: s.logger}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// Identity and customers
// =============================================================================

// FindParty implements Store.
func (s *SQLiteStore) FindParty(ctx context.Context, number, phone string) (*Party, error) {
	const query = `
		SELECT o.number, c.id, c.name,
		       CASE WHEN o.sender_id = c.id THEN 'sender' ELSE 'recipient' END
		FROM orders o
		JOIN customers c ON c.id = o.sender_id OR c.id = o.recipient_id
		WHERE (o.number = ?
		       OR o.number IN (SELECT order_number FROM tracking_numbers WHERE tracking_no = ?))
		  AND c.phone = ?
		ORDER BY CASE WHEN o.sender_id = c.id THEN 0 ELSE 1 END
		LIMIT 1`

	var p Party
	var role string
	number = strings.TrimSpace(number)
	err := s.q.QueryRowContext(ctx, query, number, number, phone).
		Scan(&p.OrderNumber, &p.CustomerID, &p.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find party for order: %w", err)
	}
	p.Role = Role(role)
	return &p, nil
}

// FindCustomerByPhone implements Store.
func (s *SQLiteStore) FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error) {
	var c Customer
	var pref string
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, phone, email, notification_pref FROM customers WHERE phone = ?`, phone).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &pref)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find customer by phone: %w", err)
	}
	c.NotificationPref = NotificationChannel(pref)
	return &c, nil
}

// UpdateNotificationPreference implements Store.
func (s *SQLiteStore) UpdateNotificationPreference(ctx context.Context, customerID int64, channel NotificationChannel) error {
	return s.execOne(ctx, "update notification preference",
		`UPDATE customers SET notification_pref = ? WHERE id = ?`, string(channel), customerID)
}

// UpdateRecipient implements Store.
//
// A name change renames the recipient in place, refused with
// ErrSharedRecipient when the customer appears on other orders. A phone
// change reassigns the order to the customer owning that phone, creating
// one when needed, so the previous recipient's record is left untouched.
func (s *SQLiteStore) UpdateRecipient(ctx context.Context, orderNumber string, field RecipientField, value string) error {
	if field != RecipientName && field != RecipientPhone {
		return fmt.Errorf("unknown recipient field %q", field)
	}
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLiteStore)
		var id int64
		var name, email string
		err := tx.q.QueryRowContext(ctx, `
			SELECT c.id, c.name, c.email FROM orders o
			JOIN customers c ON c.id = o.recipient_id
			WHERE o.number = ?`, orderNumber).Scan(&id, &name, &email)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update recipient: %w", ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read recipient: %w", err)
		}

		if field == RecipientName {
			return tx.renameRecipient(ctx, orderNumber, id, value)
		}

		var target int64
		err = tx.q.QueryRowContext(ctx, `SELECT id FROM customers WHERE phone = ?`, value).Scan(&target)
		if errors.Is(err, sql.ErrNoRows) {
			target, err = tx.insert(ctx, "insert recipient",
				`INSERT INTO customers (name, phone, email) VALUES (?, ?, ?)`, name, value, email)
		}
		if err != nil {
			return fmt.Errorf("resolve recipient phone: %w", err)
		}
		return tx.execOne(ctx, "reassign recipient",
			`UPDATE orders SET recipient_id = ? WHERE number = ?`, target, orderNumber)
	})
}

// renameRecipient renames the recipient in place when the customer has no
// other orders. Otherwise the rename is refused with ErrSharedRecipient.
func (s *SQLiteStore) renameRecipient(ctx context.Context, orderNumber string, customerID int64, name string) error {
	var others int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE (sender_id = ? OR recipient_id = ?) AND number <> ?`,
		customerID, customerID, orderNumber).Scan(&others)
	if err != nil {
		return fmt.Errorf("count recipient orders: %w", err)
	}
	if others > 0 {
		return ErrSharedRecipient
	}
	return s.execOne(ctx, "rename recipient", `UPDATE customers SET name = ? WHERE id = ?`, name, customerID)
}

// ErrSharedRecipient is returned when renaming a recipient would also
// rename them on other orders.
var ErrSharedRecipient = errors.New("recipient is linked to other orders")

// =============================================================================
// Shipments
// =============================================================================

// FindShipment implements Store.
func (s *SQLiteStore) FindShipment(ctx context.Context, number string) (*Shipment, error) {
	const query = `
		SELECT o.number,
		       COALESCE((SELECT t.tracking_no FROM tracking_numbers t
		                 WHERE t.order_number = o.number ORDER BY t.rowid DESC LIMIT 1), o.number),
		       o.contents, o.status, o.delivery_address, o.estimated_delivery, o.priority,
		       o.sender_id, snd.name, o.recipient_id, rcp.name,
		       COALESCE(o.destination_branch_id, 0)
		FROM orders o
		JOIN customers snd ON snd.id = o.sender_id
		JOIN customers rcp ON rcp.id = o.recipient_id
		WHERE o.number = ?
		   OR o.number IN (SELECT order_number FROM tracking_numbers WHERE tracking_no = ?)
		LIMIT 1`

	var sh Shipment
	var status, eta string
	number = strings.TrimSpace(number)
	err := s.q.QueryRowContext(ctx, query, number, number).Scan(
		&sh.OrderNumber, &sh.TrackingNumber, &sh.Contents, &status, &sh.DeliveryAddress, &eta,
		&sh.Priority, &sh.SenderID, &sh.SenderName, &sh.RecipientID, &sh.RecipientName,
		&sh.DestinationBranchID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find shipment: %w", err)
	}
	if sh.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if sh.EstimatedDelivery, err = time.Parse(DateLayout, eta); err != nil {
		return nil, fmt.Errorf("parse estimated delivery %q: %w", eta, err)
	}
	return &sh, nil
}

// UpdateStatus implements Store. The transition is checked against the
// current status within one transaction.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, orderNumber string, to Status) error {
	return s.InTx(ctx, func(st Store) error {
		tx := st.(*SQLiteStore)
		var current string
		err := tx.q.QueryRowContext(ctx, `SELECT status FROM orders WHERE number = ?`, orderNumber).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read status: %w", err)
		}
		if !Status(current).CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, to)
		}
		return tx.execOne(ctx, "update status", `UPDATE orders SET status = ? WHERE number = ?`, string(to), orderNumber)
	})
}

// ErrInvalidTransition is returned when a status update violates the
// shipment state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// UpdateAddress implements Store.
func (s *SQLiteStore) UpdateAddress(ctx context.Context, orderNumber, address string) error {
	return s.execOne(ctx, "update address",
		`UPDATE orders SET delivery_address = ? WHERE number = ?`, address, orderNumber)
}

// UpdatePriority implements Store.
func (s *SQLiteStore) UpdatePriority(ctx context.Context, orderNumber string, priority int) error {
	return s.execOne(ctx, "update priority",
		`UPDATE orders SET priority = ? WHERE number = ?`, priority, orderNumber)
}

// UpdateEstimatedDelivery implements Store.
func (s *SQLiteStore) UpdateEstimatedDelivery(ctx context.Context, orderNumber string, date time.Time) error {
	return s.execOne(ctx, "update estimated delivery",
		`UPDATE orders SET estimated_delivery = ? WHERE number = ?`, date.Format(DateLayout), orderNumber)
}

// IssueTrackingNumber implements Store.
func (s *SQLiteStore) IssueTrackingNumber(ctx context.Context, orderNumber, trackingNumber string) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO tracking_numbers (tracking_no, order_number) VALUES (?, ?)`, trackingNumber, orderNumber)
	if err != nil {
		return fmt.Errorf("issue tracking number: %w", err)
	}
	return nil
}

// AppendMovement implements Store.
func (s *SQLiteStore) AppendMovement(ctx context.Context, m Movement) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO movements (order_number, occurred_at, location, kind, description) VALUES (?, ?, ?, ?, ?)`,
		m.OrderNumber, m.OccurredAt.Format(movementLayout), m.Location, m.Kind, m.Description)
	if err != nil {
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// LatestMovement implements Store.
func (s *SQLiteStore) LatestMovement(ctx context.Context, orderNumber string) (*Movement, error) {
	var m Movement
	var at string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, order_number, occurred_at, location, kind, description
		FROM movements WHERE order_number = ?
		ORDER BY occurred_at DESC, id DESC LIMIT 1`, orderNumber).
		Scan(&m.ID, &m.OrderNumber, &at, &m.Location, &m.Kind, &m.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest movement: %w", err)
	}
	if m.OccurredAt, err = time.Parse(movementLayout, at); err != nil {
		return nil, fmt.Errorf("parse movement time %q: %w", at, err)
	}
	return &m, nil
}

// =============================================================================
// Filings
// =============================================================================

// InsertComplaint implements Store.
func (s *SQLiteStore) InsertComplaint(ctx context.Context, c Complaint) (int64, error) {
	return s.insert(ctx, "insert complaint",
		`INSERT INTO complaints (order_number, customer_id, kind, subject, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.OrderNumber, c.CustomerID, c.Kind, c.Subject, c.Status, c.CreatedAt.Format(DateLayout))
}

// InsertReturn implements Store.
func (s *SQLiteStore) InsertReturn(ctx context.Context, r ReturnRequest) (int64, error) {
	return s.insert(ctx, "insert return",
		`INSERT INTO returns (order_number, customer_id, reason, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.OrderNumber, r.CustomerID, r.Reason, r.Status, r.CreatedAt.Format(DateLayout))
}

// InsertDamageReport implements Store.
func (s *SQLiteStore) InsertDamageReport(ctx context.Context, d DamageReport) (int64, error) {
	return s.insert(ctx, "insert damage report",
		`INSERT INTO damage_reports (order_number, customer_id, damage_type, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		d.OrderNumber, d.CustomerID, d.DamageType, d.Status, d.CreatedAt.Format(DateLayout))
}

// InsertEscalation implements Store.
func (s *SQLiteStore) InsertEscalation(ctx context.Context, e Escalation) (int64, error) {
	return s.insert(ctx, "insert escalation",
		`INSERT INTO escalations (customer_id, name, phone, order_number, reason, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.CustomerID, e.Name, e.Phone, e.OrderNumber, e.Reason, e.Status, e.CreatedAt.Format(DateLayout))
}

// =============================================================================
// Reference data
// =============================================================================

// ActiveTariff implements Store.
func (s *SQLiteStore) ActiveTariff(ctx context.Context) (Tariff, error) {
	var t Tariff
	err := s.q.QueryRowContext(ctx, `
		SELECT short_km_rate, long_km_rate, base_fee, base_limit_desi,
		       short_extra_rate, long_extra_rate, threshold_km
		FROM tariffs WHERE active = 1 ORDER BY id DESC LIMIT 1`).
		Scan(&t.ShortKmRate, &t.LongKmRate, &t.BaseFee, &t.BaseLimitDesi,
			&t.ShortExtraRate, &t.LongExtraRate, &t.ThresholdKm)
	if errors.Is(err, sql.ErrNoRows) {
		return Tariff{}, ErrNotFound
	}
	if err != nil {
		return Tariff{}, fmt.Errorf("active tariff: %w", err)
	}
	return t, nil
}

const invoiceColumns = `id, customer_id, order_number, distance_km, desi, origin, destination, charged, issued_at`

// FindInvoice implements Store.
func (s *SQLiteStore) FindInvoice(ctx context.Context, invoiceID int64, orderNumber string) (*Invoice, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ? AND order_number = ?`, invoiceID, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	invoices, err := scanInvoices(rows)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ErrNotFound
	}
	return &invoices[0], nil
}

// FindInvoicesByOrder implements Store.
func (s *SQLiteStore) FindInvoicesByOrder(ctx context.Context, orderNumber string) ([]Invoice, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE order_number = ? ORDER BY id`, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("find invoices: %w", err)
	}
	return scanInvoices(rows)
}

func scanInvoices(rows *sql.Rows) ([]Invoice, error) {
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var issued string
		if err := rows.Scan(&inv.ID, &inv.CustomerID, &inv.OrderNumber, &inv.DistanceKm, &inv.Desi,
			&inv.Origin, &inv.Destination, &inv.Charged, &issued); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.IssuedAt, _ = time.Parse(DateLayout, issued)
		out = append(out, inv)
	}
	return out, rows.Err()
}

// ActiveCampaigns implements Store.
func (s *SQLiteStore) ActiveCampaigns(ctx context.Context) ([]Campaign, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, title, description FROM campaigns WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active campaigns: %w", err)
	}
	defer rows.Close()
	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Title, &c.Description); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllBranches implements Store.
func (s *SQLiteStore) AllBranches(ctx context.Context) ([]Branch, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, city, district, address, phone, hours FROM branches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()
	var out []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.City, &b.District, &b.Address, &b.Phone, &b.Hours); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindBranches implements Store. Matching is done on folded text because
// SQLite's LIKE only folds ASCII case.
func (s *SQLiteStore) FindBranches(ctx context.Context, locality string) ([]Branch, error) {
	all, err := s.AllBranches(ctx)
	if err != nil {
		return nil, err
	}
	key := textnorm.Fold(locality)
	if key == "" {
		return nil, nil
	}
	var out []Branch
	for _, b := range all {
		for _, field := range []string{b.Name, b.City, b.District} {
			f := textnorm.Fold(field)
			if strings.Contains(f, key) || strings.Contains(key, f) {
				out = append(out, b)
				break
			}
		}
	}
	return out, nil
}

// FindBranch implements Store.
func (s *SQLiteStore) FindBranch(ctx context.Context, id int64) (*Branch, error) {
	var b Branch
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, city, district, address, phone, hours FROM branches WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.City, &b.District, &b.Address, &b.Phone, &b.Hours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find branch: %w", err)
	}
	return &b, nil
}

// =============================================================================
// Helpers
// =============================================================================

// execOne runs an update that must touch exactly one row.
func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) insert(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

var _ Store = (*SQLiteStore)(nil)
