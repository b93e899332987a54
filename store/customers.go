package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/use-agent/tukibridge/models"
)

// Status is the subscription state derived from a customer's expiry date.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
)

// expiringWithin is how many days before expiry a customer counts as expiring.
const expiringWithin = 3

// Customer is one row of the customers table.
type Customer struct {
	ID        int64
	Email     string // empty when the customer has no email
	Phone     string
	Expiry    *time.Time // date only; nil means no expiry
	Notes     string
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Status evaluates the customer's status on the given day.
func (c *Customer) Status(today time.Time) Status {
	return EvaluateStatus(c.Expiry, today)
}

// DaysRemaining returns whole days until expiry, or nil without an expiry.
func (c *Customer) DaysRemaining(today time.Time) *int {
	if c.Expiry == nil {
		return nil
	}
	d := daysBetween(today, *c.Expiry)
	return &d
}

// EvaluateStatus maps an expiry date to a Status relative to today.
func EvaluateStatus(expiry *time.Time, today time.Time) Status {
	if expiry == nil {
		return StatusActive
	}
	delta := daysBetween(today, *expiry)
	switch {
	case delta < 0:
		return StatusExpired
	case delta <= expiringWithin:
		return StatusExpiring
	default:
		return StatusActive
	}
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// CustomerInput carries the editable fields of a customer.
type CustomerInput struct {
	Email  string
	Phone  string
	Expiry string // YYYY-MM-DD or empty
	Notes  string
}

// ListFilter narrows ListCustomers.
type ListFilter struct {
	// Query matches email, phone or notes case-insensitively.
	Query string

	// Status keeps only customers in this status on Today. Empty keeps all.
	Status Status

	Today time.Time
}

// ImportResult summarises ImportEmails.
type ImportResult struct {
	Added   int
	Skipped int
	Invalid int
}

// Stats summarises the customer base.
type Stats struct {
	Total       int
	Active      int
	Expiring    int
	Expired     int
	RenewalRate float64 // percent of customers updated in the last 30 days
}

type customerFields struct {
	email  sql.NullString
	phone  string
	expiry sql.NullString
	notes  string
}

func (in CustomerInput) validate(requirePhone bool) (customerFields, error) {
	var f customerFields

	f.phone = strings.TrimSpace(in.Phone)
	if requirePhone && f.phone == "" {
		return f, ErrPhoneRequired
	}

	if email := models.NormalizeEmail(in.Email); email != "" {
		if !models.ValidEmail(email) {
			return f, ErrInvalidEmail
		}
		f.email = sql.NullString{String: email, Valid: true}
	}

	if v := strings.TrimSpace(in.Expiry); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, ErrInvalidExpiry
		}
		f.expiry = sql.NullString{String: d.Format(dateLayout), Valid: true}
	}

	f.notes = strings.TrimSpace(in.Notes)
	return f, nil
}

// CreateCustomer inserts a customer. Phone is required; email is optional but
// must be valid and unique.
func (s *Store) CreateCustomer(ctx context.Context, in CustomerInput) (*Customer, error) {
	f, err := in.validate(true)
	if err != nil {
		return nil, err
	}
	if f.email.Valid {
		if err := s.ensureEmailFree(ctx, f.email.String, 0); err != nil {
			return nil, err
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (email, phone, expiry_date, notes, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.email, f.phone, f.expiry, f.notes, s.now().UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return s.GetCustomer(ctx, id)
}

// UpdateCustomer replaces the editable fields of customer id.
func (s *Store) UpdateCustomer(ctx context.Context, id int64, in CustomerInput) (*Customer, error) {
	f, err := in.validate(false)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	if f.email.Valid {
		if err := s.ensureEmailFree(ctx, f.email.String, id); err != nil {
			return nil, err
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE customers SET email = ?, phone = ?, expiry_date = ?, notes = ?, updated_at = ? WHERE id = ?`,
		f.email, f.phone, f.expiry, f.notes, s.now().UTC().Format(timeLayout), id)
	if err != nil {
		return nil, fmt.Errorf("update customer %d: %w", id, err)
	}
	return s.GetCustomer(ctx, id)
}

func (s *Store) ensureEmailFree(ctx context.Context, email string, exceptID int64) error {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM customers WHERE lower(email) = ? AND id != ? LIMIT 1`, email, exceptID).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check email: %w", err)
	default:
		return ErrDuplicateEmail
	}
}

// DeleteCustomer removes customer id.
func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete customer %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkDelete removes every listed customer and returns how many existed.
func (s *Store) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk delete: %w", err)
	}
	return int(n), nil
}

const customerColumns = `id, email, phone, expiry_date, notes, created_at, updated_at`

// GetCustomer loads customer id.
func (s *Store) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, id)
	return scanCustomer(row)
}

// FindByEmail looks a customer up by email, case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*Customer, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE lower(email) = ? ORDER BY id LIMIT 1`, email)
	return scanCustomer(row)
}

// FindByPhone returns the first customer holding phone. Comparison ignores
// case and spaces.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*Customer, error) {
	phone = models.NormalizePhone(phone)
	if phone == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE lower(replace(phone, ' ', '')) = lower(?) ORDER BY id LIMIT 1`, phone)
	return scanCustomer(row)
}

// ListCustomers returns customers newest first, narrowed by filter.
func (s *Store) ListCustomers(ctx context.Context, filter ListFilter) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	var args []any
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		query += ` WHERE lower(coalesce(email, '')) LIKE ? OR lower(phone) LIKE ? OR lower(notes) LIKE ?`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	today := filter.Today
	if today.IsZero() {
		today = s.now()
	}

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && c.Status(today) != filter.Status {
			continue
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// PhoneEmailCounts returns how many customers share each normalised phone.
func (s *Store) PhoneEmailCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT phone, count(id) FROM customers WHERE phone != '' GROUP BY phone`)
	if err != nil {
		return nil, fmt.Errorf("phone counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			phone string
			n     int
		)
		if err := rows.Scan(&phone, &n); err != nil {
			return nil, fmt.Errorf("phone counts: %w", err)
		}
		if p := models.NormalizePhone(phone); p != "" {
			counts[p] += n
		}
	}
	return counts, rows.Err()
}

// ImportEmails adds one email-only customer per line. Blank lines are
// ignored; repeats within the input and emails already stored are skipped;
// malformed lines are counted as invalid.
func (s *Store) ImportEmails(ctx context.Context, lines []string) (ImportResult, error) {
	var result ImportResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("import: %w", err)
	}
	defer tx.Rollback()

	created := s.now().UTC().Format(timeLayout)
	seen := make(map[string]struct{})
	for _, line := range lines {
		email := models.NormalizeEmail(line)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			result.Skipped++
			continue
		}
		seen[email] = struct{}{}

		if !models.ValidEmail(email) {
			result.Invalid++
			continue
		}

		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM customers WHERE lower(email) = ? LIMIT 1`, email).Scan(&id)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return ImportResult{}, fmt.Errorf("import %s: %w", email, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO customers (email, created_at) VALUES (?, ?)`, email, created); err != nil {
			return ImportResult{}, fmt.Errorf("import %s: %w", email, err)
		}
		result.Added++
	}

	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	return result, nil
}

// Stats counts customers by status on today. RenewalRate is the share of
// customers updated within the last 30 days, rounded to one decimal.
func (s *Store) Stats(ctx context.Context, today time.Time) (Stats, error) {
	var st Stats

	rows, err := s.db.QueryContext(ctx, `SELECT expiry_date, updated_at FROM customers`)
	if err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	cutoff := today.Add(-30 * 24 * time.Hour)
	recent := 0
	for rows.Next() {
		var expiry, updated sql.NullString
		if err := rows.Scan(&expiry, &updated); err != nil {
			return st, fmt.Errorf("stats: %w", err)
		}
		st.Total++

		exp, err := parseDate(expiry)
		if err != nil {
			return st, err
		}
		switch EvaluateStatus(exp, today) {
		case StatusExpired:
			st.Expired++
		case StatusExpiring:
			st.Expiring++
		default:
			st.Active++
		}

		if updated.Valid {
			if t, err := time.Parse(timeLayout, updated.String); err == nil && !t.Before(cutoff) {
				recent++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}

	if st.Total > 0 {
		st.RenewalRate = math.Round(float64(recent)/float64(st.Total)*1000) / 10
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (*Customer, error) {
	var (
		c                Customer
		email, expiry    sql.NullString
		created, updated sql.NullString
	)
	if err := row.Scan(&c.ID, &email, &c.Phone, &expiry, &c.Notes, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	c.Email = email.String

	exp, err := parseDate(expiry)
	if err != nil {
		return nil, err
	}
	c.Expiry = exp

	if created.Valid {
		c.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	if updated.Valid {
		if t, err := time.Parse(timeLayout, updated.String); err == nil {
			c.UpdatedAt = &t
		}
	}
	return &c, nil
}

func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, v.String)
	if err != nil {
		return nil, fmt.Errorf("stored expiry %q: %w", v.String, err)
	}
	return &d, nil
}
