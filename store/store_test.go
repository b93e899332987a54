package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "tuki.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return day }
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"customers", "fetch_log"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_Memory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CreateCustomer(context.Background(), CustomerInput{Phone: "0901"})
	assert.NoError(t, err)
}

func TestCreateCustomer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, CustomerInput{
		Email:  "  Alice@Example.COM ",
		Phone:  " 0901 234 567 ",
		Expiry: "2025-03-07",
		Notes:  " vip ",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", c.Email)
	assert.Equal(t, "0901 234 567", c.Phone)
	assert.Equal(t, "vip", c.Notes)
	require.NotNil(t, c.Expiry)
	assert.Equal(t, "2025-03-07", c.Expiry.Format(dateLayout))
	assert.Equal(t, day, c.CreatedAt)
	assert.Nil(t, c.UpdatedAt)
	assert.Equal(t, StatusExpiring, c.Status(day))
	assert.Equal(t, 2, *c.DaysRemaining(day))

	_, err = s.CreateCustomer(ctx, CustomerInput{Email: "ALICE@example.com", Phone: "1"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = s.CreateCustomer(ctx, CustomerInput{Email: "bob@example.com"})
	assert.ErrorIs(t, err, ErrPhoneRequired)

	_, err = s.CreateCustomer(ctx, CustomerInput{Email: "not-an-email", Phone: "1"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = s.CreateCustomer(ctx, CustomerInput{Phone: "1", Expiry: "07/03/2025"})
	assert.ErrorIs(t, err, ErrInvalidExpiry)
}

func TestCreateCustomer_EmailOptional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Several phone-only customers must not collide on the unique email column.
	for range 2 {
		c, err := s.CreateCustomer(ctx, CustomerInput{Phone: "0901"})
		require.NoError(t, err)
		assert.Empty(t, c.Email)
		assert.Equal(t, StatusActive, c.Status(day))
	}
}

func TestUpdateCustomer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreateCustomer(ctx, CustomerInput{Email: "a@x.io", Phone: "1"})
	require.NoError(t, err)
	_, err = s.CreateCustomer(ctx, CustomerInput{Email: "b@x.io", Phone: "2"})
	require.NoError(t, err)

	updated, err := s.UpdateCustomer(ctx, a.ID, CustomerInput{Email: "A@X.IO", Phone: "9", Expiry: "2025-01-01"})
	require.NoError(t, err, "keeping its own email is not a duplicate")
	assert.Equal(t, "9", updated.Phone)
	assert.Equal(t, StatusExpired, updated.Status(day))
	require.NotNil(t, updated.UpdatedAt)

	_, err = s.UpdateCustomer(ctx, a.ID, CustomerInput{Email: "b@x.io", Phone: "9"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = s.UpdateCustomer(ctx, 999, CustomerInput{Phone: "9"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAndBulkDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		c, err := s.CreateCustomer(ctx, CustomerInput{Email: email, Phone: "1"})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}

	require.NoError(t, s.DeleteCustomer(ctx, ids[0]))
	assert.ErrorIs(t, s.DeleteCustomer(ctx, ids[0]), ErrNotFound)

	n, err := s.BulkDelete(ctx, []int64{ids[0], ids[1], ids[2], 12345})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.BulkDelete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetCustomer(ctx, ids[2])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByEmailAndPhone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCustomer(ctx, CustomerInput{Email: "a@x.io", Phone: "ABC123"})
	require.NoError(t, err)

	c, err := s.FindByEmail(ctx, " A@X.io ")
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", c.Email)

	c, err = s.FindByPhone(ctx, "abc 123")
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", c.Email)

	_, err = s.FindByEmail(ctx, "nobody@x.io")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByPhone(ctx, "   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCustomers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := []CustomerInput{
		{Email: "active@x.io", Phone: "111", Expiry: "2025-04-01"},
		{Email: "soon@x.io", Phone: "222", Expiry: "2025-03-06", Notes: "Family plan"},
		{Email: "gone@x.io", Phone: "333", Expiry: "2025-03-04"},
	}
	for _, in := range seed {
		_, err := s.CreateCustomer(ctx, in)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all newest first", ListFilter{}, []string{"gone@x.io", "soon@x.io", "active@x.io"}},
		{"query notes", ListFilter{Query: "FAMILY"}, []string{"soon@x.io"}},
		{"query phone", ListFilter{Query: "33"}, []string{"gone@x.io"}},
		{"expired", ListFilter{Status: StatusExpired, Today: day}, []string{"gone@x.io"}},
		{"expiring", ListFilter{Status: StatusExpiring, Today: day}, []string{"soon@x.io"}},
		{"no match", ListFilter{Query: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListCustomers(ctx, tt.filter)
			require.NoError(t, err)
			var emails []string
			for _, c := range got {
				emails = append(emails, c.Email)
			}
			assert.Equal(t, tt.want, emails)
		})
	}
}

func TestPhoneEmailCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, in := range []CustomerInput{
		{Email: "a@x.io", Phone: "0901 111"},
		{Email: "b@x.io", Phone: "0901111"},
		{Email: "c@x.io", Phone: "0902"},
	} {
		_, err := s.CreateCustomer(ctx, in)
		require.NoError(t, err)
	}
	_, err := s.ImportEmails(ctx, []string{"d@x.io"})
	require.NoError(t, err)

	counts, err := s.PhoneEmailCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"0901111": 2, "0902": 1}, counts)
}

func TestImportEmails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.CreateCustomer(ctx, CustomerInput{Email: "known@x.io", Phone: "1"})
	require.NoError(t, err)

	res, err := s.ImportEmails(ctx, []string{
		"new@x.io",
		"",
		"  NEW@x.io ",
		"known@x.io",
		"broken",
		"broken",
		"other@x.io",
	})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 2, Skipped: 3, Invalid: 1}, res)

	c, err := s.FindByEmail(ctx, "other@x.io")
	require.NoError(t, err)
	assert.Empty(t, c.Phone)
	assert.Nil(t, c.Expiry)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	for _, in := range []CustomerInput{
		{Email: "a@x.io", Phone: "1"},
		{Email: "b@x.io", Phone: "2", Expiry: "2025-03-08"},
		{Email: "c@x.io", Phone: "3", Expiry: "2025-03-09"},
		{Email: "d@x.io", Phone: "4", Expiry: "2025-03-01"},
	} {
		_, err := s.CreateCustomer(ctx, in)
		require.NoError(t, err)
	}
	c, err := s.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	_, err = s.UpdateCustomer(ctx, c.ID, CustomerInput{Email: "a@x.io", Phone: "1"})
	require.NoError(t, err)

	st, err = s.Stats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Active: 2, Expiring: 1, Expired: 1, RenewalRate: 25}, st)
}

func TestEvaluateStatus(t *testing.T) {
	date := func(v string) *time.Time {
		d, err := time.Parse(dateLayout, v)
		require.NoError(t, err)
		return &d
	}
	tests := []struct {
		expiry *time.Time
		want   Status
	}{
		{nil, StatusActive},
		{date("2025-03-04"), StatusExpired},
		{date("2025-03-05"), StatusExpiring},
		{date("2025-03-08"), StatusExpiring},
		{date("2025-03-09"), StatusActive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EvaluateStatus(tt.expiry, day))
	}
}

func TestLogFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.LogFetch(ctx, FetchLogEntry{
		Requester: "a@x.io", Target: "t@x.io", Kind: "login_code", Success: true, Code: "583920",
	}))
	require.NoError(t, s.LogFetch(ctx, FetchLogEntry{
		Requester: "a@x.io", Target: "t@x.io", Kind: "verify_link", Failure: "upstream_not_found",
		Message: "Không tìm thấy dữ liệu.", RequestID: "req-2",
	}))

	entries, err := s.RecentFetches(ctx, "t@x.io", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
	assert.Equal(t, "req-2", entries[0].RequestID)
	assert.True(t, entries[1].Success)
	assert.Equal(t, "583920", entries[1].Code)
	assert.Equal(t, day, entries[1].CreatedAt)
}

func TestFilePath(t *testing.T) {
	tests := []struct {
		dsn    string
		want   string
		onDisk bool
	}{
		{":memory:", "", false},
		{"", "", false},
		{"data.db", "data.db", true},
		{"file:/tmp/x.db?cache=shared", "/tmp/x.db", true},
		{"file::memory:?cache=shared", "", false},
	}
	for _, tt := range tests {
		got, onDisk := filePath(tt.dsn)
		assert.Equal(t, tt.onDisk, onDisk, tt.dsn)
		if tt.onDisk {
			assert.Equal(t, tt.want, got)
		}
	}
}
