package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/store"
)

const maxImportBytes = 2 << 20

// Restarter rebuilds the automation session. *session.Fetcher implements it.
type Restarter interface {
	Restart(ctx context.Context, reason string) error
}

// ListCustomers returns a handler for GET /api/v1/admin/customers?q=&status=.
func ListCustomers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := store.Status(strings.ToLower(strings.TrimSpace(c.Query("status"))))
		switch status {
		case "", store.StatusActive, store.StatusExpiring, store.StatusExpired:
		default:
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "status must be active, expiring or expired")
			return
		}

		today := time.Now()
		customers, err := st.ListCustomers(c.Request.Context(), store.ListFilter{
			Query:  c.Query("q"),
			Status: status,
			Today:  today,
		})
		if err != nil {
			respondStoreError(c, err)
			return
		}
		counts, err := st.PhoneEmailCounts(c.Request.Context())
		if err != nil {
			respondStoreError(c, err)
			return
		}

		views := make([]models.CustomerView, 0, len(customers))
		for i := range customers {
			views = append(views, customerView(&customers[i], today, counts))
		}
		c.JSON(http.StatusOK, models.CustomerListResponse{Customers: views, Total: len(views)})
	}
}

// CreateCustomer returns a handler for POST /api/v1/admin/customers.
func CreateCustomer(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CustomerRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		cu, err := st.CreateCustomer(c.Request.Context(), customerInput(req))
		if err != nil {
			respondStoreError(c, err)
			return
		}
		slog.Info("customer created", "id", cu.ID, "email", cu.Email)
		c.JSON(http.StatusCreated, customerView(cu, time.Now(), nil))
	}
}

// UpdateCustomer returns a handler for PUT /api/v1/admin/customers/:id.
func UpdateCustomer(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := customerID(c)
		if !ok {
			return
		}
		var req models.CustomerRequest
		if err := c.ShouldBind(&req); err != nil {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		cu, err := st.UpdateCustomer(c.Request.Context(), id, customerInput(req))
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, customerView(cu, time.Now(), nil))
	}
}

// DeleteCustomer returns a handler for DELETE /api/v1/admin/customers/:id.
func DeleteCustomer(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := customerID(c)
		if !ok {
			return
		}
		if err := st.DeleteCustomer(c.Request.Context(), id); err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.BulkDeleteResponse{Deleted: 1})
	}
}

// BulkDeleteCustomers returns a handler for POST /api/v1/admin/customers/bulk-delete.
func BulkDeleteCustomers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BulkDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Vui lòng chọn ít nhất một email để xóa.")
			return
		}

		n, err := st.BulkDelete(c.Request.Context(), req.IDs)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		if n == 0 {
			respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Không tìm thấy email cần xóa.")
			return
		}
		slog.Info("customers deleted", "count", n)
		c.JSON(http.StatusOK, models.BulkDeleteResponse{Deleted: n})
	}
}

// ImportCustomers returns a handler for POST /api/v1/admin/customers/import.
//
// Accepts either a multipart upload in the "email_file" field or a plain
// text body, one email per line.
func ImportCustomers(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := importBody(c)
		if err != nil {
			var ie *importError
			if errors.As(err, &ie) {
				respondError(c, ie.status, models.ErrCodeInvalidInput, ie.message)
				return
			}
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		res, err := st.ImportEmails(c.Request.Context(), strings.Split(string(data), "\n"))
		if err != nil {
			respondStoreError(c, err)
			return
		}
		slog.Info("emails imported", "added", res.Added, "skipped", res.Skipped, "invalid", res.Invalid)
		c.JSON(http.StatusOK, models.ImportResponse{Added: res.Added, Skipped: res.Skipped, Invalid: res.Invalid})
	}
}

// Stats returns a handler for GET /api/v1/admin/stats.
func Stats(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := st.Stats(c.Request.Context(), time.Now())
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatsResponse{
			Total:       s.Total,
			Active:      s.Active,
			Expiring:    s.Expiring,
			Expired:     s.Expired,
			RenewalRate: s.RenewalRate,
		})
	}
}

// RecentFetches returns a handler for GET /api/v1/admin/fetches?target=&limit=.
func RecentFetches(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := models.NormalizeEmail(c.Query("target"))
		if target == "" {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Thiếu email cần tra cứu.")
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		limit = min(limit, 200)

		entries, err := st.RecentFetches(c.Request.Context(), target, limit)
		if err != nil {
			respondStoreError(c, err)
			return
		}

		resp := models.FetchLogResponse{Target: target, Entries: make([]models.FetchLogView, 0, len(entries))}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, models.FetchLogView{
				Requester: e.Requester,
				Target:    e.Target,
				Kind:      e.Kind,
				Success:   e.Success,
				Failure:   e.Failure,
				Code:      e.Code,
				Message:   e.Message,
				RequestID: e.RequestID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// RestartSession returns a handler for POST /api/v1/admin/session/restart.
// It waits for any fetch in flight before rebuilding the session.
func RestartSession(r Restarter, s SessionStatter) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := r.Restart(c.Request.Context(), "admin")
		resp := models.RestartResponse{Success: err == nil, Session: s.Stats()}
		if err != nil {
			slog.Warn("admin session restart failed", "error", err)
			resp.Message = "session restart failed"
			var fe *models.FetchError
			if errors.As(err, &fe) {
				resp.Message = fe.Message
			}
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

type importError struct {
	status  int
	message string
}

func (e *importError) Error() string { return e.message }

func importBody(c *gin.Context) ([]byte, error) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("email_file")
		if err != nil || fh.Filename == "" {
			return nil, &importError{http.StatusBadRequest, "Vui lòng chọn tệp .txt để import."}
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImportBytes {
		return nil, &importError{http.StatusRequestEntityTooLarge, "Tệp import quá lớn."}
	}
	if !utf8.Valid(data) {
		return nil, &importError{http.StatusBadRequest, "Tệp phải sử dụng mã hóa UTF-8."}
	}
	return data, nil
}

func customerID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Không xác định được khách hàng.")
		return 0, false
	}
	return id, true
}

func customerInput(req models.CustomerRequest) store.CustomerInput {
	return store.CustomerInput{
		Email:  req.Email,
		Phone:  req.Phone,
		Expiry: req.Expiry,
		Notes:  req.Notes,
	}
}

func customerView(cu *store.Customer, today time.Time, counts map[string]int) models.CustomerView {
	v := models.CustomerView{
		ID:            cu.ID,
		Email:         cu.Email,
		Phone:         cu.Phone,
		Status:        string(cu.Status(today)),
		DaysRemaining: cu.DaysRemaining(today),
		Notes:         cu.Notes,
		CreatedAt:     cu.CreatedAt.Format(time.RFC3339),
	}
	if cu.Expiry != nil {
		v.Expiry = cu.Expiry.Format("2006-01-02")
	}
	if cu.UpdatedAt != nil {
		v.UpdatedAt = cu.UpdatedAt.Format(time.RFC3339)
	}
	if p := models.NormalizePhone(cu.Phone); p != "" {
		v.PhoneEmailCount = counts[p]
	}
	return v
}
