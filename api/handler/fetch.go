package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tukibridge/api/middleware"
	"github.com/use-agent/tukibridge/cache"
	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/store"
)

// Fetcher runs one query against the target site. *session.Fetcher
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req models.FetchRequest) models.FetchResult
}

// FetchRecorder counts fetch API outcomes. *metrics.Recorder implements it.
type FetchRecorder interface {
	CacheHit()
	Response(status int)
}

const (
	msgMissingEmail     = "Thiếu email"
	msgPhoneNotAllowed  = "Số điện thoại hết hạn hoặc chưa được đăng kí, vui lòng liên hệ với seller để được gia hạn"
	msgRequesterUnknown = "Email không hợp lệ hoặc chưa được cấp quyền, vui lòng liên hệ admin."
	msgRequesterExpired = "Gói Netflix của bạn đã hết hạn, vui lòng liên hệ admin để được gia hạn."
	msgTargetUnknown    = "Email đích không tồn tại trong hệ thống."
	msgTargetExpired    = "Email đích đã hết hạn, vui lòng liên hệ admin."
	msgFetchFailed      = "Phản hồi không thành công từ worker"
)

// denial is a request rejected before the session is touched.
type denial struct {
	status  int
	code    string
	message string
}

// Fetch returns a handler for POST /api/v1/fetch.
//
// Flow:
//  1. Bind JSON or form, normalise emails and phone.
//  2. Authorise: phone holder, requester and target must exist and not be expired.
//  3. Cache lookup by (target, kind).
//  4. Fetcher.Fetch, map the result to a response and status.
//  5. Record the fetch in the store log, cache successes.
func Fetch(f Fetcher, st *store.Store, cc *cache.Cache, rec FetchRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.FetchAPIRequest
		if err := c.ShouldBind(&req); err != nil {
			writeFetch(c, rec, http.StatusBadRequest, fetchDenied(models.ErrCodeInvalidInput, err.Error()))
			return
		}
		req.Defaults()

		email := models.NormalizeEmail(req.Email)
		target := models.NormalizeEmail(req.TargetEmail)
		if target == "" {
			target = email
		}
		if email == "" {
			writeFetch(c, rec, http.StatusBadRequest, fetchDenied(models.ErrCodeInvalidInput, msgMissingEmail))
			return
		}
		kind, err := models.ParseKind(req.Kind)
		if err != nil {
			writeFetch(c, rec, http.StatusBadRequest,
				fetchDenied(models.ErrCodeInvalidInput, fmt.Sprintf("kind không hợp lệ: %s", req.Kind)))
			return
		}

		// ── 2. Authorise ────────────────────────────────────────────
		requester, targetCustomer, d := authorize(ctx, st, models.NormalizePhone(req.Password), email, target, time.Now())
		if d != nil {
			writeFetch(c, rec, d.status, fetchDenied(d.code, d.message))
			return
		}

		// ── 3. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(targetCustomer.Email, kind)
		if cached, hit := cc.Get(cacheKey); hit {
			cached.CacheStatus = "hit"
			cached.RequesterEmail = requester.Email
			if rec != nil {
				rec.CacheHit()
			}
			writeFetch(c, rec, http.StatusOK, cached)
			return
		}

		// ── 4. Fetch ────────────────────────────────────────────────
		identifier := strings.TrimSpace(req.TargetEmail)
		if identifier == "" {
			identifier = strings.TrimSpace(req.Email)
		}
		res := f.Fetch(ctx, models.FetchRequest{Identifier: identifier, Kind: kind})

		status := http.StatusOK
		resp := toFetchResponse(res, kind)
		resp.RequesterEmail = requester.Email
		resp.TargetEmail = targetCustomer.Email
		if !res.Success {
			status = mapFailureToStatus(res.Failure)
		}

		// ── 5. Log + cache ──────────────────────────────────────────
		logFetch(ctx, st, store.FetchLogEntry{
			Requester: requester.Email,
			Target:    targetCustomer.Email,
			Kind:      string(kind),
			Success:   res.Success,
			Failure:   string(res.Failure),
			Code:      res.Code,
			Message:   res.Message,
			RequestID: middleware.GetRequestID(c),
		})

		if res.Success && cc.Enabled() {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		writeFetch(c, rec, status, resp)
	}
}

// authorize runs the access checks in order: phone, requester, target.
func authorize(ctx context.Context, st *store.Store, phone, email, target string, today time.Time) (*store.Customer, *store.Customer, *denial) {
	forbidden := func(msg string) *denial {
		return &denial{status: http.StatusForbidden, code: models.ErrCodeForbidden, message: msg}
	}

	if phone == "" {
		return nil, nil, forbidden(msgPhoneNotAllowed)
	}
	holder, err := st.FindByPhone(ctx, phone)
	if err != nil {
		return nil, nil, lookupDenial(err, forbidden(msgPhoneNotAllowed))
	}
	if holder.Status(today) == store.StatusExpired {
		return nil, nil, forbidden(msgPhoneNotAllowed)
	}

	requester, err := st.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, lookupDenial(err, forbidden(msgRequesterUnknown))
	}
	if requester.Status(today) == store.StatusExpired {
		return nil, nil, forbidden(msgRequesterExpired)
	}

	targetCustomer := requester
	if target != email {
		targetCustomer, err = st.FindByEmail(ctx, target)
		if err != nil {
			return nil, nil, lookupDenial(err, &denial{
				status:  http.StatusNotFound,
				code:    models.ErrCodeNotFound,
				message: msgTargetUnknown,
			})
		}
	}
	if targetCustomer.Status(today) == store.StatusExpired {
		return nil, nil, forbidden(msgTargetExpired)
	}
	return requester, targetCustomer, nil
}

func lookupDenial(err error, notFound *denial) *denial {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	slog.Error("customer lookup failed", "error", err)
	return &denial{status: http.StatusInternalServerError, code: models.ErrCodeInternal, message: msgServerError}
}

// toFetchResponse maps a FetchResult onto the wire shape, filling the
// timestamp aliases older clients read.
func toFetchResponse(res models.FetchResult, kind models.Kind) models.FetchResponse {
	resp := models.FetchResponse{
		Success:       res.Success,
		Kind:          string(kind),
		ServerTimeRaw: res.ServerTimeRaw,
		ServerTimeISO: res.ServerTimeISO,
	}

	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = msgFetchFailed
		}
		resp.Message = msg
		resp.Error = &models.ErrorDetail{Code: mapFailureToCode(res.Failure), Message: msg}
		return resp
	}

	raw, iso := res.ReceivedAtRaw, res.ReceivedAtISO
	if raw == "" {
		raw = iso
	}
	resp.Code = res.Code
	resp.Content = res.Content
	resp.VerifyLink = res.VerifyLink
	resp.ReceivedAtRaw = raw
	resp.ReceivedAt = iso
	resp.TimestampRaw = raw
	resp.TimestampISO = iso
	resp.Timestamp = raw
	resp.ServerTime = res.ServerTime
	return resp
}

func fetchDenied(code, message string) models.FetchResponse {
	return models.FetchResponse{
		Success: false,
		Message: message,
		Error:   &models.ErrorDetail{Code: code, Message: message},
	}
}

func writeFetch(c *gin.Context, rec FetchRecorder, status int, resp models.FetchResponse) {
	if rec != nil {
		rec.Response(status)
	}
	c.JSON(status, resp)
}

func logFetch(ctx context.Context, st *store.Store, entry store.FetchLogEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := st.LogFetch(ctx, entry); err != nil {
		slog.Warn("fetch log write failed", "target", entry.Target, "error", err)
	}
}
