package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/tukibridge/cache"
	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeFetcher struct {
	mu     sync.Mutex
	result models.FetchResult
	calls  []models.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req models.FetchRequest) models.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.result
}

type countingRecorder struct {
	hits     int
	statuses []int
}

func (r *countingRecorder) CacheHit()           { r.hits++ }
func (r *countingRecorder) Response(status int) { r.statuses = append(r.statuses, status) }

func date(offsetDays int) string {
	return time.Now().AddDate(0, 0, offsetDays).Format("2006-01-02")
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedCustomers(t *testing.T, st *store.Store) {
	t.Helper()
	for _, in := range []store.CustomerInput{
		{Email: "buyer@x.io", Phone: "0901 234", Expiry: date(30)},
		{Email: "family@x.io", Phone: "0902", Expiry: date(10)},
		{Email: "lapsed@x.io", Phone: "0903", Expiry: date(-1)},
		{Email: "seller-expired@x.io", Phone: "0999", Expiry: date(-5)},
	} {
		_, err := st.CreateCustomer(context.Background(), in)
		require.NoError(t, err)
	}
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeFetch(t *testing.T, rec *httptest.ResponseRecorder) models.FetchResponse {
	t.Helper()
	var resp models.FetchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func fetchRouter(f Fetcher, st *store.Store, cc *cache.Cache, rec FetchRecorder) *gin.Engine {
	r := gin.New()
	r.POST("/fetch", Fetch(f, st, cc, rec))
	return r
}

var successResult = models.FetchResult{
	Success:       true,
	Code:          "583920",
	Content:       "Nội dung: 583920\nThời gian nhận: Wed, 05 Mar 2025 14:22:01",
	ReceivedAtRaw: "Wed, 05 Mar 2025 14:22:01",
	ReceivedAtISO: "2025-03-05T14:22:01",
	ParsePath:     models.ParseLabeled,
	ServerTimeRaw: "Wed, 05 Mar 2025 14:25:00 ICT",
	ServerTimeISO: "2025-03-05T14:25:00+07:00",
}

func TestFetch_Validation(t *testing.T) {
	st := openStore(t)
	seedCustomers(t, st)
	f := &fakeFetcher{result: successResult}
	r := fetchRouter(f, st, nil, nil)

	tests := []struct {
		name    string
		body    map[string]string
		status  int
		message string
	}{
		{"missing email", map[string]string{"password": "0901234"}, http.StatusBadRequest, msgMissingEmail},
		{"bad kind", map[string]string{"email": "buyer@x.io", "kind": "sms", "password": "0901234"},
			http.StatusBadRequest, "kind không hợp lệ: sms"},
		{"no phone", map[string]string{"email": "buyer@x.io"}, http.StatusForbidden, msgPhoneNotAllowed},
		{"unknown phone", map[string]string{"email": "buyer@x.io", "password": "000"}, http.StatusForbidden, msgPhoneNotAllowed},
		{"expired phone", map[string]string{"email": "buyer@x.io", "password": "0999"}, http.StatusForbidden, msgPhoneNotAllowed},
		{"unknown requester", map[string]string{"email": "who@x.io", "password": "0901234"}, http.StatusForbidden, msgRequesterUnknown},
		{"expired requester", map[string]string{"email": "lapsed@x.io", "password": "0901234"}, http.StatusForbidden, msgRequesterExpired},
		{"unknown target", map[string]string{"email": "buyer@x.io", "target_email": "ghost@x.io", "password": "0901234"},
			http.StatusNotFound, msgTargetUnknown},
		{"expired target", map[string]string{"email": "buyer@x.io", "target_email": "lapsed@x.io", "password": "0901234"},
			http.StatusForbidden, msgTargetExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(r, "/fetch", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeFetch(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
			require.NotNil(t, resp.Error)
		})
	}
	assert.Empty(t, f.calls, "rejected requests never reach the session")
}

func TestFetch_Success(t *testing.T) {
	st := openStore(t)
	seedCustomers(t, st)
	f := &fakeFetcher{result: successResult}
	rec := &countingRecorder{}
	r := fetchRouter(f, st, nil, rec)

	w := postJSON(r, "/fetch", map[string]string{
		"email":        " Buyer@X.io ",
		"target_email": "Family@x.io",
		"password":     "0901234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeFetch(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "login_code", resp.Kind)
	assert.Equal(t, "583920", resp.Code)
	assert.Equal(t, "Wed, 05 Mar 2025 14:22:01", resp.ReceivedAtRaw)
	assert.Equal(t, "2025-03-05T14:22:01", resp.ReceivedAt)
	assert.Equal(t, resp.ReceivedAtRaw, resp.TimestampRaw)
	assert.Equal(t, resp.ReceivedAtRaw, resp.Timestamp)
	assert.Equal(t, resp.ReceivedAt, resp.TimestampISO)
	assert.Equal(t, "2025-03-05T14:25:00+07:00", resp.ServerTimeISO)
	assert.False(t, resp.ServerTime)
	assert.Equal(t, "buyer@x.io", resp.RequesterEmail)
	assert.Equal(t, "family@x.io", resp.TargetEmail)
	assert.Nil(t, resp.Error)

	require.Len(t, f.calls, 1)
	assert.Equal(t, models.FetchRequest{Identifier: "Family@x.io", Kind: models.KindLoginCode}, f.calls[0])
	assert.Equal(t, []int{http.StatusOK}, rec.statuses)

	logged, err := st.RecentFetches(context.Background(), "family@x.io", 5)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.True(t, logged[0].Success)
	assert.Equal(t, "buyer@x.io", logged[0].Requester)
}

func TestFetch_FormEncoded(t *testing.T) {
	st := openStore(t)
	seedCustomers(t, st)
	f := &fakeFetcher{result: successResult}
	r := fetchRouter(f, st, nil, nil)

	form := url.Values{"email": {"buyer@x.io"}, "password": {"0901 234"}, "kind": {"verify_link"}}
	req := httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, f.calls, 1)
	assert.Equal(t, models.KindVerifyLink, f.calls[0].Kind)
	assert.Equal(t, "buyer@x.io", f.calls[0].Identifier)
}

func TestFetch_ServerTimeFallbackFillsAliases(t *testing.T) {
	st := openStore(t)
	seedCustomers(t, st)
	res := successResult
	res.ReceivedAtRaw = "Wed, 05 Mar 2025 14:25:00 ICT"
	res.ReceivedAtISO = "2025-03-05T14:25:00+07:00"
	res.ServerTime = true
	r := fetchRouter(&fakeFetcher{result: res}, st, nil, nil)

	resp := decodeFetch(t, postJSON(r, "/fetch", map[string]string{"email": "buyer@x.io", "password": "0901234"}))
	assert.True(t, resp.ServerTime)
	assert.Equal(t, resp.ServerTimeRaw, resp.Timestamp)
	assert.Equal(t, resp.ServerTimeISO, resp.TimestampISO)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name   string
		result models.FetchResult
		status int
		code   string
	}{
		{"not found", models.Failed(models.FailureNotFound, "Không tìm thấy dữ liệu."), http.StatusNotFound, models.ErrCodeUpstreamNotFound},
		{"navigation", models.Failed(models.FailureNavigation, "search form not found"), http.StatusBadGateway, models.ErrCodeNavigation},
		{"submission", models.Failed(models.FailureSubmission, "no button"), http.StatusBadGateway, models.ErrCodeSubmission},
		{"transient", models.Failed(models.FailureTransient, ""), http.StatusBadGateway, models.ErrCodeUpstream},
		{"configuration", models.Failed(models.FailureConfiguration, "no url"), http.StatusServiceUnavailable, models.ErrCodeConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openStore(t)
			seedCustomers(t, st)
			r := fetchRouter(&fakeFetcher{result: tt.result}, st, nil, nil)

			w := postJSON(r, "/fetch", map[string]string{"email": "buyer@x.io", "password": "0901234"})
			assert.Equal(t, tt.status, w.Code)

			resp := decodeFetch(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Message)
			assert.Empty(t, resp.Code)
		})
	}
}

func TestFetch_Cache(t *testing.T) {
	st := openStore(t)
	seedCustomers(t, st)
	cc := cache.New(10, time.Minute)
	defer cc.Close()
	f := &fakeFetcher{result: successResult}
	rec := &countingRecorder{}
	r := fetchRouter(f, st, cc, rec)

	first := decodeFetch(t, postJSON(r, "/fetch", map[string]string{
		"email": "buyer@x.io", "target_email": "family@x.io", "password": "0901234",
	}))
	assert.Equal(t, "miss", first.CacheStatus)

	second := decodeFetch(t, postJSON(r, "/fetch", map[string]string{
		"email": "family@x.io", "password": "0902",
	}))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, "family@x.io", second.RequesterEmail)
	assert.Equal(t, "583920", second.Code)

	assert.Len(t, f.calls, 1)
	assert.Equal(t, 1, rec.hits)

	// A different kind is a separate entry.
	decodeFetch(t, postJSON(r, "/fetch", map[string]string{
		"email": "family@x.io", "password": "0902", "kind": "verify_link",
	}))
	assert.Len(t, f.calls, 2)
}
