package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// fetchRequest mirrors the tukibridge fetch request model.
type fetchRequest struct {
	Email       string `json:"email"`
	TargetEmail string `json:"target_email,omitempty"`
	Kind        string `json:"kind"`
	Password    string `json:"password"`
}

// fetchResponse mirrors the subset of the fetch response the tools render.
type fetchResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Code        string `json:"code"`
	Content     string `json:"content"`
	VerifyLink  string `json:"verify_link"`
	ReceivedAt  string `json:"received_at_raw"`
	ServerTime  bool   `json:"server_time"`
	TargetEmail string `json:"target_email"`
	CacheStatus string `json:"cache_status"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// healthResponse mirrors the health endpoint.
type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Session struct {
		State        string `json:"state"`
		LastActivity string `json:"last_activity"`
		Uses         int    `json:"uses"`
		Restarts     int    `json:"restarts"`
	} `json:"session"`
	Upstream *struct {
		Reachable  bool   `json:"reachable"`
		StatusCode int    `json:"status_code"`
		LatencyMs  int64  `json:"latency_ms"`
		Error      string `json:"error"`
	} `json:"upstream"`
}

// statsResponse mirrors the admin stats endpoint.
type statsResponse struct {
	Total       int     `json:"total"`
	Active      int     `json:"active"`
	Expiring    int     `json:"expiring"`
	Expired     int     `json:"expired"`
	RenewalRate float64 `json:"renewal_rate"`
}

func main() {
	apiURL := os.Getenv("TUKI_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5000"
	}
	adminKey := os.Getenv("TUKI_ADMIN_KEY")

	s := newServer(strings.TrimRight(apiURL, "/"), adminKey)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(apiURL, adminKey string) *server.MCPServer {
	s := server.NewMCPServer(
		"tukibridge",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	accountArgs := []mcp.ToolOption{
		mcp.WithString("email",
			mcp.Required(),
			mcp.Description("The requester's registered email"),
		),
		mcp.WithString("phone",
			mcp.Required(),
			mcp.Description("The phone number registered with the requester's plan"),
		),
		mcp.WithString("target_email",
			mcp.Description("Account to fetch for, when different from the requester"),
		),
	}

	loginCodeTool := mcp.NewTool("fetch_login_code",
		append([]mcp.ToolOption{
			mcp.WithDescription("Fetch the latest one-time login code for a streaming account. Codes expire quickly; use them right away."),
		}, accountArgs...)...,
	)
	s.AddTool(loginCodeTool, handleFetch(apiURL, "login_code"))

	verifyLinkTool := mcp.NewTool("fetch_verify_link",
		append([]mcp.ToolOption{
			mcp.WithDescription("Fetch the latest household verification link for a streaming account."),
		}, accountArgs...)...,
	)
	s.AddTool(verifyLinkTool, handleFetch(apiURL, "verify_link"))

	healthTool := mcp.NewTool("session_health",
		mcp.WithDescription("Report the state of the automation session and whether the upstream site is reachable."),
	)
	s.AddTool(healthTool, handleHealth(apiURL))

	// customer_stats needs admin credentials.
	if adminKey != "" {
		statsTool := mcp.NewTool("customer_stats",
			mcp.WithDescription("Count customers by subscription status (active, expiring within 3 days, expired)."),
		)
		s.AddTool(statsTool, handleStats(apiURL, adminKey))
	}

	return s
}

// apiDo sends a request to the tukibridge API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleFetch(apiURL, kind string) server.ToolHandlerFunc {
	// The session serializes fetches; a queued request can wait several results long.
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := request.RequireString("email")
		if err != nil {
			return mcp.NewToolResultError("email is required"), nil
		}
		phone, err := request.RequireString("phone")
		if err != nil {
			return mcp.NewToolResultError("phone is required"), nil
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/fetch", "", fetchRequest{
			Email:       email,
			TargetEmail: request.GetString("target_email", ""),
			Kind:        kind,
			Password:    phone,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fetch request failed: %v", err)), nil
		}

		var resp fetchResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			errMsg := resp.Message
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			if errMsg == "" {
				errMsg = "fetch failed"
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatFetch(kind, resp)), nil
	}
}

func formatFetch(kind string, resp fetchResponse) string {
	var sb strings.Builder
	if kind == "verify_link" && resp.VerifyLink != "" {
		sb.WriteString("Verification link: " + resp.VerifyLink + "\n")
	} else if resp.Code != "" {
		sb.WriteString("Code: " + resp.Code + "\n")
	}
	if resp.TargetEmail != "" {
		sb.WriteString("Account: " + resp.TargetEmail + "\n")
	}
	if resp.ReceivedAt != "" {
		label := "Received"
		if resp.ServerTime {
			label = "Fetched"
		}
		sb.WriteString(label + ": " + resp.ReceivedAt + "\n")
	}
	if resp.CacheStatus == "hit" {
		sb.WriteString("(served from cache)\n")
	}
	if resp.Content != "" {
		sb.WriteString("\n" + resp.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func handleHealth(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/health", "", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("health request failed: %v", err)), nil
		}

		var h healthResponse
		if err := json.Unmarshal(respBody, &h); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse health response: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Status: %s (up %s)\n", h.Status, h.Uptime))
		sb.WriteString(fmt.Sprintf("Session: %s, %d uses, %d restarts\n", h.Session.State, h.Session.Uses, h.Session.Restarts))
		if h.Upstream != nil {
			if h.Upstream.Reachable {
				sb.WriteString(fmt.Sprintf("Upstream: reachable (HTTP %d, %dms)", h.Upstream.StatusCode, h.Upstream.LatencyMs))
			} else {
				sb.WriteString("Upstream: unreachable " + h.Upstream.Error)
			}
		}
		return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
	}
}

func handleStats(apiURL, adminKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/admin/stats", adminKey, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats request failed: %v", err)), nil
		}

		var st statsResponse
		if err := json.Unmarshal(respBody, &st); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse stats response: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf(
			"Customers: %d\nActive: %d\nExpiring: %d\nExpired: %d\nRenewed in last 30 days: %.1f%%",
			st.Total, st.Active, st.Expiring, st.Expired, st.RenewalRate,
		)), nil
	}
}
