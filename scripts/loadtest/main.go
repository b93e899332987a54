package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL      = flag.String("api-url", "http://localhost:5000", "Tukibridge API base URL")
	email       = flag.String("email", "", "Registered requester email")
	phone       = flag.String("phone", "", "Phone registered with the requester")
	target      = flag.String("target", "", "Target email (defaults to -email)")
	kind        = flag.String("kind", "login_code", "login_code or verify_link")
	requests    = flag.Int("n", 20, "Total number of fetch requests")
	concurrency = flag.Int("c", 4, "Concurrent requests in flight")
	output      = flag.String("output", "", "Optional JSON output file path")
)

type fetchRequest struct {
	Email       string `json:"email"`
	TargetEmail string `json:"target_email,omitempty"`
	Kind        string `json:"kind"`
	Password    string `json:"password"`
}

type fetchResponse struct {
	Success     bool   `json:"success"`
	CacheStatus string `json:"cache_status"`
	Error       *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type sample struct {
	Status    int    `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Success   bool   `json:"success"`
	Outcome   string `json:"outcome"`
}

type report struct {
	Timestamp   string         `json:"timestamp"`
	APIURL      string         `json:"api_url"`
	Requests    int            `json:"requests"`
	Concurrency int            `json:"concurrency"`
	WallMs      int64          `json:"wall_ms"`
	P50Ms       int64          `json:"p50_ms"`
	P90Ms       int64          `json:"p90_ms"`
	P99Ms       int64          `json:"p99_ms"`
	MaxMs       int64          `json:"max_ms"`
	Outcomes    map[string]int `json:"outcomes"`
	Samples     []sample       `json:"samples"`
}

func main() {
	flag.Parse()
	if *email == "" || *phone == "" {
		fmt.Fprintln(os.Stderr, "Error: -email and -phone are required")
		os.Exit(2)
	}

	fmt.Println("=== Tukibridge Load Test ===")
	fmt.Printf("API URL:     %s\n", *apiURL)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	body, _ := json.Marshal(fetchRequest{Email: *email, TargetEmail: *target, Kind: *kind, Password: *phone})
	client := &http.Client{Timeout: 5 * time.Minute}

	var (
		mu      sync.Mutex
		samples []sample
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	start := time.Now()
	for i := 0; i < *requests; i++ {
		g.Go(func() error {
			s := fetchOnce(ctx, client, body)
			mu.Lock()
			samples = append(samples, s)
			fmt.Printf("  [%3d/%d] %-22s %6dms\n", len(samples), *requests, s.Outcome, s.LatencyMs)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	r := summarize(samples)
	r.Timestamp = time.Now().UTC().Format(time.RFC3339)
	r.APIURL = *apiURL
	r.Concurrency = *concurrency
	r.WallMs = time.Since(start).Milliseconds()

	printSummary(r)

	if *output != "" {
		data, err := json.MarshalIndent(r, "", "  ")
		if err == nil {
			err = os.WriteFile(*output, data, 0644)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nDetailed results written to %s\n", *output)
	}
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func fetchOnce(ctx context.Context, client *http.Client, body []byte) sample {
	start := time.Now()
	s := sample{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *apiURL+"/api/v1/fetch", bytes.NewReader(body))
	if err != nil {
		s.Outcome = "request_error"
		return s
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	s.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		s.Outcome = "transport_error"
		return s
	}
	defer resp.Body.Close()
	s.Status = resp.StatusCode

	var fr fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		s.Outcome = "decode_error"
		return s
	}
	s.Success = fr.Success
	switch {
	case fr.Success && fr.CacheStatus == "hit":
		s.Outcome = "ok (cached)"
	case fr.Success:
		s.Outcome = "ok"
	case fr.Error != nil:
		s.Outcome = strings.ToLower(fr.Error.Code)
	default:
		s.Outcome = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return s
}

func summarize(samples []sample) report {
	r := report{Requests: len(samples), Outcomes: map[string]int{}, Samples: samples}
	latencies := make([]int64, 0, len(samples))
	for _, s := range samples {
		r.Outcomes[s.Outcome]++
		latencies = append(latencies, s.LatencyMs)
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	r.P50Ms = percentile(latencies, 50)
	r.P90Ms = percentile(latencies, 90)
	r.P99Ms = percentile(latencies, 99)
	if n := len(latencies); n > 0 {
		r.MaxMs = latencies[n-1]
	}
	return r
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func printSummary(r report) {
	fmt.Println()
	fmt.Println(strings.Repeat("─", 50))
	fmt.Printf("Wall time: %dms\n", r.WallMs)
	fmt.Printf("Latency:   p50 %dms  p90 %dms  p99 %dms  max %dms\n", r.P50Ms, r.P90Ms, r.P99Ms, r.MaxMs)
	fmt.Println()

	outcomes := make([]string, 0, len(r.Outcomes))
	for o := range r.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Outcome\tCount\n")
	fmt.Fprintf(w, "───────\t─────\n")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\n", o, r.Outcomes[o])
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 50))
}
