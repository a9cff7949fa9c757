// Load generator for Harrier.
//
// Usage:
//
//	go run ./cmd/loadgen -url http://localhost:8080 -n 1000 -workers 10
//
// This tool:
//  1. Builds synthetic 12-month bank statements (clean, circular, p2p-padded)
//  2. Sends each application to POST /assess
//  3. Reports the tier and status distribution per profile, and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AssessResponse is the subset of the assessment the report needs.
type AssessResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Composite struct {
		CreditScore int    `json:"creditScore"`
		RiskTier    string `json:"riskTier"`
	} `json:"composite"`
	Anomaly struct {
		TotalRisk float64 `json:"totalRisk"`
	} `json:"anomaly"`
}

type job struct {
	id      int
	profile string
	app     *Application
}

// Report aggregates results across workers.
type Report struct {
	mu        sync.Mutex
	tiers     map[string]map[string]int // profile -> tier -> count
	statuses  map[string]map[string]int // profile -> status -> count
	scores    map[string][]int
	latencies []time.Duration

	processed atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64
}

func newReport() *Report {
	return &Report{
		tiers:    make(map[string]map[string]int),
		statuses: make(map[string]map[string]int),
		scores:   make(map[string][]int),
	}
}

func (r *Report) record(profile string, resp *AssessResponse, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tiers[profile] == nil {
		r.tiers[profile] = make(map[string]int)
		r.statuses[profile] = make(map[string]int)
	}
	r.tiers[profile][resp.Composite.RiskTier]++
	r.statuses[profile][resp.Status]++
	r.scores[profile] = append(r.scores[profile], resp.Composite.CreditScore)
	r.latencies = append(r.latencies, elapsed)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Harrier base URL")
	tenantID := flag.String("tenant", "loadgen", "Tenant ID for requests")
	count := flag.Int("n", 1000, "Number of applications to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	profile := flag.String("profile", "mixed", "Statement profile: mixed, clean, circular or p2p")
	seed := flag.Uint64("seed", 1, "Generator seed")
	verbose := flag.Bool("verbose", false, "Print each assessment")
	flag.Parse()

	if *profile != "mixed" && !slices.Contains(profiles, *profile) {
		fmt.Printf("unknown profile %q\n\nFlags:\n", *profile)
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("HARRIER LOAD GENERATOR")
	fmt.Printf("\nHarrier URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Requests:    %d\n", *count)
	fmt.Printf("Profile:     %s\n", *profile)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Harrier not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Harrier is running:")
		fmt.Println("  go run ./cmd/harrier")
		os.Exit(1)
	}
	fmt.Println("Harrier is healthy")

	gen := NewGenerator(*seed, time.Now().UTC())
	jobs := make([]job, *count)
	for i := range jobs {
		p := *profile
		if p == "mixed" {
			p = gen.Pick()
		}
		jobs[i] = job{id: i, profile: p, app: gen.Application(i, p)}
	}

	fmt.Printf("\nRunning with %d workers...\n", *workers)
	start := time.Now()
	report := run(jobs, *baseURL, *tenantID, *workers, *verbose)
	printReport(report, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func run(jobs []job, baseURL, tenantID string, numWorkers int, verbose bool) *Report {
	report := newReport()

	work := make(chan job, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for j := range work {
				start := time.Now()
				resp, cached, err := assess(client, baseURL, tenantID, j.app)
				elapsed := time.Since(start)
				report.processed.Add(1)

				if err != nil {
					report.errors.Add(1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", j.app.ApplicantID, err)
					}
					continue
				}
				if cached {
					report.cacheHits.Add(1)
				}
				report.record(j.profile, resp, elapsed)

				if verbose {
					fmt.Printf("%-28s | %-8s | score %3d | %-10s | %-8s | anomaly %.2f | %v\n",
						j.app.ApplicantID,
						j.profile,
						resp.Composite.CreditScore,
						resp.Composite.RiskTier,
						resp.Status,
						resp.Anomaly.TotalRisk,
						elapsed.Round(time.Millisecond),
					)
				}
			}
		}()
	}

	for _, j := range jobs {
		work <- j
	}
	close(work)
	wg.Wait()

	return report
}

func assess(client *http.Client, baseURL, tenantID string, app *Application) (*AssessResponse, bool, error) {
	body, err := json.Marshal(app)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, err
	}
	return &result, resp.Header.Get("X-Cache") == "HIT", nil
}

// percentile returns the p-th percentile of sorted durations (nearest rank).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func printReport(r *Report, duration time.Duration) {
	fmt.Println("\nRESULTS")
	fmt.Printf("   Processed:   %d\n", r.processed.Load())
	fmt.Printf("   Errors:      %d\n", r.errors.Load())
	fmt.Printf("   Cache hits:  %d\n", r.cacheHits.Load())

	tierOrder := []string{"PRIME", "NEAR_PRIME", "STANDARD", "SUBPRIME", "DECLINE"}
	for _, p := range profiles {
		tiers, ok := r.tiers[p]
		if !ok {
			continue
		}
		fmt.Printf("\n%s (n=%d, mean score %.1f)\n", p, len(r.scores[p]), mean(r.scores[p]))
		for _, t := range tierOrder {
			if n := tiers[t]; n > 0 {
				fmt.Printf("   %-11s %6d  (%.1f%%)\n", t, n, 100*float64(n)/float64(len(r.scores[p])))
			}
		}
		statuses := make([]string, 0, len(r.statuses[p]))
		for s := range r.statuses[p] {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Printf("   status %-9s %6d\n", s, r.statuses[p][s])
		}
	}

	lat := slices.Clone(r.latencies)
	slices.Sort(lat)

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if n := r.processed.Load(); n > 0 {
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(n)/duration.Seconds())
	}
	fmt.Printf("   p50 Latency:      %v\n", percentile(lat, 0.50).Round(time.Microsecond))
	fmt.Printf("   p95 Latency:      %v\n", percentile(lat, 0.95).Round(time.Microsecond))
	fmt.Printf("   p99 Latency:      %v\n", percentile(lat, 0.99).Round(time.Microsecond))
	fmt.Println()
}
