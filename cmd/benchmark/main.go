package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	initiated201  uint64 // Pending recorded
	settled200    uint64 // Verify converged
	rejected422   uint64 // Validation / declines
	unavailable   uint64 // Gateway or breaker down
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type creditIntent struct {
	Reference string `json:"reference"`
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		accountID := pickAccount()
		amount := int64(100)

		payload := map[string]interface{}{"amount": amount}
		body, _ := json.Marshal(payload)

		url := fmt.Sprintf("%s/api/v1/accounts/%d/credits", targetURL, accountID)
		resp, err := client.Post(url, "application/json", bytes.NewBuffer(body))
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		var intent creditIntent
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&initiated201, 1)
			json.NewDecoder(resp.Body).Decode(&intent)
		case 422:
			atomic.AddUint64(&rejected422, 1)
		case 503:
			atomic.AddUint64(&unavailable, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()

		if intent.Reference == "" {
			continue
		}

		// Drive the pending transaction to a terminal state the same way a
		// webhook retry loop would.
		verifyURL := fmt.Sprintf("%s/api/v1/transactions/%s/verify", targetURL, intent.Reference)
		resp, err = client.Post(verifyURL, "application/json", nil)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&settled200, 1)
		case 503:
			atomic.AddUint64(&unavailable, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func pickAccount() int64 {
	// Assumes 1000 accounts seeded (IDs 1-1000)
	totalAccounts := 1000

	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to Account 1 & 2
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1
			}
			return 2
		}
	}

	return int64(rand.Intn(totalAccounts) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	i201 := atomic.LoadUint64(&initiated201)
	s200 := atomic.LoadUint64(&settled200)
	r422 := atomic.LoadUint64(&rejected422)
	u503 := atomic.LoadUint64(&unavailable)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"initiated":        i201,
		"settled":          s200,
		"rejected":         r422,
		"unavailable":      u503,
		"errors":           fErr,
		"unavailable_rate": float64(u503) / float64(total) * 100,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
