// Command scan_stress fires concurrent scans of a single QR token at a
// running instance and verifies that exactly one attendance record is
// created while every other scan resolves as a duplicate.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type scanResult struct {
	Status   int
	Duration time.Duration
	Dup      bool
	Error    error
}

type scanPayload struct {
	Token     string   `json:"token"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

func main() {
	var (
		base        string
		token       string
		bearer      string
		count       int
		concurrency int
		timeout     time.Duration
		lat, lng    float64
		withCoords  bool
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "QR token value to scan")
	flag.StringVar(&bearer, "bearer", "", "JWT for the Authorization header")
	flag.IntVar(&count, "count", 20, "Total number of scans to fire")
	flag.IntVar(&concurrency, "concurrency", 10, "Number of concurrent workers")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Float64Var(&lat, "lat", 0, "Latitude to send with each scan")
	flag.Float64Var(&lng, "lng", 0, "Longitude to send with each scan")
	flag.BoolVar(&withCoords, "coords", false, "Include lat/lng in the payload")
	flag.Parse()

	if token == "" {
		log.Fatal("a -token value is required")
	}

	payload := scanPayload{Token: token}
	if withCoords {
		payload.Latitude = &lat
		payload.Longitude = &lng
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("failed to encode payload: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	results := make([]scanResult, count)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = performScan(client, base, bearer, body)
			}
		}()
	}
	for i := 0; i < count; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	created, duplicates, busy, failures := tally(results)
	printReport(results, created, duplicates, busy, failures)

	if created != 1 {
		fmt.Printf("FAIL: expected exactly 1 created record, got %d\n", created)
		os.Exit(1)
	}
	fmt.Println("PASS: one record created, all other scans deduplicated")
}

func performScan(client *http.Client, base, bearer string, body []byte) scanResult {
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/scans", bytes.NewReader(body))
	if err != nil {
		return scanResult{Error: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := client.Do(req)
	dur := time.Since(start)
	if err != nil {
		return scanResult{Duration: dur, Error: err}
	}
	defer resp.Body.Close()

	res := scanResult{Status: resp.StatusCode, Duration: dur}
	if resp.StatusCode != http.StatusOK {
		return res
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Error = fmt.Errorf("read body: %w", err)
		return res
	}
	var envelope struct {
		Data struct {
			Duplicate bool `json:"duplicate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		res.Error = fmt.Errorf("decode body: %w", err)
		return res
	}
	res.Dup = envelope.Data.Duplicate
	return res
}

func tally(results []scanResult) (created, duplicates, busy, failures int) {
	for _, res := range results {
		switch {
		case res.Error != nil:
			failures++
		case res.Status == http.StatusTooManyRequests:
			busy++
		case res.Status == http.StatusOK && res.Dup:
			duplicates++
		case res.Status == http.StatusOK:
			created++
		default:
			failures++
		}
	}
	return created, duplicates, busy, failures
}

func printReport(results []scanResult, created, duplicates, busy, failures int) {
	var total, max time.Duration
	for _, res := range results {
		total += res.Duration
		if res.Duration > max {
			max = res.Duration
		}
	}
	avg := time.Duration(0)
	if len(results) > 0 {
		avg = total / time.Duration(len(results))
	}

	fmt.Println("Scan Stress Report")
	fmt.Println("==================")
	fmt.Printf("Scans: %d | Created: %d | Duplicates: %d | Busy: %d | Failures: %d\n",
		len(results), created, duplicates, busy, failures)
	fmt.Printf("Latency avg: %s | max: %s\n", avg, max)
	for _, res := range results {
		if res.Error != nil {
			fmt.Printf("  error after %s: %v\n", res.Duration, res.Error)
		}
	}
}
