// http-loadgen is a tiny, dependency-free HTTP load generator tailored for the
// storyfund demo. It reuses HTTP connections (keep-alive) and supports
// concurrency so demo scripts run fast on Windows (Git Bash), Ubuntu (WSL),
// and macOS without relying on external tools.
//
// Modes:
//   - verify:    send N verifications with distinct order ids (exercises the
//     guarded record path; every request mints a new payment)
//   - duplicate: send N verifications of ONE order id (exercises the
//     idempotent fast path; exactly one record should exist afterwards)
//   - status:    poll payment-status for one order id
//
// Usage examples:
//
//	http-loadgen -base=http://127.0.0.1:8080 -mode=verify -amount=5 -n=5000 -c=16
//	http-loadgen -base=http://127.0.0.1:8080 -mode=duplicate -order=ord-hot -amount=5 -n=8000 -c=16
//
// Notes:
//   - Uses the amount-hint pull path, so no gateway credentials are needed.
//   - Prints a one-line summary with duration and approximate throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeVerify    modeType = "verify"
	modeDuplicate modeType = "duplicate"
	modeStatus    modeType = "status"
)

func main() {
	var (
		base   = flag.String("base", "http://127.0.0.1:8080", "Base URL including scheme and host, e.g. http://127.0.0.1:8080")
		modeS  = flag.String("mode", string(modeVerify), "Mode: verify|duplicate|status")
		order  = flag.String("order", "ord-load", "Order id for duplicate/status modes; prefix for verify mode")
		amount = flag.Int("amount", 5, "Amount hint sent with each verification")
		N      = flag.Int("n", 5000, "Total requests to send")
		conc   = flag.Int("c", 8, "Number of concurrent workers")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 20*time.Second, "Overall timeout for the loadgen run")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 256, "Max idle connections total")
		maxIdlePer = flag.Int("max_idle_per_host", 256, "Max idle connections per host")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeVerify && m != modeDuplicate && m != modeStatus {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want verify|duplicate|status)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}

	baseURL := strings.TrimRight(*base, "/")

	// Configure HTTP client with connection reuse
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdlePer,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var ok2xx, non2xx int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var u string
			switch m {
			case modeVerify:
				// Distinct order per request so every call is a fresh record.
				orderID := fmt.Sprintf("%s-%d-%d", *order, id, i)
				u = baseURL + "/api/verify-payment-cashfree?" + url.Values{
					"order_id": {orderID},
					"amount":   {fmt.Sprint(*amount)},
				}.Encode()
			case modeDuplicate:
				u = baseURL + "/api/verify-payment-cashfree?" + url.Values{
					"order_id": {*order},
					"amount":   {fmt.Sprint(*amount)},
				}.Encode()
			case modeStatus:
				u = baseURL + "/api/payment-status?" + url.Values{"order_id": {*order}}.Encode()
			}
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			resp, err := client.Do(req)
			if err == nil {
				// Drain and close body to enable connection reuse
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				if resp.StatusCode < 300 {
					atomic.AddInt64(&ok2xx, 1)
				} else {
					atomic.AddInt64(&non2xx, 1)
				}
			} else {
				// Brief backoff on errors to avoid hot spinning
				time.Sleep(200 * time.Microsecond)
			}
		}
	}

	// Split N across conc workers
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	ops := float64(*N) / elapsed.Seconds()
	fmt.Printf("LoadGen: mode=%s N=%d c=%d go=%d ok=%d non2xx=%d Duration=%s Throughput=%.0f req/s\n",
		m, *N, *conc, runtime.GOMAXPROCS(0), ok2xx, non2xx, elapsed.Truncate(time.Millisecond), ops)
}
