// README: Bench cases; environment checks, the pickup lifecycle, the assignment race and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// run-scoped identifiers so repeated runs do not collide
	runID    string
	workerID string
	pickupID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return &Runner{
		cfg:      cfg,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		runID:    runID,
		workerID: "bench-worker-" + runID,
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK)
		}},

		{Name: "Worker: register", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPut, "/api/workers/"+r.workerID, map[string]any{
				"name": "Bench Worker", "latitude": 6.5244, "longitude": 3.3792,
				"is_available": true, "service_radius_km": 10, "rating": 4.5,
			}, http.StatusOK)
		}},
		{Name: "Worker: invalid coords -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/workers/"+r.workerID+"/location", map[string]any{
				"latitude": 123.0, "longitude": 456.0,
			}, http.StatusBadRequest)
		}},
		{Name: "Pickup: missing fields -> 400", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/pickups", map[string]any{}, http.StatusBadRequest)
		}},
		{Name: "Pickup: create", Run: func(ctx context.Context, r *Runner) Result {
			id, res := r.createPickup(ctx)
			r.pickupID = id
			return res
		}},
		{Name: "Concurrency: many assigns on one pickup", Run: concurrentAssign},
		{Name: "Pickup: assign again -> 409", Run: func(ctx context.Context, r *Runner) Result {
			if r.pickupID == "" {
				return Result{Status: statusSkip, Note: "no pickup"}
			}
			return r.expect(ctx, http.MethodPost, "/api/pickups/"+r.pickupID+"/assign", nil, http.StatusConflict)
		}},
		{Name: "Schedule: worker schedule", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/workers/"+r.workerID+"/schedule", nil, http.StatusOK)
		}},
		{Name: "Schedule: reoptimize", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/workers/"+r.workerID+"/reoptimize", nil, http.StatusOK)
		}},
		{Name: "Status: start pickup", Run: func(ctx context.Context, r *Runner) Result {
			return r.status(ctx, "in_progress", http.StatusOK)
		}},
		{Name: "Status: complete pickup", Run: func(ctx context.Context, r *Runner) Result {
			return r.status(ctx, "completed", http.StatusOK)
		}},
		{Name: "Status: completed cannot cancel -> 409", Run: func(ctx context.Context, r *Runner) Result {
			return r.status(ctx, "cancelled", http.StatusConflict)
		}},
		{Name: "Analytics: scheduling report", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/analytics/scheduling", nil, http.StatusOK)
		}},
		{Name: "Analytics: coverage gaps", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/api/analytics/coverage-gaps", nil, http.StatusOK)
		}},

		{Name: "Perf: worker location throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodPost, "/api/workers/"+r.workerID+"/location", map[string]any{
				"latitude": 6.5244, "longitude": 3.3792,
			})
		}},
		{Name: "Perf: nearby pickups throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodGet, "/api/pickups/nearby?lat=6.5244&lng=3.3792", nil)
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass}
}

// do sends a JSON request and decodes a JSON object response when present.
func (r *Runner) do(ctx context.Context, method, path string, body any) (int, map[string]any, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)

	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, latency, nil
}

func (r *Runner) expect(ctx context.Context, method, path string, body any, want int) Result {
	code, _, latency, err := r.do(ctx, method, path, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
}

func (r *Runner) createPickup(ctx context.Context) (string, Result) {
	code, body, latency, err := r.do(ctx, http.MethodPost, "/api/pickups", map[string]any{
		"bin_id":       "bench-bin-" + r.runID,
		"customer_id":  "bench-customer-" + r.runID,
		"latitude":     6.5300,
		"longitude":    3.3800,
		"expected_fee": 20,
		"waste_type":   "general",
	})
	if err != nil {
		return "", Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusCreated {
		return "", Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
	}
	p, _ := body["pickup"].(map[string]any)
	id, _ := p["id"].(string)
	if id == "" {
		return "", Result{Status: statusFail, Latency: latency, Note: "response has no pickup id"}
	}
	return id, Result{Status: statusPass, Latency: latency, Note: "pickup=" + id}
}

func (r *Runner) status(ctx context.Context, status string, want int) Result {
	if r.pickupID == "" {
		return Result{Status: statusSkip, Note: "no pickup"}
	}
	return r.expect(ctx, http.MethodPost, "/api/pickups/"+r.pickupID+"/status", map[string]any{
		"status": status, "actor_type": "worker", "actor_id": r.workerID,
	}, want)
}

// concurrentAssign fires Concurrency assigns at the same pickup; exactly one
// may succeed and every loser must see 409.
func concurrentAssign(ctx context.Context, r *Runner) Result {
	if r.pickupID == "" {
		return Result{Status: statusSkip, Note: "no pickup"}
	}
	var (
		wg                         sync.WaitGroup
		succ, conflict, unexpected atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			code, _, _, err := r.do(ctx, http.MethodPost, "/api/pickups/"+r.pickupID+"/assign", nil)
			switch {
			case err != nil:
				unexpected.Add(1)
			case code == http.StatusOK:
				succ.Add(1)
			case code == http.StatusConflict:
				conflict.Add(1)
			default:
				unexpected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d other=%d", succ.Load(), conflict.Load(), unexpected.Load())
	if succ.Load() == 1 && unexpected.Load() == 0 {
		return Result{Status: statusPass, Note: note}
	}
	return Result{Status: statusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, _, err := r.do(ctx, method, path, payload)
				if err != nil || code >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
