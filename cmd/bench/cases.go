// README: Bench cases; DB/Redis checks, the full ride and payment flow, a cancel race and a read throughput run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"waykel/internal/infra"
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

	tokens map[string]string
	uids   map[string]string
	trID   string
	rideID string
	bidID  string
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

type persona struct {
	key   string
	role  string
	extra map[string]interface{}
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tokens: map[string]string{},
		uids:   map[string]string{},
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
	if err := r.mintTokens(); err != nil {
		return []Result{{Name: "tokens", Status: statusFail, Note: err.Error()}}
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

// mintTokens signs one token per persona. UIDs are unique per run so repeated
// runs never collide on ownership.
func (r *Runner) mintTokens() error {
	run := uuid.NewString()[:8]
	r.trID = "bench-tr-" + run
	personas := []persona{
		{key: "customer", role: "customer"},
		{key: "transporter", role: "transporter", extra: map[string]interface{}{"transporter_id": r.trID}},
		{key: "driver", role: "driver"},
		{key: "other-driver", role: "driver"},
		{key: "admin", role: "admin"},
	}
	now := time.Now().Unix()
	for _, p := range personas {
		claims := map[string]interface{}{"role": p.role}
		for k, v := range p.extra {
			claims[k] = v
		}
		uid := "bench-" + p.key + "-" + run
		tok, err := infra.SignJWT(r.cfg.JWTSecret, r.cfg.JWTIssuer, uid, claims, 3600, now)
		if err != nil {
			return err
		}
		r.tokens[p.key] = tok
		r.uids[p.key] = uid
	}
	return nil
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusFail, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
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
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
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
				return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
			},
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK, nil)
			},
		},
		{
			Name: "API: ride lifecycle table",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/api/lifecycle/rides", "customer", nil, http.StatusOK, func(body map[string]any) string {
					if rows, _ := body["statuses"].([]any); len(rows) != 10 {
						return fmt.Sprintf("statuses=%d", len(rows))
					}
					return ""
				})
			},
		},

		// Ride flow
		{
			Name: "Ride: customer creates ride",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/rides", "customer", map[string]any{
					"pickup_address":   "Bench depot",
					"drop_address":     "Bench warehouse",
					"load_description": "12 pallets",
				}, http.StatusCreated, func(body map[string]any) string {
					r.rideID, _ = body["id"].(string)
					if r.rideID == "" || body["status"] != "pending" {
						return fmt.Sprintf("unexpected body %v", body)
					}
					return ""
				})
			},
		},
		r.rideStep("Ride: transporter bids (opens bidding)", http.MethodPost, "/bids", "transporter",
			map[string]any{"amount": 185000, "currency": "INR"}, http.StatusCreated, func(r *Runner, body map[string]any) string {
				r.bidID, _ = body["id"].(string)
				if r.bidID == "" {
					return "no bid id"
				}
				return ""
			}),
		r.rideStep("Ride: customer lists bids", http.MethodGet, "/bids", "customer", nil, http.StatusOK, nil),
		r.rideStep("Ride: driver cannot list bids", http.MethodGet, "/bids", "other-driver", nil, http.StatusForbidden, nil),
		{
			Name: "Ride: transporter cannot accept own bid",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bidID == "" {
					return Result{Status: statusSkip, Note: "no bid"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/bids/"+r.bidID+"/accept", "transporter", nil, http.StatusForbidden, nil)
			},
		},
		{
			Name: "Ride: customer accepts bid",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.bidID == "" {
					return Result{Status: statusSkip, Note: "no bid"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/bids/"+r.bidID+"/accept", "customer", nil, http.StatusOK, statusIs("accepted"))
			},
		},
		r.rideStep("Ride: assignment needs a driver", http.MethodPost, "/status", "transporter", map[string]any{"status": "assigned"}, http.StatusConflict, nil),
		{
			Name: "Ride: transporter assigns driver",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/assign", "transporter",
					map[string]any{"driver_id": r.subject("driver")}, http.StatusOK, statusIs("assigned"))
			},
		},
		r.rideStep("Ride: other driver cannot start", http.MethodPost, "/status", "other-driver", map[string]any{"status": "active"}, http.StatusForbidden, nil),
		r.rideStep("Ride: dry-run says other driver is denied", http.MethodPost, "/authorize", "other-driver", map[string]any{"action": "START_TRIP"}, http.StatusOK,
			func(_ *Runner, body map[string]any) string {
				if body["allowed"] != false || !strings.Contains(fmt.Sprint(body["reason"]), "assigned driver") {
					return fmt.Sprintf("unexpected body %v", body)
				}
				return ""
			}),
		r.rideStep("Ride: skipping to completed is rejected", http.MethodPost, "/status", "driver", map[string]any{"status": "completed"}, http.StatusConflict, nil),
		r.rideStep("Ride: unknown status is rejected", http.MethodPost, "/status", "driver", map[string]any{"status": "teleported"}, http.StatusBadRequest, nil),
		r.rideStep("Ride: driver starts trip", http.MethodPost, "/status", "driver", map[string]any{"status": "active"}, http.StatusOK, statusStep("active")),
		r.rideStep("Ride: driver marks pickup", http.MethodPost, "/status", "driver", map[string]any{"status": "pickup_done"}, http.StatusOK, statusStep("pickup_done")),
		r.rideStep("Ride: driver marks delivery", http.MethodPost, "/status", "driver", map[string]any{"status": "delivery_done"}, http.StatusOK, statusStep("delivery_done")),
		r.rideStep("Ride: driver completes trip", http.MethodPost, "/status", "driver", map[string]any{"status": "completed"}, http.StatusOK, statusStep("completed")),
		r.rideStep("Ride: completed cannot be cancelled", http.MethodPost, "/status", "admin", map[string]any{"status": "cancelled"}, http.StatusConflict, nil),
		r.rideStep("Ride: history has every step", http.MethodGet, "/events", "customer", nil, http.StatusOK, func(_ *Runner, body map[string]any) string {
			if events, _ := body["events"].([]any); len(events) != 8 {
				return fmt.Sprintf("events=%d", len(events))
			}
			return ""
		}),
		{
			Name: "Consistency: status_version counts transitions",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil || r.rideID == "" {
					return Result{Status: statusSkip, Note: "needs db and ride"}
				}
				var status string
				var version int
				if err := r.db.QueryRow(ctx, "SELECT status, status_version FROM rides WHERE id = $1", r.rideID).Scan(&status, &version); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if status != "completed" || version != 7 {
					return Result{Status: statusFail, Note: fmt.Sprintf("status=%s version=%d", status, version)}
				}
				return Result{Status: statusPass}
			},
		},

		// Payment flow
		r.rideStep("Payment: customer cannot invoice", http.MethodPost, "/payment/status", "customer", map[string]any{"status": "invoiced"}, http.StatusForbidden, nil),
		{
			Name: "Payment: admin invoices and update is published",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.publishedPayment(ctx)
			},
		},
		r.rideStep("Payment: repeat invoice is rejected", http.MethodPost, "/payment/status", "admin", map[string]any{"status": "invoiced"}, http.StatusConflict, nil),
		r.rideStep("Payment: admin marks paid", http.MethodPost, "/payment/status", "admin", map[string]any{"status": "paid"}, http.StatusOK, statusStep("paid")),
		r.rideStep("Payment: dispute opened", http.MethodPost, "/payment/status", "admin", map[string]any{"status": "disputed", "note": "bench"}, http.StatusOK, statusStep("disputed")),
		r.rideStep("Payment: dispute refunded", http.MethodPost, "/payment/status", "admin", map[string]any{"status": "refunded"}, http.StatusOK, statusStep("refunded")),
		r.rideStep("Payment: refunded is terminal", http.MethodPost, "/payment/status", "admin", map[string]any{"status": "paid"}, http.StatusConflict, nil),

		// Concurrency
		{
			Name: "Concurrency: one of many cancels wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentCancel(ctx, r)
			},
		},

		// Performance
		{
			Name: "Perf: ride read throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return perfLoad(ctx, r, http.MethodGet, "/api/rides/"+r.rideID, "customer")
			},
		},
	}
}

// rideStep builds a case against /api/rides/{rideID}{suffix}; it is skipped
// until a ride has been created.
func (r *Runner) rideStep(name, method, suffix, who string, body any, want int, check func(*Runner, map[string]any) string) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			if r.rideID == "" {
				return Result{Status: statusSkip, Note: "no ride"}
			}
			var fn func(map[string]any) string
			if check != nil {
				fn = func(b map[string]any) string { return check(r, b) }
			}
			return r.expect(ctx, method, "/api/rides/"+r.rideID+suffix, who, body, want, fn)
		},
	}
}

func statusIs(want string) func(map[string]any) string {
	return func(body map[string]any) string {
		if body["status"] != want {
			return fmt.Sprintf("status=%v", body["status"])
		}
		return ""
	}
}

func statusStep(want string) func(*Runner, map[string]any) string {
	is := statusIs(want)
	return func(_ *Runner, body map[string]any) string { return is(body) }
}

func (r *Runner) expect(ctx context.Context, method, path, who string, body any, want int, check func(map[string]any) string) Result {
	start := time.Now()
	code, out, err := r.call(ctx, method, path, who, body)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d body=%v", code, want, out)}
	}
	if check != nil {
		if note := check(out); note != "" {
			return Result{Status: statusFail, Latency: latency, Note: note}
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
}

func (r *Runner) call(ctx context.Context, method, path, who string, body any) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+r.tokens[who])
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, nil
}

func (r *Runner) subject(who string) string {
	return r.uids[who]
}

func (r *Runner) publishedPayment(ctx context.Context) Result {
	if r.rideID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	if r.redis == nil {
		return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/payment/status", "admin", map[string]any{"status": "invoiced"}, http.StatusOK, statusIs("invoiced"))
	}
	sub := r.redis.Subscribe(ctx, "payment:updates")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	res := r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/payment/status", "admin", map[string]any{"status": "invoiced"}, http.StatusOK, statusIs("invoiced"))
	if res.Status != statusPass {
		return res
	}
	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for {
		msg, err := sub.ReceiveMessage(waitCtx)
		if err != nil {
			return Result{Status: statusFail, Latency: res.Latency, Note: "no update published: " + err.Error()}
		}
		if strings.Contains(msg.Payload, r.rideID) {
			return Result{Status: statusPass, Latency: res.Latency, Note: "published"}
		}
	}
}

func concurrentCancel(ctx context.Context, r *Runner) Result {
	code, body, err := r.call(ctx, http.MethodPost, "/api/rides", "customer", map[string]any{
		"pickup_address": "Race start",
		"drop_address":   "Race end",
	})
	if err != nil || code != http.StatusCreated {
		return Result{Status: statusFail, Note: fmt.Sprintf("create: status=%d err=%v", code, err)}
	}
	id, _ := body["id"].(string)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succ      int
		conflicts int
		other     int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Admin so that losers fail on the transition, not on authorization.
			code, _, err := r.call(ctx, http.MethodPost, "/api/rides/"+id+"/status", "admin", map[string]any{"status": "cancelled"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				other++
			case code == http.StatusOK:
				succ++
			case code == http.StatusConflict:
				conflicts++
			default:
				other++
			}
		}()
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d other=%d", succ, conflicts, other)
	if succ != 1 || other != 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, method, path, who string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.call(ctx, method, path, who, nil)
				mu.Lock()
				if err != nil || code != http.StatusOK {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
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
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
