package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/slot-booking-core/internal/api"
	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/db"
	"github.com/hackgods/slot-booking-core/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	SlotLimit     int
	Racers        int
	Workers       int
	OverrideRatio float64
	CancelRatio   float64
	PostgresDSN   string
	JWTSecret     string
}

type targetSlot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Date       string
	Start      string
	Minutes    int
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Book     OperationMetrics
	Override OperationMetrics
	Cancel   OperationMetrics
	Rebook   OperationMetrics
}

type Simulator struct {
	config     SimConfig
	client     *http.Client
	adminToken string
	metrics    Metrics
	logger     *logging.Logger

	// Slots where more than one racer in the same round got a 2xx.
	doubleWins int64
}

func main() {
	logger := logging.New("info").With("service", "simulate")

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator starting",
		"slots", cfg.SlotLimit, "racers", cfg.Racers, "workers", cfg.Workers,
		"override_ratio", cfg.OverrideRatio, "cancel_ratio", cfg.CancelRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	slots, err := loadSlots(ctx, pgPool, cfg.SlotLimit)
	if err != nil {
		logger.Error("load slots", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded available slots", "count", len(slots))

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	if cfg.JWTSecret != "" {
		sim.adminToken, err = api.SignToken(cfg.JWTSecret, "simulator", api.RoleAdmin, time.Hour)
		if err != nil {
			logger.Error("sign admin token", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("JWT_SECRET not set, overrides and cancellations are skipped")
	}

	start := time.Now()
	sim.Run(context.Background(), slots)
	elapsed := time.Since(start)

	verifyCtx, cancelVerify := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelVerify()
	violations, err := verify(verifyCtx, pgPool)
	if err != nil {
		logger.Error("verify", "error", err)
		os.Exit(1)
	}

	sim.PrintReport(elapsed, violations)
	if violations > 0 || atomic.LoadInt64(&sim.doubleWins) > 0 {
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, error) {
	baseCfg, err := config.Load()
	if err != nil {
		return SimConfig{}, err
	}

	cfg := SimConfig{
		APIBaseURL:    strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		SlotLimit:     getInt("SIM_SLOT_LIMIT", 200),
		Racers:        getInt("SIM_RACERS", 8),
		Workers:       getInt("SIM_WORKERS", 16),
		OverrideRatio: getFloat("SIM_OVERRIDE_RATIO", 0.2),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.1),
		PostgresDSN:   baseCfg.PostgresDSN,
		JWTSecret:     baseCfg.JWTSecret,
	}
	if cfg.Racers < 2 {
		return SimConfig{}, fmt.Errorf("SIM_RACERS must be at least 2, got %d", cfg.Racers)
	}
	if cfg.Workers <= 0 || cfg.SlotLimit <= 0 {
		return SimConfig{}, fmt.Errorf("SIM_WORKERS and SIM_SLOT_LIMIT must be > 0")
	}
	return cfg, nil
}

func loadSlots(ctx context.Context, pool *pgxpool.Pool, limit int) ([]targetSlot, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, provider_id, to_char(date, 'YYYY-MM-DD'), to_char(start_time, 'HH24:MI'),
		       (extract(epoch FROM end_time - start_time) / 60)::int
		FROM slots
		WHERE status = 'available' AND date >= current_date
		ORDER BY date, start_time
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []targetSlot
	for rows.Next() {
		var s targetSlot
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Date, &s.Start, &s.Minutes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no available slots, run seed first")
	}
	return out, nil
}

// verify counts slots that ended up with more than one confirmed booking or
// that are marked booked without one.
func verify(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var doubles, orphans int64
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT time_slot_id FROM bookings
			WHERE status = 'confirmed'
			GROUP BY time_slot_id
			HAVING count(*) > 1
		) d
	`).Scan(&doubles)
	if err != nil {
		return 0, fmt.Errorf("count double bookings: %w", err)
	}
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM slots s
		WHERE s.status = 'booked'
		  AND NOT EXISTS (
			SELECT 1 FROM bookings b WHERE b.time_slot_id = s.id AND b.status = 'confirmed'
		  )
	`).Scan(&orphans)
	if err != nil {
		return 0, fmt.Errorf("count orphaned slots: %w", err)
	}
	return doubles + orphans, nil
}

func (s *Simulator) Run(ctx context.Context, slots []targetSlot) {
	work := make(chan targetSlot)
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for slot := range work {
				s.raceSlot(ctx, rng, slot)
			}
		}(i)
	}

	for _, slot := range slots {
		work <- slot
	}
	close(work)
	wg.Wait()
}

// raceSlot releases every racer at once against one slot, optionally mixing
// in an admin override aimed at the same window.
func (s *Simulator) raceSlot(ctx context.Context, rng *rand.Rand, slot targetSlot) {
	withOverride := s.adminToken != "" && rng.Float64() < s.config.OverrideRatio

	var (
		gate    = make(chan struct{})
		wg      sync.WaitGroup
		winners int64
		winner  atomic.Value
	)
	for i := 0; i < s.config.Racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate

			var (
				status int
				id     uuid.UUID
			)
			if withOverride && i == 0 {
				status, id = s.override(ctx, slot)
			} else {
				status, id = s.book(ctx, slot, &s.metrics.Book)
			}
			if status == http.StatusCreated {
				atomic.AddInt64(&winners, 1)
				winner.Store(id)
			}
		}(i)
	}
	close(gate)
	wg.Wait()

	if winners > 1 {
		atomic.AddInt64(&s.doubleWins, 1)
		s.logger.Error("slot booked more than once", "slot_id", slot.ID.String(), "winners", winners)
		return
	}

	if winners == 1 && s.adminToken != "" && rng.Float64() < s.config.CancelRatio {
		id := winner.Load().(uuid.UUID)
		if s.cancel(ctx, id) {
			s.book(ctx, slot, &s.metrics.Rebook)
		}
	}
}

func (s *Simulator) book(ctx context.Context, slot targetSlot, om *OperationMetrics) (int, uuid.UUID) {
	body := map[string]any{"client": fakeClient()}
	return s.post(ctx, fmt.Sprintf("/slots/%s/book", slot.ID), "", body, om)
}

func (s *Simulator) override(ctx context.Context, slot targetSlot) (int, uuid.UUID) {
	body := map[string]any{
		"provider_id":      slot.ProviderID.String(),
		"date":             slot.Date,
		"start_time":       slot.Start,
		"duration_minutes": slot.Minutes,
		"client":           fakeClient(),
	}
	return s.post(ctx, "/bookings/override", s.adminToken, body, &s.metrics.Override)
}

func (s *Simulator) cancel(ctx context.Context, bookingID uuid.UUID) bool {
	status, _ := s.post(ctx, fmt.Sprintf("/bookings/%s/cancel", bookingID), s.adminToken, nil, &s.metrics.Cancel)
	return status == http.StatusOK
}

func (s *Simulator) post(ctx context.Context, path, token string, body any, om *OperationMetrics) (int, uuid.UUID) {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, reader)
	if err != nil {
		om.Record(0, 0)
		return 0, uuid.Nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		om.Record(latency, 0)
		return 0, uuid.Nil
	}
	defer resp.Body.Close()
	om.Record(latency, resp.StatusCode)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if resp.StatusCode == http.StatusCreated {
		_ = json.NewDecoder(resp.Body).Decode(&created)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, created.ID
}

func fakeClient() map[string]any {
	return map[string]any{
		"name":         gofakeit.Name(),
		"email":        gofakeit.Email(),
		"phone":        gofakeit.Phone(),
		"service_type": gofakeit.RandomString([]string{"consultation", "follow_up", "assessment"}),
		"address": map[string]any{
			"line":        gofakeit.Street(),
			"city":        gofakeit.City(),
			"postal_code": gofakeit.Zip(),
		},
	}
}

func (s *Simulator) PrintReport(elapsed time.Duration, violations int64) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Elapsed: %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Racers per slot: %d\n\n", s.config.Racers)

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Override", &s.metrics.Override)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Rebook after cancel", &s.metrics.Rebook)

	fmt.Printf("Rounds with more than one winner: %d\n", atomic.LoadInt64(&s.doubleWins))
	fmt.Printf("Store violations: %d\n", violations)
	if violations == 0 && atomic.LoadInt64(&s.doubleWins) == 0 {
		fmt.Println("RESULT: no slot holds more than one confirmed booking")
	} else {
		fmt.Println("RESULT: FAILED")
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
