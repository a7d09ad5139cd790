package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

// SimConfig drives a load run against a live api-server. Many workers book
// the same small set of slots so that conflicts are the common case.
type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	BookingRatio  float64
	CancelRatio   float64
	ReadRatio     float64
	PatientLimit  int
	ProviderLimit int
	SlotDays      int
}

type slotRef struct {
	ProviderID uuid.UUID
	Start      time.Time
}

type booked struct {
	ID        uuid.UUID
	PatientID uuid.UUID
}

type DataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef

	mu     sync.RWMutex
	booked []booked
}

func (dp *DataPool) AddBooking(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

func (dp *DataPool) RandomBooking(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	return dp.booked[rng.Intn(len(dp.booked))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Busy      int64
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
	case status == http.StatusServiceUnavailable:
		atomic.AddInt64(&om.Busy, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		return latencies[min(len(latencies)*pct/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking OperationMetrics
	Cancel  OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     *logrus.Logger
	metrics Metrics
}

func main() {
	var sim SimConfig
	flag.StringVar(&sim.APIBaseURL, "api", "http://localhost:8080", "api-server base URL")
	flag.DurationVar(&sim.Duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&sim.Workers, "workers", 20, "concurrent clients")
	flag.Float64Var(&sim.BookingRatio, "booking", 0.6, "share of booking requests")
	flag.Float64Var(&sim.CancelRatio, "cancel", 0.1, "share of cancellations")
	flag.Float64Var(&sim.ReadRatio, "read", 0.3, "share of reads")
	flag.IntVar(&sim.PatientLimit, "patients", 1000, "patients to draw from")
	flag.IntVar(&sim.ProviderLimit, "providers", 5, "providers to contend on")
	flag.IntVar(&sim.SlotDays, "days", 7, "slot window to load per provider")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	log := bootstrap.NewLogger(cfg)

	if err := validateConfig(&sim); err != nil {
		log.WithError(err).Fatal("invalid simulation config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg.AutoMigrate = false
	pgPool, err := db.ConnectPostgres(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pgPool.Close()

	s := &Simulator{
		config: sim,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	s.pool, err = s.loadDataPool(ctx, pgPool)
	if err != nil {
		log.WithError(err).Fatal("load data pool")
	}
	log.WithFields(logrus.Fields{
		"patients": len(s.pool.Patients),
		"slots":    len(s.pool.Slots),
	}).Info("data pool loaded")

	s.Run()
	s.PrintReport()
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("at least one ratio must be > 0")
	}
	cfg.BookingRatio /= total
	cfg.CancelRatio /= total
	cfg.ReadRatio /= total
	return nil
}

func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dp := &DataPool{}

	patients, err := queryIDs(ctx, pool, `SELECT id FROM patients ORDER BY created_at LIMIT $1`, s.config.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	providers, err := queryIDs(ctx, pool, `SELECT id FROM providers WHERE slot_duration_minutes IS NOT NULL ORDER BY created_at LIMIT $1`, s.config.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	dp.Patients = patients

	for _, providerID := range providers {
		slots, err := s.fetchSlots(ctx, providerID)
		if err != nil {
			return nil, fmt.Errorf("fetch slots for %s: %w", providerID, err)
		}
		dp.Slots = append(dp.Slots, slots...)
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no available slots loaded")
	}
	return dp, nil
}

func queryIDs(ctx context.Context, pool *pgxpool.Pool, sql string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) fetchSlots(ctx context.Context, providerID uuid.UUID) ([]slotRef, error) {
	url := fmt.Sprintf("%s/providers/%s/slots?days=%d", s.config.APIBaseURL, providerID, s.config.SlotDays)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var days []struct {
		Slots []struct {
			Start  time.Time `json:"start"`
			Status string    `json:"status"`
		} `json:"slots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&days); err != nil {
		return nil, err
	}

	var out []slotRef
	for _, d := range days {
		for _, slot := range d.Slots {
			if slot.Status == "AVAILABLE" {
				out = append(out, slotRef{ProviderID: providerID, Start: slot.Start})
			}
		}
	}
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.WithFields(logrus.Fields{
		"duration": s.config.Duration.String(),
		"workers":  s.config.Workers,
	}).Info("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()

	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) call(ctx context.Context, method, path string, patientID uuid.UUID, body any) (*http.Response, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", patientID.String())
	req.Header.Set("X-Actor-Role", "patient")

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	resp, latency, err := s.call(ctx, http.MethodPost, "/appointments", patientID, map[string]string{
		"provider_id":           slot.ProviderID.String(),
		"appointment_date_time": slot.Start.Format(time.RFC3339),
	})
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, 0)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddBooking(booked{ID: appt.ID, PatientID: patientID})
		}
	}
	s.metrics.Booking.Record(latency, resp.StatusCode)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	resp, latency, err := s.call(ctx, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel", b.PatientID, nil)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Cancel.Record(latency, 0)
		}
		return
	}
	resp.Body.Close()
	s.metrics.Cancel.Record(latency, resp.StatusCode)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.RandomBooking(rng)
	if !ok {
		return
	}

	resp, latency, err := s.call(ctx, http.MethodGet, "/appointments/"+b.ID.String(), b.PatientID, nil)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Read.Record(latency, 0)
		}
		return
	}
	resp.Body.Close()
	s.metrics.Read.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	rule := strings.Repeat("=", 80)
	fmt.Println("\n" + rule)
	fmt.Println("SIMULATION REPORT")
	fmt.Println(rule)
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Contended slots: %d\n\n", len(s.pool.Slots))

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Read", &s.metrics.Read)

	// Every slot can be won at most once per booking that is not later
	// cancelled, so successes above the slot count mean double booking.
	if wins := atomic.LoadInt64(&s.metrics.Booking.Success); wins > int64(len(s.pool.Slots))+atomic.LoadInt64(&s.metrics.Cancel.Success) {
		fmt.Printf("WARNING: %d bookings succeeded for %d slots\n", wins, len(s.pool.Slots))
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", om.Success, pct(om.Success))
	if om.Conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", om.Conflict, pct(om.Conflict))
	}
	if om.Busy > 0 {
		fmt.Printf("  Busy: %d (%.1f%%)\n", om.Busy, pct(om.Busy))
	}
	if om.Error > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", om.Error, pct(om.Error))
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
