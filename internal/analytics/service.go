package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/enterprise/fraud-engine/internal/models"
	"github.com/enterprise/fraud-engine/internal/repositories"
)

const (
	liveCountersKey    = "analytics:live"
	recentDecisionsKey = "analytics:recent_decisions"
	summaryCacheKey    = "analytics:summary"

	recentDecisionsMax = 100
	trendDays          = 30
	peakHours          = 3
)

// Cache is the Redis surface the service needs
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	IncrementCounters(ctx context.Context, key string, fields map[string]int64) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	PushCapped(ctx context.Context, key string, value interface{}, max int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// AnalyticsService provides dashboard analytics over the transaction log
type AnalyticsService struct {
	store      repositories.AnalyticsStore
	cache      Cache
	summaryTTL time.Duration
	now        func() time.Time
}

// NewAnalyticsService creates a new analytics service; cache may be nil
func NewAnalyticsService(store repositories.AnalyticsStore, cache Cache, summaryTTL time.Duration) *AnalyticsService {
	return &AnalyticsService{
		store:      store,
		cache:      cache,
		summaryTTL: summaryTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DashboardSummary is the headline numbers for today, this month and overall
type DashboardSummary struct {
	Today   TodaySummary   `json:"today"`
	Month   MonthSummary   `json:"month"`
	Overall OverallSummary `json:"overall"`
}

type TodaySummary struct {
	TotalTransactions   int     `json:"totalTransactions"`
	FlaggedTransactions int     `json:"flaggedTransactions"`
	OpenAlerts          int     `json:"openAlerts"`
	FraudDetectionRate  float64 `json:"fraudDetectionRate"` // percent
	AvgRiskScore        float64 `json:"avgRiskScore"`
	LossesPrevented     float64 `json:"lossesPrevented"`
	TotalAmount         float64 `json:"totalAmount"`
}

type MonthSummary struct {
	TotalTransactions   int     `json:"totalTransactions"`
	FlaggedTransactions int     `json:"flaggedTransactions"`
	TotalAmount         float64 `json:"totalAmount"`
	FlaggedAmount       float64 `json:"flaggedAmount"`
	LossesPrevented     float64 `json:"lossesPrevented"`
}

type OverallSummary struct {
	AvgRiskScore         float64 `json:"avgRiskScore"`
	FraudCasesLast30Days int     `json:"fraudCasesLast30Days"`
}

// TrendData is the daily breakdown of the last 30 days
type TrendData struct {
	Last30Days []models.DailyTrend `json:"last30Days"`
	Summary    TrendTotals         `json:"summary"`
}

type TrendTotals struct {
	TotalTransactions int     `json:"totalTransactions"`
	TotalFlagged      int     `json:"totalFlagged"`
	TotalAmount       float64 `json:"totalAmount"`
}

// HourlyAnalysis is today's activity by UTC hour
type HourlyAnalysis struct {
	HourlyVolume     [24]int     `json:"hourlyVolume"`
	HourlyFraudCount [24]int     `json:"hourlyFraudCount"`
	HourlyAmount     [24]float64 `json:"hourlyAmount"`
	PeakFraudHours   []int       `json:"peakFraudHours"`
}

// LiveView is the real-time counters plus the newest decisions
type LiveView struct {
	Counters models.LiveCounters    `json:"counters"`
	Recent   []models.DecisionEvent `json:"recent"`
}

// GetSummary returns the dashboard summary, cached briefly when a cache is configured
func (s *AnalyticsService) GetSummary(ctx context.Context) (*DashboardSummary, error) {
	if s.cache != nil {
		var cached DashboardSummary
		if err := s.cache.Get(ctx, summaryCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	now := s.now()
	todayStart := startOfDay(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var (
		today, month *models.PeriodStats
		avgRisk      float64
		fraudCases   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		today, err = s.store.Aggregate(gctx, todayStart, todayStart.AddDate(0, 0, 1))
		return err
	})
	g.Go(func() (err error) {
		month, err = s.store.Aggregate(gctx, monthStart, monthStart.AddDate(0, 1, 0))
		return err
	})
	g.Go(func() (err error) {
		avgRisk, err = s.store.AverageRiskScore(gctx)
		return err
	})
	g.Go(func() (err error) {
		fraudCases, err = s.store.CountFraudSince(gctx, todayStart.AddDate(0, 0, -trendDays))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to build dashboard summary: %w", err)
	}

	rate := 0.0
	if today.TotalTransactions > 0 {
		rate = round2(float64(today.FlaggedTransactions) / float64(today.TotalTransactions) * 100)
	}

	summary := &DashboardSummary{
		Today: TodaySummary{
			TotalTransactions:   today.TotalTransactions,
			FlaggedTransactions: today.FlaggedTransactions,
			OpenAlerts:          today.FlaggedTransactions,
			FraudDetectionRate:  rate,
			AvgRiskScore:        round2(today.AvgRiskScore),
			LossesPrevented:     today.FlaggedAmount,
			TotalAmount:         today.TotalAmount,
		},
		Month: MonthSummary{
			TotalTransactions:   month.TotalTransactions,
			FlaggedTransactions: month.FlaggedTransactions,
			TotalAmount:         month.TotalAmount,
			FlaggedAmount:       month.FlaggedAmount,
			LossesPrevented:     month.FlaggedAmount,
		},
		Overall: OverallSummary{
			AvgRiskScore:         round2(avgRisk),
			FraudCasesLast30Days: fraudCases,
		},
	}

	if s.cache != nil && s.summaryTTL > 0 {
		if err := s.cache.Set(ctx, summaryCacheKey, summary, s.summaryTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache dashboard summary")
		}
	}
	return summary, nil
}

// GetTrends returns one entry per UTC day for the last 30 days, today included
func (s *AnalyticsService) GetTrends(ctx context.Context) (*TrendData, error) {
	todayStart := startOfDay(s.now())
	from := todayStart.AddDate(0, 0, -(trendDays - 1))

	points, err := s.store.Activity(ctx, from, todayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load trend data: %w", err)
	}

	days := make([]models.DailyTrend, trendDays)
	index := make(map[string]int, trendDays)
	for i := range days {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		days[i] = models.DailyTrend{Date: date}
		index[date] = i
	}

	trends := &TrendData{}
	for _, p := range points {
		i, ok := index[p.Timestamp.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		days[i].Total++
		days[i].Amount += p.Amount
		if p.IsFraud {
			days[i].Flagged++
		}
	}
	for _, d := range days {
		trends.Summary.TotalTransactions += d.Total
		trends.Summary.TotalFlagged += d.Flagged
		trends.Summary.TotalAmount += d.Amount
	}
	trends.Last30Days = days
	return trends, nil
}

// GetHourly returns today's volume, fraud count and amount per hour and the busiest fraud hours
func (s *AnalyticsService) GetHourly(ctx context.Context) (*HourlyAnalysis, error) {
	todayStart := startOfDay(s.now())
	points, err := s.store.Activity(ctx, todayStart, todayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load hourly data: %w", err)
	}

	h := &HourlyAnalysis{}
	for _, p := range points {
		hour := p.Timestamp.UTC().Hour()
		h.HourlyVolume[hour]++
		h.HourlyAmount[hour] += p.Amount
		if p.IsFraud {
			h.HourlyFraudCount[hour]++
		}
	}
	h.PeakFraudHours = PeakHours(h.HourlyFraudCount, peakHours)
	return h, nil
}

// PeakHours returns up to n hours with the most fraud, busiest first, earlier hour on ties
func PeakHours(counts [24]int, n int) []int {
	hours := make([]int, 24)
	for i := range hours {
		hours[i] = i
	}
	sort.SliceStable(hours, func(i, j int) bool { return counts[hours[i]] > counts[hours[j]] })

	peaks := []int{}
	for _, hour := range hours[:n] {
		if counts[hour] > 0 {
			peaks = append(peaks, hour)
		}
	}
	return peaks
}

// RecordDecision folds one decision into the live counters and the recent list
func (s *AnalyticsService) RecordDecision(ctx context.Context, event *models.DecisionEvent) error {
	if s.cache == nil {
		return nil
	}

	fields := map[string]int64{"total": 1}
	fields["method:"+string(event.Method)] = 1
	fields["severity:"+string(event.Severity)] = 1
	if event.IsFraud {
		fields["flagged"] = 1
	}
	if err := s.cache.IncrementCounters(ctx, liveCountersKey, fields); err != nil {
		return fmt.Errorf("failed to update live counters: %w", err)
	}
	if err := s.cache.PushCapped(ctx, recentDecisionsKey, event, recentDecisionsMax); err != nil {
		return fmt.Errorf("failed to record recent decision: %w", err)
	}
	return nil
}

// HandleDecision records d; it has the pipeline sink signature
func (s *AnalyticsService) HandleDecision(ctx context.Context, tx *models.Transaction, d *models.Decision) {
	if err := s.RecordDecision(ctx, models.NewDecisionEvent(tx, d)); err != nil {
		log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Live analytics not updated")
	}
}

// GetLive reads the live counters and the newest limit decisions
func (s *AnalyticsService) GetLive(ctx context.Context, limit int) (*LiveView, error) {
	view := &LiveView{
		Counters: models.LiveCounters{ByMethod: map[string]int64{}, BySeverity: map[string]int64{}},
		Recent:   []models.DecisionEvent{},
	}
	if s.cache == nil {
		return view, nil
	}

	raw, err := s.cache.HGetAll(ctx, liveCountersKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read live counters: %w", err)
	}
	view.Counters = ParseLiveCounters(raw)

	if limit <= 0 || limit > recentDecisionsMax {
		limit = 20
	}
	items, err := s.cache.LRange(ctx, recentDecisionsKey, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("failed to read recent decisions: %w", err)
	}
	for _, item := range items {
		var event models.DecisionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			log.Warn().Err(err).Msg("Skipping undecodable recent decision")
			continue
		}
		view.Recent = append(view.Recent, event)
	}
	return view, nil
}

// ParseLiveCounters converts the Redis hash into typed counters
func ParseLiveCounters(raw map[string]string) models.LiveCounters {
	c := models.LiveCounters{ByMethod: map[string]int64{}, BySeverity: map[string]int64{}}
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == "total":
			c.Total = n
		case field == "flagged":
			c.Flagged = n
		case strings.HasPrefix(field, "method:"):
			c.ByMethod[strings.TrimPrefix(field, "method:")] = n
		case strings.HasPrefix(field, "severity:"):
			c.BySeverity[strings.TrimPrefix(field, "severity:")] = n
		}
	}
	if c.Total > 0 {
		c.FraudRate = round2(float64(c.Flagged) / float64(c.Total) * 100)
	}
	return c
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
