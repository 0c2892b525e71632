package stats

import (
	"context"
	"fmt"
	"time"

	"veriform/models"

	"gorm.io/gorm"
)

// Aggregator computes read-only rollups over the submission set. It never
// mutates the registry; aborting a slow query via the caller's context is
// always safe.
type Aggregator struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

type Overview struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	ConversionRate float64          `json:"conversion_rate"`
	RecentCount    int64            `json:"recent_count"`
	MonthToDate    int64            `json:"month_to_date"`
	WindowDays     int              `json:"window_days"`
}

type InvestmentByStatus struct {
	Status  string  `json:"status"`
	Count   int64   `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

type GroupStat struct {
	Group           string  `json:"group"`
	Count           int64   `json:"count"`
	TotalInvestment float64 `json:"total_investment"`
}

type AgeBucket struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// ageBoundaries are the fixed histogram edges; the last bucket is open-ended.
var ageBoundaries = []int{16, 25, 35, 50, 65}

// Overview returns the dashboard numbers: totals, per-status counts, the
// approved/total conversion rate, and counts for the trailing window and the
// current month.
func (a *Aggregator) Overview(ctx context.Context, windowDays int) (*Overview, error) {
	db := a.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Submission{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := db.Model(&models.Submission{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count per status: %w", err)
	}

	byStatus := make(map[string]int64, len(models.ValidStatuses))
	for _, s := range models.ValidStatuses {
		byStatus[s] = 0
	}
	for _, row := range rows {
		byStatus[row.Status] = row.Count
	}

	now := time.Now()
	windowStart := now.AddDate(0, 0, -windowDays)
	var recent int64
	if err := db.Model(&models.Submission{}).Where("created_at >= ?", windowStart).Count(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent submissions: %w", err)
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var monthly int64
	if err := db.Model(&models.Submission{}).Where("created_at >= ?", monthStart).Count(&monthly).Error; err != nil {
		return nil, fmt.Errorf("failed to count monthly submissions: %w", err)
	}

	conversion := 0.0
	if total > 0 {
		conversion = float64(byStatus[models.StatusApproved]) / float64(total) * 100
	}

	return &Overview{
		Total:          total,
		ByStatus:       byStatus,
		ConversionRate: conversion,
		RecentCount:    recent,
		MonthToDate:    monthly,
		WindowDays:     windowDays,
	}, nil
}

// InvestmentByStatus sums and averages the investment amount of trading
// submissions grouped by review status.
func (a *Aggregator) InvestmentByStatus(ctx context.Context) ([]InvestmentByStatus, error) {
	var rows []InvestmentByStatus
	err := a.db.WithContext(ctx).Model(&models.Submission{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(investment_amount), 0) as total, COALESCE(AVG(investment_amount), 0) as average").
		Where("kind = ?", models.KindTrading).
		Group("status").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate investments: %w", err)
	}
	return rows, nil
}

// TopGroups returns the k largest groups by submission count for a
// categorical field. Only whitelisted columns are accepted.
func (a *Aggregator) TopGroups(ctx context.Context, field string, k int) ([]GroupStat, error) {
	column := ""
	switch field {
	case "state":
		column = "state"
	case "course":
		column = "course_name"
	default:
		return nil, fmt.Errorf("unsupported group-by field %q", field)
	}
	if k <= 0 {
		k = 5
	}

	var rows []GroupStat
	err := a.db.WithContext(ctx).Model(&models.Submission{}).
		Select(column + " as \"group\", COUNT(*) as count, COALESCE(SUM(investment_amount), 0) as total_investment").
		Where(column + " != ''").
		Group(column).
		Order("count DESC").
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s groups: %w", field, err)
	}
	return rows, nil
}

// AgeHistogram buckets applicants by whole-year age at aggregation time
// using fixed boundaries. Date arithmetic happens here rather than in SQL
// so the bucketing matches the validator's age computation exactly.
func (a *Aggregator) AgeHistogram(ctx context.Context) ([]AgeBucket, error) {
	var dobs []time.Time
	err := a.db.WithContext(ctx).Model(&models.Submission{}).
		Pluck("date_of_birth", &dobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load birth dates: %w", err)
	}

	now := time.Now()
	counts := make([]int64, len(ageBoundaries))
	for _, dob := range dobs {
		age := models.WholeYears(dob, now)
		idx := len(ageBoundaries) - 1
		for i := 0; i < len(ageBoundaries)-1; i++ {
			if age < ageBoundaries[i+1] {
				idx = i
				break
			}
		}
		if age < ageBoundaries[0] {
			continue
		}
		counts[idx]++
	}

	buckets := make([]AgeBucket, len(ageBoundaries))
	for i, lower := range ageBoundaries {
		label := fmt.Sprintf("%d+", lower)
		if i < len(ageBoundaries)-1 {
			label = fmt.Sprintf("%d-%d", lower, ageBoundaries[i+1]-1)
		}
		buckets[i] = AgeBucket{Label: label, Count: counts[i]}
	}
	return buckets, nil
}
