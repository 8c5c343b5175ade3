// Package reports reads provider metrics and shapes them into display-ready
// sections. Each section succeeds or fails on its own.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zfogg/beacon/internal/connect"
	apierrors "github.com/zfogg/beacon/internal/errors"
	"github.com/zfogg/beacon/internal/integrations"
	"github.com/zfogg/beacon/internal/logger"
	"github.com/zfogg/beacon/internal/util"
	"go.uber.org/zap"
)

// Section states.
const (
	StatusOK            = "ok"
	StatusError         = "error"
	StatusNotConfigured = "not_configured"
)

// Section is one independently loaded block of a report.
type Section[T any] struct {
	Status string              `json:"status"`
	Data   T                   `json:"data,omitempty"`
	Error  *apierrors.APIError `json:"error,omitempty"`
}

func ok[T any](v T) Section[T] {
	return Section[T]{Status: StatusOK, Data: v}
}

func notConfigured[T any](p integrations.Provider, what string) Section[T] {
	return Section[T]{
		Status: StatusNotConfigured,
		Error:  apierrors.NotConnected(string(p)).WithDetails(what),
	}
}

// failed converts err into an error section. Missing connections and expired
// tokens become not_configured.
func failed[T any](p integrations.Provider, err error) Section[T] {
	if errors.Is(err, integrations.ErrNotConnected) || errors.Is(err, connect.ErrTokenExpired) {
		return Section[T]{Status: StatusNotConfigured, Error: connect.APIError(p, err)}
	}
	return Section[T]{Status: StatusError, Error: connect.APIError(p, err)}
}

// load runs fn and wraps its result, logging failures.
func load[T any](ctx context.Context, p integrations.Provider, section string, fn func(context.Context) (T, error)) Section[T] {
	v, err := fn(ctx)
	if err != nil {
		logger.Log.Warn("Report section failed",
			logger.WithProvider(string(p)),
			zap.String("section", section),
			zap.Error(err),
		)
		return failed[T](p, err)
	}
	return ok(v)
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 28
	maxRangeDays     = 366
)

// StartDate formats the first day.
func (r DateRange) StartDate() string { return r.Start.Format(dateLayout) }

// EndDate formats the last day.
func (r DateRange) EndDate() string { return r.End.Format(dateLayout) }

// Days is the number of days in the range, counting both ends. GA4 returns
// one row per day, so this is also the row count of a daily report.
func (r DateRange) Days() int {
	return int(truncateDay(r.End).Sub(truncateDay(r.Start)).Hours()/24) + 1
}

// DefaultRange is the 28 days ending yesterday.
func DefaultRange(now time.Time) DateRange {
	end := truncateDay(now).AddDate(0, 0, -1)
	return DateRange{Start: end.AddDate(0, 0, -(defaultRangeDays - 1)), End: end}
}

// ParseRange parses YYYY-MM-DD bounds. A missing end defaults to yesterday and
// a missing start to 28 days before the end.
func ParseRange(start, end string, now time.Time) (DateRange, error) {
	r := DefaultRange(now)

	e, err := util.ParseDate(end)
	if err != nil {
		return r, fmt.Errorf("invalid end date: %w", err)
	}
	if !e.IsZero() {
		r.End = e
	}
	s, err := util.ParseDate(start)
	if err != nil {
		return r, fmt.Errorf("invalid start date: %w", err)
	}
	if s.IsZero() {
		s = r.End.AddDate(0, 0, -(defaultRangeDays - 1))
	}
	r.Start = s

	if r.Start.After(r.End) {
		return r, fmt.Errorf("start date is after end date")
	}
	if r.Days() > maxRangeDays {
		return r, fmt.Errorf("date range exceeds %d days", maxRangeDays)
	}
	return r, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
