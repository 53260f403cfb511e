// Package budget enforces the per-day and per-month cost ceilings for
// inference calls.
package budget

import (
	"context"
	"sync"
	"time"
)

type Limits struct {
	Daily   float64
	Monthly float64
}

type Usage struct {
	Day            string     `json:"day"`
	DaySpent       float64    `json:"day_spent"`
	DailyLimit     float64    `json:"daily_limit"`
	Month          string     `json:"month"`
	MonthSpent     float64    `json:"month_spent"`
	MonthlyLimit   float64    `json:"monthly_limit"`
	Exhausted      bool       `json:"exhausted"`
	SuspendedUntil *time.Time `json:"suspended_until,omitempty"`
}

// Tracker reserves cost against the current budget window. Once a window is
// exhausted every reservation in it is refused.
type Tracker interface {
	Reserve(ctx context.Context, cost float64) (bool, error)
	// Suspend refuses reservations for d, or until the end of the current day
	// when d is not positive.
	Suspend(ctx context.Context, d time.Duration) error
	Snapshot(ctx context.Context) (Usage, error)
}

func dayKey(t time.Time) string   { return t.Format("2006-01-02") }
func monthKey(t time.Time) string { return t.Format("2006-01") }

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func endOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
}

func over(limit, spent float64) bool {
	return limit > 0 && spent > limit+1e-9
}

type MemoryTracker struct {
	Limits Limits
	Now    func() time.Time

	mu             sync.Mutex
	day            string
	daySpent       float64
	month          string
	monthSpent     float64
	exhaustedDay   string
	exhaustedMonth string
	suspendedUntil time.Time
}

func NewMemoryTracker(limits Limits) *MemoryTracker {
	return &MemoryTracker{Limits: limits, Now: time.Now}
}

func (m *MemoryTracker) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *MemoryTracker) roll(now time.Time) {
	if d := dayKey(now); d != m.day {
		m.day = d
		m.daySpent = 0
	}
	if mo := monthKey(now); mo != m.month {
		m.month = mo
		m.monthSpent = 0
	}
}

func (m *MemoryTracker) Reserve(_ context.Context, cost float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.roll(now)
	if now.Before(m.suspendedUntil) {
		return false, nil
	}
	if m.exhaustedDay == m.day || m.exhaustedMonth == m.month {
		return false, nil
	}
	if over(m.Limits.Daily, m.daySpent+cost) {
		m.exhaustedDay = m.day
		return false, nil
	}
	if over(m.Limits.Monthly, m.monthSpent+cost) {
		m.exhaustedMonth = m.month
		return false, nil
	}
	m.daySpent += cost
	m.monthSpent += cost
	return true, nil
}

func (m *MemoryTracker) Suspend(_ context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	until := endOfDay(now)
	if d > 0 {
		until = now.Add(d)
	}
	if until.After(m.suspendedUntil) {
		m.suspendedUntil = until
	}
	return nil
}

func (m *MemoryTracker) Snapshot(_ context.Context) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.roll(now)
	u := Usage{
		Day:          m.day,
		DaySpent:     m.daySpent,
		DailyLimit:   m.Limits.Daily,
		Month:        m.month,
		MonthSpent:   m.monthSpent,
		MonthlyLimit: m.Limits.Monthly,
		Exhausted:    m.exhaustedDay == m.day || m.exhaustedMonth == m.month,
	}
	if now.Before(m.suspendedUntil) {
		until := m.suspendedUntil
		u.SuspendedUntil = &until
	}
	return u, nil
}
