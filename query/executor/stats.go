package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// QueryStats holds statement execution counters. It is safe for concurrent use.
type QueryStats struct {
	// TotalQueries counts statements that return rows.
	TotalQueries atomic.Int64
	// TotalExecs counts statements that only report affected rows.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent in the database, in nanoseconds.
	TotalDuration atomic.Int64
	// SlowQueries counts statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors counts failed statements.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time copy of QueryStats.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is called for every statement slower than the executor's threshold.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// DefaultSlowThreshold is used unless WithSlowThreshold says otherwise.
const DefaultSlowThreshold = 100 * time.Millisecond

func (e *Executor) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		e.stats.TotalQueries.Add(1)
	} else {
		e.stats.TotalExecs.Add(1)
	}
	e.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		e.stats.Errors.Add(1)
		e.logger.DebugContext(ctx, "statement failed", "sql", query, "duration", duration, "error", err)
	} else {
		e.logger.DebugContext(ctx, "statement", "sql", query, "args", len(args), "duration", duration)
	}

	if e.slowThreshold > 0 && duration > e.slowThreshold {
		e.stats.SlowQueries.Add(1)
		if e.slowHook != nil {
			e.slowHook(ctx, query, args, duration)
			return
		}
		e.logger.WarnContext(ctx, "slow query detected", "duration", duration, "sql", query)
	}
}
