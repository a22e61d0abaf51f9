package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researcher/internal/research/core"
	"github.com/mohammad-safakhou/researcher/internal/research/retrieval"
	"github.com/mohammad-safakhou/researcher/internal/research/telemetry"
	"github.com/mohammad-safakhou/researcher/internal/store"
)

// Scheduler wakes up periodically and fires a synthesis run for every saved
// topic whose cron schedule is due. Failures mark the run row failed and are
// never allowed to bring the server down.
type Scheduler struct {
	Store        *store.Store
	Stop         chan struct{}
	Rdb          *redis.Client
	Engine       *core.Engine
	Pipeline     *retrieval.Pipeline
	Archive      *Archive
	Telemetry    *telemetry.Telemetry
	DefaultStyle string
	DefaultOrder string
	Interval     time.Duration
	Timeout      time.Duration
}

func (s *Scheduler) Start() {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	topics, err := s.Store.ListAllTopics(ctx)
	if err != nil {
		log.Printf("[SCHED] list topics: %v", err)
		return
	}
	for _, t := range topics {
		last, _ := s.Store.LatestRunTime(ctx, t.ID)
		if !isDue(t.ScheduleCron, last) {
			continue
		}

		// distributed lock to avoid duplicate runs
		var lockKey string
		if s.Rdb != nil {
			lockKey = "sched:lock:" + t.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}

		runID, err := s.Store.CreateRun(ctx, t.UserID, t.ID, store.RunStatusRunning)
		if err != nil {
			log.Printf("[SCHED] create run for topic %s: %v", t.ID, err)
			s.unlock(lockKey)
			continue
		}

		go s.process(t, runID, lockKey)
	}
}

func (s *Scheduler) process(topic store.Topic, runID, lockKey string) {
	// jitter to avoid stampedes
	time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
	defer s.unlock(lockKey)

	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	sources, _, err := s.Pipeline.Gather(ctx, topic.Query, topic.SourceURLs)
	if err != nil {
		s.fail(runID, err)
		return
	}
	style := topic.CitationStyle
	if style == "" {
		style = s.DefaultStyle
	}
	started := time.Now()
	result, err := s.Engine.Run(ctx, core.Request{
		Query:         topic.Query,
		Sources:       sources,
		CitationStyle: style,
		SortOrder:     core.SortOrder(s.DefaultOrder),
		IncludeGraph:  true,
	})
	recordRun(s.Telemetry, runID, topic.Query, started, result, err)
	if err != nil {
		s.fail(runID, err)
		return
	}
	if _, err := archiveRun(ctx, s.Store, s.Archive, runID, topic.UserID, topic.ID, result); err != nil {
		s.fail(runID, err)
		return
	}
	_ = s.Store.FinishRun(ctx, runID, store.RunStatusSucceeded, nil)
}

func (s *Scheduler) unlock(lockKey string) {
	if s.Rdb == nil || lockKey == "" {
		return
	}
	s.Rdb.Del(context.Background(), lockKey)
}

func (s *Scheduler) fail(runID string, cause error) {
	log.Printf("[SCHED] run %s failed: %v", runID, cause)
	_ = s.Store.FinishRun(context.Background(), runID, store.RunStatusFailed, strPtr(cause.Error()))
}

func strPtr(s string) *string { return &s }

// isDue determines if a topic with cronSpec should run now based on last run time.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			// If never run, due now
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
