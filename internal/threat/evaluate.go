package threat

import (
	"context"
	"sync"
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Observation is what the audit pipeline knows about one finished request.
type Observation struct {
	UserID     *uint
	IP         string
	Method     string
	Path       string
	UserAgent  string
	Accept     string
	Action     domain.ActionType
	ActivityID uint
	Country    string
	At         time.Time
}

// Report summarizes one evaluation pass.
type Report struct {
	Rate               RateResult
	Scraping           ScrapingSignals
	ScrapingFlagged    bool
	ConcurrentSessions bool
	Behavior           BehaviorFindings
}

// Evaluate runs every check for obs. The in-memory checks run inline and the
// storage-backed ones run concurrently; a failing sub-check counts as no
// signal and never fails the pass.
func (e *Engine) Evaluate(ctx context.Context, obs Observation) Report {
	var report Report
	if obs.IP != "" {
		report.Rate = e.CheckRate(ctx, obs.IP)
		report.Scraping, report.ScrapingFlagged = e.CheckScraping(ctx, obs)
	}
	if obs.UserID == nil {
		return report
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flagged, err := e.CheckConcurrentSessions(gctx, *obs.UserID, obs.IP)
		if err != nil {
			e.logger.Debug("concurrent session check skipped", "user_id", *obs.UserID, "error", err)
			return nil
		}
		mu.Lock()
		report.ConcurrentSessions = flagged
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		findings, err := e.CheckBehavior(gctx, obs)
		if err != nil {
			e.logger.Debug("behavior check skipped", "user_id", *obs.UserID, "error", err)
			return nil
		}
		mu.Lock()
		report.Behavior = findings
		mu.Unlock()
		return nil
	})
	_ = g.Wait()
	return report
}
