package threat

import (
	"time"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
)

// Policy holds the thresholds every check is evaluated against.
type Policy struct {
	BruteForceThreshold    int
	RateWindow             time.Duration
	RateLimit              int
	ScrapingThreshold      int
	ConcurrentWindow       time.Duration
	BehaviorWindow         time.Duration
	BehaviorSampleSize     int
	UnusualHourShare       float64
	ExcessiveDocumentLimit int
	IdleTTL                time.Duration
	SweepInterval          time.Duration
	DedupeWindow           time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BruteForceThreshold:    5,
		RateWindow:             60 * time.Second,
		RateLimit:              120,
		ScrapingThreshold:      2,
		ConcurrentWindow:       24 * time.Hour,
		BehaviorWindow:         24 * time.Hour,
		BehaviorSampleSize:     100,
		UnusualHourShare:       0.2,
		ExcessiveDocumentLimit: 20,
		IdleTTL:                time.Hour,
		SweepInterval:          10 * time.Minute,
		DedupeWindow:           time.Hour,
	}
}

func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		BruteForceThreshold:    cfg.ThreatBruteForceThreshold,
		RateWindow:             cfg.RateLimitWindow,
		RateLimit:              cfg.RateLimitMaxRequests,
		ScrapingThreshold:      cfg.ThreatScrapingThreshold,
		ConcurrentWindow:       cfg.ThreatConcurrentWindow,
		BehaviorWindow:         cfg.ThreatBehaviorWindow,
		BehaviorSampleSize:     cfg.ThreatBehaviorSampleSize,
		UnusualHourShare:       cfg.ThreatUnusualHourShare,
		ExcessiveDocumentLimit: cfg.ThreatExcessiveDocumentLimit,
		IdleTTL:                cfg.ThreatIdleTTL,
		SweepInterval:          cfg.ThreatSweepInterval,
		DedupeWindow:           cfg.ThreatDedupeWindow,
	}
}
