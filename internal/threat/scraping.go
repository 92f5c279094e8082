package threat

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
)

var crawlerMarkers = []string{
	"bot", "crawler", "spider", "scraper", "scrapy", "curl", "wget",
	"python-requests", "httpclient", "headless", "phantomjs", "go-http-client",
}

// ScrapingSignals are the independent request traits the heuristic counts.
type ScrapingSignals struct {
	DocumentRead     bool
	CrawlerUserAgent bool
	NonHTMLAccept    bool
	GenericAccept    bool
}

func (s ScrapingSignals) Score() int {
	score := 0
	for _, v := range []bool{s.DocumentRead, s.CrawlerUserAgent, s.NonHTMLAccept, s.GenericAccept} {
		if v {
			score++
		}
	}
	return score
}

func (s ScrapingSignals) names() []string {
	var out []string
	if s.DocumentRead {
		out = append(out, "document_read")
	}
	if s.CrawlerUserAgent {
		out = append(out, "crawler_user_agent")
	}
	if s.NonHTMLAccept {
		out = append(out, "non_html_accept")
	}
	if s.GenericAccept {
		out = append(out, "generic_accept")
	}
	return out
}

const documentRoutePrefix = "/api/v1/documents/"

// SignalsFor derives signals from request metadata. Any Accept without
// text/html counts as non-HTML, so "*/*" raises both Accept signals.
func SignalsFor(method, path, userAgent, accept string) ScrapingSignals {
	ua := strings.ToLower(userAgent)
	acc := strings.ToLower(strings.TrimSpace(accept))

	var s ScrapingSignals
	s.DocumentRead = method == http.MethodGet && isDocumentReadPath(path)
	for _, marker := range crawlerMarkers {
		if strings.Contains(ua, marker) {
			s.CrawlerUserAgent = true
			break
		}
	}
	s.GenericAccept = acc == "*/*"
	s.NonHTMLAccept = !strings.Contains(acc, "text/html")
	return s
}

// isDocumentReadPath matches /api/v1/documents/{id} and its /download form.
func isDocumentReadPath(path string) bool {
	rest, ok := strings.CutPrefix(strings.TrimSuffix(path, "/"), documentRoutePrefix)
	if !ok {
		return false
	}
	id, tail, _ := strings.Cut(rest, "/")
	return id != "" && (tail == "" || tail == "download")
}

// CheckScraping scores the request and raises a HIGH event when the score
// reaches the threshold.
func (e *Engine) CheckScraping(ctx context.Context, obs Observation) (ScrapingSignals, bool) {
	signals := SignalsFor(obs.Method, obs.Path, obs.UserAgent, obs.Accept)
	score := signals.Score()
	if score < e.policy.ScrapingThreshold {
		observability.RecordThreatCheck(ctx, "scraping", "clear")
		return signals, false
	}

	e.mu.Lock()
	e.markSuspiciousLocked(obs.IP, "potential_scraping", e.now().UTC())
	e.mu.Unlock()

	emitted := e.emit(ctx, "scraping", dedupeKey(domain.EventPotentialScraping, obs.UserID, obs.IP), &domain.SecurityEvent{
		UserID:      obs.UserID,
		EventType:   domain.EventPotentialScraping,
		Severity:    domain.SeverityHigh,
		IPAddress:   obs.IP,
		Description: "request pattern matches automated scraping",
		Details: map[string]any{
			"score":      score,
			"signals":    signals.names(),
			"path":       obs.Path,
			"user_agent": obs.UserAgent,
		},
	})
	return signals, emitted
}
