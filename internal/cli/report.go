package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
)

var (
	reportTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	reportMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	severityStyles   = map[domain.Severity]lipgloss.Style{
		domain.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		domain.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		domain.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		domain.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
)

func validateReportFormat(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// reportView is the serialized form; yaml.v3 ignores json tags.
type reportView struct {
	Since      string           `json:"since" yaml:"since"`
	Total      int64            `json:"total" yaml:"total"`
	BySeverity map[string]int64 `json:"by_severity" yaml:"by_severity"`
	Recent     []reportEvent    `json:"recent" yaml:"recent"`
}

type reportEvent struct {
	At          string `json:"at" yaml:"at"`
	Type        string `json:"type" yaml:"type"`
	Severity    string `json:"severity" yaml:"severity"`
	IP          string `json:"ip,omitempty" yaml:"ip,omitempty"`
	UserID      *uint  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Description string `json:"description" yaml:"description"`
}

func newReportView(s *service.SecuritySummary) reportView {
	v := reportView{
		Since:      s.Since.UTC().Format("2006-01-02T15:04:05Z"),
		Total:      s.Total,
		BySeverity: make(map[string]int64, len(s.BySeverity)),
		Recent:     make([]reportEvent, 0, len(s.Recent)),
	}
	for _, c := range s.BySeverity {
		v.BySeverity[string(c.Severity)] = c.Count
	}
	for _, e := range s.Recent {
		v.Recent = append(v.Recent, reportEvent{
			At:          e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Type:        string(e.EventType),
			Severity:    string(e.Severity),
			IP:          e.IPAddress,
			UserID:      e.UserID,
			Description: e.Description,
		})
	}
	return v
}

func renderReport(w io.Writer, s *service.SecuritySummary, format string) error {
	view := newReportView(s)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	}

	var b strings.Builder
	b.WriteString(reportTitleStyle.Render(fmt.Sprintf("Security events since %s: %d", view.Since, view.Total)))
	b.WriteString("\n")
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		b.WriteString(fmt.Sprintf("  %-9s %s\n", sev, severityStyles[sev].Render(fmt.Sprintf("%d", view.BySeverity[string(sev)]))))
	}
	if len(view.Recent) == 0 {
		b.WriteString(reportMutedStyle.Render("no recent events"))
		b.WriteString("\n")
	}
	for _, e := range view.Recent {
		style := severityStyles[domain.Severity(e.Severity)]
		b.WriteString(fmt.Sprintf("  %s %s %s %s\n", reportMutedStyle.Render(e.At), style.Render(e.Severity), e.Type, e.Description))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
