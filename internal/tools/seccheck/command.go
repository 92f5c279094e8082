package seccheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/common"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/loadgen"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/ui"
)

type options struct {
	baseURL       string
	adminEmail    string
	adminPassword string
	wait          time.Duration
	ci            bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seccheck", Short: "Replay attack traffic and verify the API raises security events"}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().StringVar(&opts.adminEmail, "admin-email", os.Getenv("SECCHECK_ADMIN_EMAIL"), "administrator used to read security events")
	cmd.PersistentFlags().StringVar(&opts.adminPassword, "admin-password", os.Getenv("SECCHECK_ADMIN_PASSWORD"), "administrator password")
	cmd.PersistentFlags().DurationVar(&opts.wait, "wait", 20*time.Second, "how long to poll for the expected event")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newBruteForceCommand(opts), newScrapeCommand(opts))
	return cmd
}

func newBruteForceCommand(opts *options) *cobra.Command {
	var (
		targetEmail string
		attempts    int
	)
	cmd := &cobra.Command{
		Use:   "bruteforce",
		Short: "Send failed logins from one address and expect BRUTE_FORCE_DETECTED",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seccheck bruteforce", func(ctx context.Context, client *http.Client, token string) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     loadgen.ProfileAuth,
					Duration:    30 * time.Second,
					RPS:         5,
					Concurrency: 1,
					Email:       targetEmail,
					MaxRequests: int64(attempts),
				})
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("failed logins sent=%d statuses=%v", res.TotalRequests, res.StatusClasses)}, nil
			}, "BRUTE_FORCE_DETECTED")
		},
	}
	cmd.Flags().StringVar(&targetEmail, "target-email", "seccheck-target@example.com", "account the failed logins are aimed at")
	cmd.Flags().IntVar(&attempts, "attempts", 6, "number of failed logins to send")
	return cmd
}

func newScrapeCommand(opts *options) *cobra.Command {
	var attempts int
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Walk document ids quickly and expect POTENTIAL_SCRAPING",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "seccheck scrape", func(ctx context.Context, client *http.Client, token string) ([]string, error) {
				res, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     loadgen.ProfileScrape,
					Duration:    30 * time.Second,
					RPS:         20,
					Concurrency: 2,
					Seed:        42,
					Token:       token,
					MaxRequests: int64(attempts),
				})
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("document reads sent=%d statuses=%v", res.TotalRequests, res.StatusClasses)}, nil
			}, "POTENTIAL_SCRAPING")
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 150, "number of document reads to send")
	return cmd
}

type attackFunc func(ctx context.Context, client *http.Client, token string) ([]string, error)

func execute(opts *options, title string, attack attackFunc, expectEvent string) error {
	details, err := run(opts, title, func(ctx context.Context) ([]string, error) {
		client := &http.Client{Timeout: 10 * time.Second}
		token, err := login(ctx, client, opts.baseURL, opts.adminEmail, opts.adminPassword)
		if err != nil {
			return nil, fmt.Errorf("admin login: %w", err)
		}
		since := time.Now().UTC().Add(-time.Second)
		details, err := attack(ctx, client, token)
		if err != nil {
			return details, err
		}
		n, err := waitForEvents(ctx, client, opts.baseURL, token, expectEvent, since, opts.wait)
		if err != nil {
			return details, err
		}
		return append(details, fmt.Sprintf("%s events=%d", expectEvent, n)), nil
	})
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	if err != nil {
		os.Exit(4)
	}
	return nil
}

func run(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(ctx context.Context, client *http.Client, method, target, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", resp.Status, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s %s", resp.Status, env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func login(ctx context.Context, client *http.Client, baseURL, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("admin credentials are required")
	}
	var data struct {
		Tokens struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	err := doJSON(ctx, client, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/v1/auth/login", "",
		map[string]string{"email": email, "password": password}, &data)
	if err != nil {
		return "", err
	}
	if data.Tokens.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return data.Tokens.AccessToken, nil
}

func countEvents(ctx context.Context, client *http.Client, baseURL, token, eventType string, since time.Time) (int64, error) {
	q := url.Values{}
	q.Set("event_type", eventType)
	q.Set("from", since.UTC().Format(time.RFC3339))
	var page struct {
		Total int64 `json:"total"`
	}
	target := strings.TrimRight(baseURL, "/") + "/api/v1/admin/security-events?" + q.Encode()
	if err := doJSON(ctx, client, http.MethodGet, target, token, nil, &page); err != nil {
		return 0, err
	}
	return page.Total, nil
}

// waitForEvents polls because threat evaluation runs behind the audit queue.
func waitForEvents(ctx context.Context, client *http.Client, baseURL, token, eventType string, since time.Time, wait time.Duration) (int64, error) {
	deadline := time.Now().Add(wait)
	for {
		n, err := countEvents(ctx, client, baseURL, token, eventType, since)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return n, nil
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("no %s event within %s", eventType, wait)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
