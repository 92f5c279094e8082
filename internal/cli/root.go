package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/secure-docshare-go-backend/internal/config"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/database"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/di"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/domain"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/observability"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/service"
	"github.com/sandeepkv93/secure-docshare-go-backend/internal/tools/common"
)

type rootOptions struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docshare",
		Short:         "Document sharing API with access control and threat detection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration; missing files are ignored")
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newCreateUserCommand(), newSecurityReportCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if migrate {
				if err := runMigrations(cfg); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := di.InitializeApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runMigrations(cfg)
		},
	}
}

func runMigrations(cfg *config.Config) error {
	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, nil)
	db, err := database.Open(cfg, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func newCreateUserCommand() *cobra.Command {
	var in service.CreateUserInput
	var role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account, typically the first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			in.Role = parsed
			if in.Password == "" {
				in.Password = os.Getenv("DOCSHARE_NEW_USER_PASSWORD")
			}
			return withAdminTools(cmd.Context(), func(ctx context.Context, tools *di.AdminTools) error {
				user, err := tools.Auth.CreateUser(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user id=%d email=%s role=%s\n", user.ID, user.Email, user.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.Name, "name", "", "display name")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password (defaults to $DOCSHARE_NEW_USER_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "USER, MODERATOR or ADMIN")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSecurityReportCommand() *cobra.Command {
	var (
		window time.Duration
		recent int
		format string
	)
	cmd := &cobra.Command{
		Use:   "security-report",
		Short: "Summarize recent security events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateReportFormat(format); err != nil {
				return err
			}
			return withAdminTools(cmd.Context(), func(ctx context.Context, tools *di.AdminTools) error {
				summary, err := tools.Events.Summary(ctx, time.Now().Add(-window), recent)
				if err != nil {
					return err
				}
				return renderReport(cmd.OutOrStdout(), summary, format)
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "lookback window")
	cmd.Flags().IntVar(&recent, "recent", 10, "number of recent events to list")
	cmd.Flags().StringVar(&format, "format", "text", "text, json or yaml")
	return cmd
}

func withAdminTools(ctx context.Context, fn func(context.Context, *di.AdminTools) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tools, err := di.InitializeAdminTools(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer tools.Close()
	return fn(ctx, tools)
}
