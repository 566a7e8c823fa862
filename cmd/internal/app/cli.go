package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"adboard/cmd/identity"
	"adboard/cmd/internal/migrations"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Execute runs the adboard CLI and returns the process exit code.
// It returns instead of calling os.Exit so deferred cleanup runs.
func Execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adboard",
		Short:         "Classified advertisements API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newCreateAdminCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			log := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(fn func(ctx context.Context, cfg Config, log Logger, d *dbOnly) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("ADBOARD_DATABASE_URL is required")
			}
			log := NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

			pool, err := NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(cmd.Context(), cfg, log, &dbOnly{pool: pool, out: cmd.OutOrStdout()})
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cfg Config, log Logger, d *dbOnly) error {
				return migrations.Up(ctx, d.pool, cfg.DBSchema, log)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cfg Config, log Logger, d *dbOnly) error {
				return migrations.Down(ctx, d.pool, cfg.DBSchema, log)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(ctx context.Context, cfg Config, _ Logger, d *dbOnly) error {
				v, err := migrations.Version(ctx, d.pool, cfg.DBSchema)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(d.out, "schema %s at version %d\n", cfg.DBSchema, v)
				return err
			}),
		},
	)
	return cmd
}

func newCreateAdminCmd() *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a user with the admin role",
		Long: "Create a user with the admin role. This is the only way to create an admin:\n" +
			"public registration rejects the admin role.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("ADBOARD_DATABASE_URL is required: in-memory accounts do not outlive this command")
			}

			pw, err := readAdminPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordStdin)
			if err != nil {
				return err
			}

			a, err := New(cmd.Context(), cfg, NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()

			return createAdmin(cmd.Context(), a.Users(), username, pw, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// dbOnly is what migrate subcommands get: a pool and the command output.
type dbOnly struct {
	pool *pgxpool.Pool
	out  io.Writer
}

func createAdmin(ctx context.Context, users *identity.Service, username, pw string, out io.Writer) error {
	p, err := users.Provision(ctx, identity.Registration{
		Username: username,
		Password: pw,
		Role:     identity.RoleAdmin,
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateUsername) {
			return fmt.Errorf("username %q is already registered", username)
		}
		return err
	}
	_, err = fmt.Fprintf(out, "created admin %q (id %d)\n", p.Username, p.ID)
	return err
}

// readAdminPassword prompts twice on a terminal, or reads one line from in.
func readAdminPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	read := func(label string) (string, error) {
		if _, err := fmt.Fprint(prompt, label); err != nil {
			return "", err
		}
		b, err := readPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	pw, err := read("Password: ")
	if err != nil {
		return "", err
	}
	again, err := read("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}
