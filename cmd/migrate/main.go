package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/medledger/billing/internal/infrastructure/config"
	"github.com/medledger/billing/internal/infrastructure/logger"
	"github.com/medledger/billing/internal/infrastructure/migration"
	"github.com/medledger/billing/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options are the persistent flags shared by every sub-command
type options struct {
	path     string
	logLevel string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Billing ledger database migrations",
		Long: "Applies the ledger's postgres schema. Migrations are embedded in the binary;\n" +
			"--path reads them from a directory instead.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.path, "path", "", "Read migrations from this directory instead of the embedded set")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		withMigrator(opts, "up", "Apply all pending migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Up() }),
		withMigrator(opts, "down", "Roll back all migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ *zap.Logger, _ []string) error { return m.Down() }),
		withMigrator(opts, "step <n>", "Apply n migrations (positive=up, negative=down)", cobra.ExactArgs(1),
			func(m *migration.Migrator, _ *zap.Logger, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		withMigrator(opts, "goto <version>", "Migrate to a specific version", cobra.ExactArgs(1),
			func(m *migration.Migrator, _ *zap.Logger, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.GoTo(uint(v))
			}),
		withMigrator(opts, "version", "Show the current migration version", cobra.NoArgs,
			func(m *migration.Migrator, log *zap.Logger, _ []string) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					log.Info("No migrations applied")
					return nil
				}
				log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
				return nil
			}),
		withMigrator(opts, "force <version>", "Force the recorded version after a failed migration", cobra.ExactArgs(1),
			func(m *migration.Migrator, log *zap.Logger, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				log.Warn("Forcing migration version - use with caution!")
				return m.Force(v)
			}),
		dropCmd(opts),
		createCmd(opts),
		listCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
}

// withMigrator builds a sub-command that runs fn against a connected Migrator
func withMigrator(
	opts *options,
	use, short string,
	args cobra.PositionalArgs,
	fn func(m *migration.Migrator, log *zap.Logger, args []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(opts.logLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync(log) }()

			m, closeDB, err := openMigrator(opts, log)
			if err != nil {
				return err
			}
			defer closeDB()
			defer m.Close()

			log.Info("Migration CLI started", zap.String("command", cmd.Name()))
			return fn(m, log, args)
		},
	}
}

func openMigrator(opts *options, log *zap.Logger) (*migration.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Database.Driver != "postgres" {
		return nil, nil, fmt.Errorf("migrations target postgres; database.driver is %q", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var m *migration.Migrator
	if opts.path != "" {
		log.Info("Using migrations from directory", zap.String("path", opts.path))
		m, err = migration.New(db, opts.path, log)
	} else {
		m, err = migration.NewEmbedded(db, migrations.FS, log)
	}
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() { _ = db.Close() }, nil
}

func dropCmd(opts *options) *cobra.Command {
	var confirm bool
	cmd := withMigrator(opts, "drop", "Drop all database objects (DANGEROUS)", cobra.NoArgs,
		func(m *migration.Migrator, _ *zap.Logger, _ []string) error {
			if !confirm {
				return fmt.Errorf("drop cancelled; pass --confirm to drop all ledger data")
			}
			return m.Drop()
		})
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm dropping every table")
	return cmd
}

func createCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Create the next sequential migration file pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.path
			if dir == "" {
				dir = "migrations"
			}
			description := ""
			if len(args) > 1 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(dir, args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n        %s\n", mf.UpPath, mf.DownPath)
			return nil
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				list []string
				err  error
			)
			if opts.path != "" {
				list, err = migration.ListMigrations(os.DirFS(opts.path))
			} else {
				list, err = migration.ListMigrations(migrations.FS)
			}
			if err != nil {
				return err
			}
			for _, name := range list {
				fmt.Fprintln(cmd.OutOrStdout(), "  -", name)
			}
			return nil
		},
	}
}
