package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docsync/internal/app"
	"docsync/internal/config"
	"docsync/internal/docsync"
	"docsync/internal/snapshot"
)

func main() {
	// A .env file in the working directory is optional.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from its default location.
func loadConfig() (*config.Config, string, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths.ConfigPath, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// command identifies the CLI command being run.
func newApp(command string, opts ...app.Option) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.NewApp(cfg, command, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "docsync",
	Short:        "Keep a vector index in sync with a directory tree",
	SilenceUsage: true,
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync on an interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("run")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Run(cmd.Context())
	},
}

// once command
var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("once")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Once(cmd.Context())
		if report != nil {
			printReport(report)
		}
		if err != nil {
			return fmt.Errorf("sync cycle: %w", err)
		}
		return nil
	},
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check configuration, database, embedder and index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("validate")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Validate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("migrate", app.WithoutMigrationCheck())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexed file counts and the last cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Root:      %s\n", st.Root)
		fmt.Printf("Files:     %d\n", st.Files)
		fmt.Printf("Documents: %d\n", st.Documents)
		if st.LastCycle == nil {
			fmt.Println("Last cycle: none")
			return nil
		}
		fmt.Print("Last cycle: ")
		printReport(st.LastCycle)
		return nil
	},
}

// files command
var filesCmd = &cobra.Command{
	Use:   "files [PREFIX]",
	Short: "List indexed files",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("files")
		if err != nil {
			return err
		}
		defer a.Close()

		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		files, err := a.Files(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files indexed.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%10d  %10d  %s  %s\n", f.Inode, f.Size, f.Mtime.Format("2006-01-02 15:04:05"), f.Path)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync cycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		cycles, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(cycles) == 0 {
			fmt.Println("No sync cycles recorded.")
			return nil
		}
		for _, c := range cycles {
			printReport(c)
		}
		return nil
	},
}

func printReport(r *docsync.CycleReport) {
	duration := ""
	if !r.FinishedAt.IsZero() {
		duration = r.Duration().Truncate(time.Millisecond).String()
	}
	fmt.Printf("#%d  %s  %s  %-9s  %8s  new:%d unchanged:%d attrs:%d changed:%d failed:%d removed:%d\n",
		r.ID,
		r.StartedAt.Format("2006-01-02 15:04:05"),
		r.GenerationID,
		r.Status,
		duration,
		r.New, r.Unchanged, r.AttrsChanged, r.Changed, r.Failed, r.Removed,
	)
	if r.Error != "" {
		fmt.Printf("    error: %s\n", r.Error)
	}
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		root, _ := cmd.Flags().GetString("root")
		cfg := paths.NewConfig(root)

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		if cfg.Scanner.RootDir == "" {
			fmt.Println("Set scanner.root_dir before running docsync.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Root Dir:    %s\n", cfg.Scanner.RootDir)
		fmt.Printf("Extensions:  %v\n", cfg.Scanner.Extensions)
		fmt.Printf("Interval:    %s\n", cfg.Schedule.Interval.Duration)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Embedder:    %s %s\n", cfg.Embedder.Type, cfg.Embedder.Model)
		fmt.Printf("Index:       %s %s\n", cfg.Index.Type, cfg.Index.Name)
		fmt.Printf("Snapshots:   %s\n", cfg.Snapshot.Type)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nConfiguration problems:\n%v\n", err)
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage metadata snapshots",
}

var snapshotKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the age key pair used to encrypt snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		unset := cfg.Snapshot.PublicKeyPath == "" && cfg.Snapshot.PrivateKeyPath == ""
		if unset {
			paths, err := app.DefaultPaths()
			if err != nil {
				return fmt.Errorf("getting defaults: %w", err)
			}
			cfg.Snapshot.PublicKeyPath = paths.PublicKeyPath()
			cfg.Snapshot.PrivateKeyPath = paths.PrivateKeyPath()
		}
		enc, err := encryptorFor(cfg)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("public key already exists at %s", cfg.Snapshot.PublicKeyPath)
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}
		if pass == "" {
			return errors.New("passphrase must not be empty")
		}

		if err := enc.Setup(pass); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Snapshot.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Snapshot.PrivateKeyPath)
		if unset {
			fmt.Println("Set snapshot.public_key_path and snapshot.private_key_path to these paths to encrypt snapshots.")
		}
		return nil
	},
}

var snapshotDecryptCmd = &cobra.Command{
	Use:   "decrypt SNAPSHOT DEST",
	Short: "Decrypt an encrypted snapshot into a SQLite file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryptorFor(cfg)
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		dec, err := enc.Unlock(pass)
		if err != nil {
			return err
		}
		if err := dec.DecryptFile(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Decrypted %s to %s\n", args[0], args[1])
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots in a filesystem snapshot directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Snapshot.Type != "filesystem" {
			return fmt.Errorf("listing is only supported for filesystem snapshots, not %q", cfg.Snapshot.Type)
		}
		sink, err := snapshot.NewFileSystemSink(cfg.Snapshot.Dir)
		if err != nil {
			return err
		}
		names, err := sink.List()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No snapshots.")
			return nil
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func encryptorFor(cfg *config.Config) (*snapshot.AgeEncryptor, error) {
	if cfg.Snapshot.PublicKeyPath == "" || cfg.Snapshot.PrivateKeyPath == "" {
		return nil, errors.New("snapshot.public_key_path and snapshot.private_key_path must be set")
	}
	return snapshot.NewAgeEncryptor(cfg.Snapshot.PublicKeyPath, cfg.Snapshot.PrivateKeyPath), nil
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("root", "", "Directory tree to keep in sync")

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotKeygenCmd)
	snapshotCmd.AddCommand(snapshotDecryptCmd)
	snapshotCmd.AddCommand(snapshotListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of cycles to show")
}
