package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sprintbook/internal/archive"
	"sprintbook/internal/config"
	"sprintbook/internal/db"
	"sprintbook/internal/engine"
	"sprintbook/internal/logging"
	"sprintbook/internal/metrics"
	"sprintbook/internal/migrate"
	"sprintbook/internal/notify"
	"sprintbook/internal/printer"
	"sprintbook/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sb",
	Short: "Sprintbook CLI",
	Long: `Sprintbook books sprint slots on shared resources for tribes.
- Quarter: six sprints; exactly one quarter is current.
- Temp hold: a tribe's provisioned entitlement on a resource/role, with a reserved sprint count.
- Assignment: the sprints a tribe actually holds for an app on a resource/role.
- Availability: what a tribe may still pick, blocked sprints belong to other tribes.
Every booking checks conflicts first, then the tribe's cap.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if strings.EqualFold(viper.GetString("driver"), "postgres") {
			return nil
		}
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.StringP("tribe", "t", "", "acting tribe")
	flags.StringP("quarter", "q", "", "quarter id or name (defaults to the current quarter)")
	flags.String("driver", "", "database driver override (sqlite, postgres)")
	flags.String("dsn", "", "database DSN override")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.StringP("config", "c", "", "config file (defaults to sprintbook.yml in the workspace)")
	for _, name := range []string{"workspace", "json", "tribe", "quarter", "driver", "dsn", "log-level", "config"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(quarterCmd())
	rootCmd.AddCommand(provisionCmd())
	rootCmd.AddCommand(assignmentCmd())
	rootCmd.AddCommand(tempCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads sprintbook.yml and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	var cfg *config.Config
	var err error
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(workspace)
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cfg.Archive.Dir != "" && !filepath.IsAbs(cfg.Archive.Dir) {
		cfg.Archive.Dir = filepath.Join(workspace, cfg.Archive.Dir)
	}
	return cfg, cfg.Validate()
}

// withEngine opens and migrates the store, then wires the engine's optional
// collaborators from config.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer log.Sync()
	conn, dialect, err := db.Open(db.Config{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		Workspace:     viper.GetString("workspace"),
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn, dialect); err != nil {
		return err
	}
	e := engine.New(conn, dialect, cfg)
	e.Log = log
	store, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		return err
	}
	e.Archive = store
	if cfg.Notify.Enabled() {
		r := notify.NewRedis(cfg.Notify)
		defer r.Close()
		e.Notifier = r
	}
	return fn(ctx, e)
}

func actingTribe() (string, error) {
	tribe := strings.TrimSpace(viper.GetString("tribe"))
	if tribe == "" {
		return "", printer.Error("No acting tribe", "Booking commands act on behalf of a tribe.",
			[]string{"Pass --tribe <name>", "Set SPRINTBOOK_TRIBE"})
	}
	return tribe, nil
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.BasePath()
				}
				e.Metrics = metrics.New()
				identity := server.IdentityConfig{Log: e.Log}
				if env := strings.TrimSpace(e.Config.Server.JWTSecretEnv); env != "" {
					identity.JWTSecret = os.Getenv(env)
					if identity.JWTSecret == "" {
						return fmt.Errorf("%s is empty; unset server.jwt_secret_env to use %s only", env, server.TribeHeader)
					}
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Identity: identity, Log: e.Log})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, e, e.Log)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				e.Log.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath), zap.Bool("notify", e.Config.Notify.Enabled()))
				printer.Success("Serving Sprintbook API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable renders tw unless --json asks for v as JSON.
func printJSONOrTable(v any, tw table.Writer) error {
	if viper.GetBool("json") || tw == nil {
		return printJSON(v)
	}
	tw.SetOutputMirror(os.Stdout)
	tw.Render()
	return nil
}
