package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"weekendwill/internal/app"
	"weekendwill/internal/config"
	"weekendwill/internal/db"
	"weekendwill/internal/domain"
	"weekendwill/internal/engine"
	"weekendwill/internal/migrate"
	"weekendwill/internal/repo"
	"weekendwill/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ww",
	Short: "Weekend Will CLI",
	Long: `Weekend Will stores legal wills as a single aggregate with derived progress.
Core concepts:
- Workspace: the .weekendwill directory holding the SQLite database.
- Will: one user's will with sections, documents, chat history, and witness info.
- Sections: testator, spouse, children, executors, assets, residual estate, and so on.
- Progress: derived from the five required sections, never supplied by clients.
- Status: draft -> completed happens automatically at 100%; completed -> executed
  is an explicit ceremony with witnesses and, in some states, a notary.
- Compliance config: per-state execution rules (witness counts, notary), stored in DB.
- Event log: diary of every change, view with 'ww log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WEEKENDWILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user", "local-user", "acting user id")
	rootCmd.PersistentFlags().String("config-file", "", "compliance config file override")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("config-file", rootCmd.PersistentFlags().Lookup("config-file"))
}

func registerCommands() {
	rootCmd.AddCommand(willCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func willCmd() *cobra.Command {
	will := &cobra.Command{
		Use:   "will",
		Short: "Manage wills",
		Long:  "Wills carry all testament content. Edits recompute progress; a will completes itself at 100% and only an explicit execute with witnesses moves it further.",
	}
	will.AddCommand(willCreateCmd())
	will.AddCommand(willListCmd())
	will.AddCommand(willShowCmd())
	will.AddCommand(willStatusCmd())
	will.AddCommand(willSectionCmd())
	will.AddCommand(willExecuteCmd())
	will.AddCommand(willDeleteCmd())
	will.AddCommand(willSearchCmd())
	return will
}

func willCreateCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft will",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := viper.GetString("user")
				w, err := e.CreateWill(ctx, user, state, user)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "two-letter state code (defaults to config)")
	return cmd
}

func willListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List my wills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWills(ctx, viper.GetString("user"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderWillTable(items)
				return nil
			})
		},
	}
	return cmd
}

func willShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <will-id>",
		Short: "Show a will",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWill(ctx, args[0], viper.GetString("user"))
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func willStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <will-id>",
		Short: "Progress and execution blockers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := viper.GetString("user")
				w, err := e.GetWill(ctx, args[0], user)
				if err != nil {
					return err
				}
				blockers, err := e.ExecutionBlockers(ctx, args[0], user)
				if err != nil {
					return err
				}
				out := map[string]any{
					"id":              w.ID,
					"status":          w.Status,
					"progress":        w.Progress,
					"can_be_executed": w.CanBeExecuted(),
					"blockers":        blockers,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Will: %s (%s, %s)\n", w.ID, w.Status, w.StateCompliance)
				fmt.Printf("Progress: %d%% (current section: %s)\n", w.Progress.PercentComplete, w.Progress.CurrentSection)
				fmt.Println("Completed sections:")
				for _, s := range w.Progress.CompletedSections {
					fmt.Printf("  %s\n", s)
				}
				if len(blockers) == 0 {
					fmt.Println("Execution: ready")
				} else {
					fmt.Println("Execution blockers:")
					for _, b := range blockers {
						fmt.Printf("  %s\n", b)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func willSectionCmd() *cobra.Command {
	section := &cobra.Command{
		Use:   "section",
		Short: "Edit will sections",
	}
	section.AddCommand(willSectionSetCmd())
	return section
}

func willSectionSetCmd() *cobra.Command {
	var payload, file string
	var version int
	cmd := &cobra.Command{
		Use:   "set <will-id> <section>",
		Short: "Replace one section from a JSON payload",
		Long:  "Replaces the named section wholesale. Pass the JSON inline with --json-payload or from a file with --file; an empty object or null clears the section.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payloadBytes(payload, file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := viper.GetString("user")
				w, err := e.UpdateSection(ctx, args[0], user, user, args[1], data, version)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "json-payload", "", "section JSON")
	cmd.Flags().StringVar(&file, "file", "", "file with section JSON")
	cmd.Flags().IntVar(&version, "expect-version", 0, "optimistic lock version, 0 skips the check")
	return cmd
}

func willExecuteCmd() *cobra.Command {
	var payload, file string
	cmd := &cobra.Command{
		Use:   "execute <will-id>",
		Short: "Execute a completed will",
		Long:  "Performs the completed -> executed transition. The payload carries witnesses, execution date, location, and the notary where the state requires one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payloadBytes(payload, file)
			if err != nil {
				return err
			}
			var wi domain.WitnessInfo
			if err := json.Unmarshal(data, &wi); err != nil {
				return fmt.Errorf("parse witness payload: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := viper.GetString("user")
				w, err := e.ExecuteWill(ctx, args[0], user, user, wi)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "json-payload", "", "witness info JSON")
	cmd.Flags().StringVar(&file, "file", "", "file with witness info JSON")
	return cmd
}

func willDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <will-id>",
		Short: "Delete a will",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user := viper.GetString("user")
				if err := e.DeleteWill(ctx, args[0], user, user); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func willSearchCmd() *cobra.Command {
	var f repo.WillFilters
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search wills across users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, total, err := e.SearchWills(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "total": total})
				}
				renderWillTable(items)
				fmt.Printf("total: %d\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.UserID, "user-id", "", "owner filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.State, "state", "", "state filter")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Compliance config",
		Long:  "Per-state execution rules (witness counts, notary requirements) plus premium features and webhooks. Stored in the DB; import from a YAML file to change it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configExportCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the default config template",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.GenerateDefault())
			return nil
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertComplianceConfig(ctx, cfg); err != nil {
					return err
				}
				fmt.Println("config imported")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML config file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "API keys authenticate server clients via the X-Api-Key header. Only the SHA-256 hash is stored; the plain key prints once at creation.",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	var scopes []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				plain := uuid.NewString()
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: viper.GetString("user"),
					Name:    name,
					KeyHash: repo.HashAPIKey(plain),
					Scopes:  scopes,
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": plain, "scopes": key.Scopes})
				}
				fmt.Printf("id: %s\nkey: %s\n", key.ID, plain)
				fmt.Println("store the key now; it is not recoverable")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	cmd.Flags().StringArrayVar(&scopes, "scope", []string{}, "scopes, e.g. admin")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor-id", "", "filter by actor")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of every change: will edits, completions, executions, photo and document activity.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var willID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.ListEvents(ctx, n, willID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&willID, "will-id", "", "will filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), r, viper.GetString("config-file"))
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:  os.Getenv("WEEKENDWILL_JWT_SECRET"),
				BillingKey: os.Getenv("WEEKENDWILL_BILLING_KEY"),
				DevLogin:   devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("WEEKENDWILL_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Weekend Will API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable the dev login endpoint")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, r, viper.GetString("config-file"))
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func payloadBytes(inline, file string) ([]byte, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("--json-payload and --file are mutually exclusive")
	case inline != "":
		return []byte(inline), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return nil, fmt.Errorf("provide --json-payload or --file")
	}
}

func renderWillTable(items []domain.Will) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Status", "State", "Progress", "Version", "Updated"})
	for _, w := range items {
		tw.AppendRow(table.Row{w.ID, w.Status, w.StateCompliance, fmt.Sprintf("%d%%", w.Progress.PercentComplete), w.Version, w.UpdatedAt})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
