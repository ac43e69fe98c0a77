package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
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

	"partnertrack/internal/app"
	"partnertrack/internal/config"
	"partnertrack/internal/db"
	"partnertrack/internal/domain"
	"partnertrack/internal/engine"
	"partnertrack/internal/export"
	"partnertrack/internal/query"
	"partnertrack/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ptrack",
	Short: "Partner task progress tracker",
	Long: `ptrack tracks which partner offices have finished which tasks.
- Partners: offices identified by a 5-digit code.
- Tasks: a deadline, a category (研修, TPS, その他) and one assignment per partner.
- Recurring templates: yearly tasks that pre-fill a draft with every partner.
- Dashboard: active and urgent tasks; export lists unfinished assignments as CSV.`,
	SilenceUsage: true,
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
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARTNERTRACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("backend", "", "storage backend override (file, sqlite, memory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(partnerCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(recurringCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- partners ---

func partnerCmd() *cobra.Command {
	p := &cobra.Command{Use: "partner", Short: "Manage partner offices"}
	p.AddCommand(partnerListCmd())
	p.AddCommand(partnerAddCmd())
	p.AddCommand(partnerUpdateCmd())
	p.AddCommand(partnerDeleteCmd())
	return p
}

func partnerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List partners ordered by code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.State().Partners
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Code", "Name"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Code, p.Name})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func partnerAddCmd() *cobra.Command {
	var code, name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a partner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AddPartner(ctx, code, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "5-digit partner code")
	cmd.Flags().StringVar(&name, "name", "", "office name")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func partnerUpdateCmd() *cobra.Command {
	var code, name string
	cmd := &cobra.Command{
		Use:   "update <id|code>",
		Short: "Change a partner's code or name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolvePartner(e.State(), args[0])
				if err != nil {
					return err
				}
				upd := engine.PartnerUpdate{ID: p.ID}
				if cmd.Flags().Changed("code") {
					upd.Code = &code
				}
				if cmd.Flags().Changed("name") {
					upd.Name = &name
				}
				updated, err := e.UpdatePartner(ctx, upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "new 5-digit code")
	cmd.Flags().StringVar(&name, "name", "", "new office name")
	return cmd
}

func partnerDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|code>",
		Short: "Delete a partner (task assignments are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := resolvePartner(e.State(), args[0])
				if err != nil {
					return err
				}
				if err := e.DeletePartner(ctx, p.ID); err != nil {
					return err
				}
				fmt.Printf("Deleted partner %s %s\n", p.Code, p.Name)
				return nil
			})
		},
	}
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks carry a deadline, a category and one assignment per partner. Toggle marks a partner done; archive hides a task from active views.",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskToggleCmd())
	task.AddCommand(taskArchiveCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var archived bool
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks ordered by deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := domain.ParseCategory(category)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := query.FilterTasks(e.State(), archived, cat)
				if viper.GetBool("json") {
					return printJSON(items)
				}
				now := e.Clock()
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Deadline", "Days", "Progress", "Done"})
				for _, t := range items {
					p := query.Progress(t)
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Deadline, query.DaysUntil(t.Deadline, now), p.Label(), p.Counts()})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived tasks")
	cmd.Flags().StringVar(&category, "category", "all", "研修|TPS|その他|all (aliases: training, tps, other)")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var title, category, deadline string
	var partners []string
	var all bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task for a set of partners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseTaskCategory(category)
			if err != nil {
				return err
			}
			due, err := domain.ParseDate(deadline)
			if err != nil {
				return fmt.Errorf("invalid --deadline: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state := e.State()
				ids, err := resolvePartnerIDs(state, partners, all)
				if err != nil {
					return err
				}
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{Title: title, Category: cat, Deadline: due, PartnerIDs: ids})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&category, "category", string(domain.CategoryOther), "研修|TPS|その他")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&partners, "partner", nil, "partner id or code (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "assign every partner")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func taskShowCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its assignments, incomplete first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				state := e.State()
				t, ok := query.FindTask(state, args[0])
				if !ok {
					return fmt.Errorf("task %s: %w", args[0], engine.ErrNotFound)
				}
				views := query.SearchAssignments(t, state.Partners, search)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": t, "progress": query.Progress(t), "assignments": views})
				}
				p := query.Progress(t)
				fmt.Printf("%s [%s] due %s (%d days)\n", t.Title, t.Category, t.Deadline, query.DaysUntil(t.Deadline, e.Clock()))
				fmt.Printf("%s  %s", p.Label(), p.Counts())
				if query.IsComplete(t) {
					fmt.Print("  ✓ all done")
				}
				if t.Archived {
					fmt.Print("  (archived)")
				}
				fmt.Println()
				tw := newTable()
				tw.AppendHeader(table.Row{"Code", "Name", "Done", "Completed At"})
				for _, v := range views {
					done, at := "", ""
					if v.Assignment.Completed {
						done = "✓"
					}
					if v.Assignment.CompletedAt != nil {
						at = v.Assignment.CompletedAt.Local().Format("2006-01-02 15:04")
					}
					tw.AppendRow(table.Row{v.Partner.Code, v.Partner.Name, done, at})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "q", "", "filter partners by name or code")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, category, deadline string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change title, category or deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("category") {
				cat, err := parseTaskCategory(category)
				if err != nil {
					return err
				}
				opts.Category = &cat
			}
			if cmd.Flags().Changed("deadline") {
				due, err := domain.ParseDate(deadline)
				if err != nil {
					return fmt.Errorf("invalid --deadline: %w", err)
				}
				opts.Deadline = &due
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&category, "category", "", "研修|TPS|その他")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	return cmd
}

func taskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <task-id> <partner id|code>",
		Short: "Flip a partner's completion on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				partnerID := args[1]
				if p, err := resolvePartner(e.State(), args[1]); err == nil {
					partnerID = p.ID
				}
				t, err := e.ToggleAssignment(ctx, args[0], partnerID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(t)
				}
				p := query.Progress(t)
				fmt.Printf("%s: %s (%s)\n", t.Title, p.Label(), p.Counts())
				return nil
			})
		},
	}
}

func taskArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ArchiveTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted task %s\n", args[0])
				return nil
			})
		},
	}
}

// --- recurring templates ---

func recurringCmd() *cobra.Command {
	r := &cobra.Command{Use: "recurring", Short: "Manage yearly task templates"}
	r.AddCommand(recurringListCmd())
	r.AddCommand(recurringAddCmd())
	r.AddCommand(recurringDeleteCmd())
	r.AddCommand(recurringDraftCmd())
	r.AddCommand(recurringApplyCmd())
	return r
}

func recurringListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates ordered by trigger month",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := query.RecurringByMonth(e.State())
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Month", "Title", "Category", "Description"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, fmt.Sprintf("%d月", r.TriggerMonth), r.Title, r.Category, r.Description})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
}

func recurringAddCmd() *cobra.Command {
	var opts engine.RecurringCreateOptions
	var category string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a recurring template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := parseTaskCategory(category)
			if err != nil {
				return err
			}
			opts.Category = cat
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.AddRecurring(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "template title")
	cmd.Flags().StringVar(&category, "category", string(domain.CategoryOther), "研修|TPS|その他")
	cmd.Flags().IntVar(&opts.TriggerMonth, "month", 0, "trigger month (1-12)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func recurringDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recurring template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteRecurring(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted template %s\n", args[0])
				return nil
			})
		},
	}
}

func recurringDraftCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "draft <id>",
		Short: "Preview the task a template would create",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.DraftFromTemplate(args[0], year)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s [%s] due %s, %d partners selected\n", d.Title, d.Category, d.Deadline, len(d.Assignments))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "deadline year (default: current year)")
	return cmd
}

func recurringApplyCmd() *cobra.Command {
	var year int
	var partners []string
	var deadline string
	cmd := &cobra.Command{
		Use:   "apply <id>",
		Short: "Create a task from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var due domain.Date
			if deadline != "" {
				d, err := domain.ParseDate(deadline)
				if err != nil {
					return fmt.Errorf("invalid --deadline: %w", err)
				}
				due = d
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var ids []string
				if len(partners) > 0 {
					var err error
					if ids, err = resolvePartnerIDs(e.State(), partners, false); err != nil {
						return err
					}
				}
				t, err := e.CreateTaskFromTemplate(ctx, args[0], year, ids, due)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "deadline year (default: current year)")
	cmd.Flags().StringSliceVar(&partners, "partner", nil, "limit to these partner ids or codes (default: all)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "override the deadline (YYYY-MM-DD)")
	return cmd
}

// --- dashboard / export ---

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show active, urgent and recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d := e.Dashboard()
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Active tasks: %d   Urgent: %d   Partners: %d\n", d.ActiveCount, d.UrgentCount, d.PartnerCount)
				if len(d.Urgent) > 0 {
					fmt.Println("\nUrgent:")
					tw := newTable()
					tw.AppendHeader(table.Row{"Title", "Deadline", "Days Left", "Progress", "Done"})
					for _, u := range d.Urgent {
						tw.AppendRow(table.Row{u.Task.Title, u.Task.Deadline, u.DaysLeft, u.Progress.Label(), u.Progress.Counts()})
					}
					fmt.Println(tw.Render())
				}
				if len(d.Recent) > 0 {
					fmt.Println("\nRecent:")
					tw := newTable()
					tw.AppendHeader(table.Row{"Title", "Category", "Deadline", "Progress", "Done"})
					for _, r := range d.Recent {
						tw.AppendRow(table.Row{r.Task.Title, r.Task.Category, r.Task.Deadline, r.Progress.Label(), r.Progress.Counts()})
					}
					fmt.Println(tw.Render())
				}
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var outDir string
	var stdout bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the unfinished-assignment CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows := export.IncompleteRows(e.State())
				if stdout {
					return export.WriteCSV(os.Stdout, rows)
				}
				path := filepath.Join(outDir, export.Filename(e.Clock()))
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := export.WriteCSV(f, rows); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"path": path, "rows": len(rows)})
				}
				fmt.Printf("Wrote %d rows to %s\n", len(rows), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "write CSV to stdout")
	return cmd
}

// --- config / serve ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if b := viper.GetString("backend"); b != "" {
				c.Storage.Backend = b
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.FileName,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			actx, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer actx.Close()
			if !cmd.Flags().Changed("addr") {
				addr = actx.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = actx.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: actx.Engine, BasePath: basePath, Log: actx.Log})
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
			actx.Log.Info("serving API", slog.String("addr", addr), slog.String("base_path", basePath), slog.String("backend", actx.Config.Storage.Backend))
			fmt.Printf("Serving partnertrack API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.Context, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Backend:   viper.GetString("backend"),
		LogLevel:  viper.GetString("log-level"),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	actx, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer actx.Close()
	return fn(ctx, actx.Engine)
}

// resolvePartner finds a partner by id, falling back to its code.
func resolvePartner(state domain.AppState, ref string) (domain.Partner, error) {
	if p, ok := query.FindPartner(state, ref); ok {
		return p, nil
	}
	for _, p := range state.Partners {
		if p.Code == ref {
			return p, nil
		}
	}
	return domain.Partner{}, fmt.Errorf("partner %s: %w", ref, engine.ErrNotFound)
}

func resolvePartnerIDs(state domain.AppState, refs []string, all bool) ([]string, error) {
	if all {
		ids := make([]string, 0, len(state.Partners))
		for _, p := range state.Partners {
			ids = append(ids, p.ID)
		}
		return ids, nil
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		p, err := resolvePartner(state, strings.TrimSpace(ref))
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func parseTaskCategory(s string) (domain.TaskCategory, error) {
	cat, err := domain.ParseCategory(s)
	if err != nil {
		return "", err
	}
	if cat == domain.CategoryAll {
		return "", fmt.Errorf("category is required")
	}
	return cat, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	return tw
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
