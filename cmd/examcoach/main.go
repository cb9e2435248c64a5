package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examcoach/internal/api"
	"github.com/pavelanni/examcoach/internal/bank"
	"github.com/pavelanni/examcoach/internal/controller"
	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/handler"
	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/store"
	"github.com/pavelanni/examcoach/internal/tutor"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examcoach",
		Short: "Interactive exam practice with a tutoring assistant",
	}

	serve := serveCmd()
	root.AddCommand(serve, apiCmd(), importCmd(), exportCmd(), userCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam front end",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("api-url", "http://127.0.0.1:5000/v1", "Base URL of the exam API")
	f.Duration("api-timeout", 60*time.Second, "Timeout of each exam API call")
	f.StringP("lang", "l", "en", "Default UI language (en, pt)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /pt)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.Bool("auto-submit", true, "Submit timed exams automatically when time runs out")
	f.StringSlice("subjects", []string{"languages", "human_sciences", "natural_sciences", "mathematics"}, "Subjects offered when creating an exam")
	addLogFlags(cmd)
	return cmd
}

func apiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Start the exam API backend",
		RunE:  runAPI,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":5000", "HTTP listen address")
	f.String("db", "examcoach.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Question bank files to import at startup (JSON or YAML, repeatable)")
	f.String("admin-password", "", "Initial admin password (or set EXAMCOACH_ADMIN_PASSWORD)")
	f.String("tutor-provider", "offline", "Tutor provider (offline, openai, gemini)")
	f.String("tutor-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("tutor-key", "", "API key of the tutor provider")
	f.String("tutor-model", "", "Tutor model name")
	addLogFlags(cmd)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [files...]",
		Short: "Import question banks (JSON or YAML) into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	cmd.Flags().String("db", "examcoach.db", "SQLite database path")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tutoring chat transcripts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examcoach.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage exam API users",
	}

	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a student user",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserAdd,
	}
	add.Flags().String("db", "examcoach.db", "SQLite database path")
	add.Flags().String("password", "", "Password of the new user (required)")
	add.Flags().String("display-name", "", "Display name (defaults to the username)")
	add.Flags().Bool("admin", false, "Give the user the admin role")
	_ = add.MarkFlagRequired("password")
	addLogFlags(add)

	disable := &cobra.Command{
		Use:   "disable <username>",
		Short: "Deactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runUserSetActive(cmd, args[0], false) },
	}
	enable := &cobra.Command{
		Use:   "enable <username>",
		Short: "Reactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return runUserSetActive(cmd, args[0], true) },
	}
	for _, c := range []*cobra.Command{disable, enable} {
		c.Flags().String("db", "examcoach.db", "SQLite database path")
		addLogFlags(c)
	}

	cmd.AddCommand(add, disable, enable)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMCOACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examcoach")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examcoach")
	v.AddConfigPath("/etc/examcoach")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// listen serves h on addr until SIGINT or SIGTERM, then shuts down gracefully.
func listen(addr string, h http.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down", "addr", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	gw := gateway.New(v.GetString("api-url"), v.GetDuration("api-timeout"))
	sessions := handler.NewRegistry(gw, controller.WithAutoSubmit(v.GetBool("auto-submit")))
	defer sessions.Close()
	sweeper, err := sessions.StartSweeper()
	if err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	defer sweeper.Stop()

	h := handler.New(gw, sessions, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		Subjects:      v.GetStringSlice("subjects"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting front end",
		"addr", addr,
		"api_url", v.GetString("api-url"),
		"lang", lang,
		"languages", appI18n.Languages(),
		"base_path", basePath,
		"auto_submit", v.GetBool("auto-submit"),
	)
	return listen(addr, r)
}

func runAPI(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if paths := v.GetStringSlice("questions"); len(paths) > 0 {
		if _, err := bank.Load(db, paths); err != nil {
			return fmt.Errorf("load questions: %w", err)
		}
	}

	provider := v.GetString("tutor-provider")
	t, err := tutor.New(cmd.Context(), tutor.Config{
		Provider: provider,
		BaseURL:  v.GetString("tutor-url"),
		APIKey:   v.GetString("tutor-key"),
		Model:    v.GetString("tutor-model"),
	})
	if err != nil {
		return fmt.Errorf("create tutor: %w", err)
	}

	srv := api.New(db, t)
	jobs, err := srv.StartJobs()
	if err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	defer jobs.Stop()

	count, err := db.QuestionCount()
	if err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	addr := v.GetString("addr")
	slog.Info("starting exam api",
		"addr", addr,
		"db", v.GetString("db"),
		"questions", count,
		"tutor", provider,
		"tutor_model", v.GetString("tutor-model"),
	)
	return listen(addr, srv.Routes())
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := bank.Load(db, args)
	for _, r := range results {
		if r.Skipped {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: skipped\n", r.Path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions\n", r.Path, r.Imported)
		}
	}
	if err != nil {
		return err
	}

	subjects, err := db.ListDistinctSubjects()
	if err != nil {
		return fmt.Errorf("list subjects: %w", err)
	}
	topics, err := db.ListDistinctTopics()
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "subjects: %s\n", strings.Join(subjects, ", "))
	fmt.Fprintf(cmd.OutOrStdout(), "topics: %d\n", len(topics))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportChats()
	if err != nil {
		return fmt.Errorf("export chats: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	slog.Info("exported chats", "count", export.NumChats, "output", outPath)
	return nil
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	role := model.UserRoleStudent
	if v.GetBool("admin") {
		role = model.UserRoleAdmin
	}
	if _, err := createUser(db, args[0], v.GetString("display-name"), v.GetString("password"), role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", args[0], role)
	return nil
}

func runUserSetActive(cmd *cobra.Command, username string, active bool) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	u, err := db.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return fmt.Errorf("user %q not found", username)
	}
	if err := db.SetUserActive(u.ID, active); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	slog.Info("user updated", "username", username, "active", active)
	return nil
}

func createUser(db *store.Store, username, displayName, password string, role model.UserRole) (int64, error) {
	if username == "" || password == "" {
		return 0, errors.New("username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	if displayName == "" {
		displayName = username
	}
	id, err := db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", username, err)
	}
	return id, nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("admin password is required: set --admin-password flag or EXAMCOACH_ADMIN_PASSWORD env var")
	}
	if _, err := createUser(db, "admin", "Administrator", password, model.UserRoleAdmin); err != nil {
		return err
	}
	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
