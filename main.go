package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"taskboard/client"
	"taskboard/config"
	"taskboard/domain"
	"taskboard/mockapi"
	"taskboard/store"
	"taskboard/ui"
)

const usage = `Usage: taskboard [-config file] <command> [args]

Commands:
  menu                          interactive task manager (default)
  list [-filter all|active|completed]
  add [-due YYYY-MM-DD] <description>
  done <task>                   toggle completion
  edit [-description text] [-due YYYY-MM-DD | -clear-due] <task>
  rm <task>
  serve-mock                    run the local mock task API
  token [-ttl 1h] [user]        print a development token for the mock API

<task> is a list number or a unique id prefix.
`

var errCommandFailed = errors.New("command failed")

func main() {
	fs := flag.NewFlagSet("taskboard", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("TASKS_CONFIG"), "path to a YAML config file")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if err := cfg.Log.Apply(logger); err != nil {
		log.Fatalf("config: %v", err)
	}
	_ = cfg.Log.Apply(log.StandardLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Log.Tracing {
		shutdown := setupTracing(logger)
		defer shutdown()
	}

	cmd, args := "menu", fs.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd == "token" {
		if err := runToken(cfg, args); err != nil {
			log.Fatalf("token: %v", err)
		}
		return
	}
	if cmd == "serve-mock" {
		if err := serveMock(ctx, cfg, logger); err != nil {
			log.Fatalf("mock api: %v", err)
		}
		return
	}

	app, closeApp, err := newApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeApp()

	switch cmd {
	case "menu":
		err = ui.NewMenu(app, os.Stdin, os.Stdout).Run(ctx)
	case "list", "ls":
		err = runList(ctx, app, args)
	case "add":
		err = runAdd(ctx, app, args)
	case "done", "toggle":
		err = runToggle(ctx, app, args)
	case "edit":
		err = runEdit(ctx, app, args)
	case "rm", "delete":
		err = runDelete(ctx, app, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		if !errors.Is(err, errCommandFailed) && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		closeApp()
		os.Exit(1)
	}
}

func setupTracing(logger *log.Logger) func() {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracer shutdown")
		}
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*ui.App, func(), error) {
	userID, err := cfg.API.ResolveUserID()
	if err != nil {
		return nil, nil, err
	}
	token := cfg.Auth.Token
	if secret := devSecret(cfg); token == "" && secret != "" {
		token, err = client.SignDevToken(userID, []byte(secret), cfg.Auth.DevTokenTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("dev token: %w", err)
		}
	}

	api := client.New(cfg.API.BaseURL,
		client.WithHTTPClient(&http.Client{Timeout: cfg.API.RequestTimeout}),
		client.WithRetryPolicy(client.RetryPolicy{MaxRetries: cfg.API.MaxRetries, BaseDelay: cfg.API.RetryBaseDelay}),
		client.WithLogger(logger),
	)
	s := store.New(api, logger)
	app := ui.NewApp(s, logger)

	sess := client.Session{UserID: userID, Credentials: client.NewTokenStore(token, cfg.Auth.TokenFile)}
	if err := s.SetSession(ctx, sess); err != nil {
		logger.WithError(err).Debug("initial fetch failed")
	}
	logger.WithFields(log.Fields{"user_id": userID, "api": api.BaseURL()}).Debug("taskboard ready")
	return app, s.Close, nil
}

func serveMock(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, closeFn, err := mockapi.FromConfig(ctx, cfg.Mock, logger, reg)
	if err != nil {
		return err
	}
	defer closeFn()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Mock.Addr).Info("mock task API listening")
		errCh <- srv.Start(cfg.Mock.Addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// devSecret is the key for development tokens. It falls back to the mock's
// shared secret so a local client and mock agree without extra settings.
func devSecret(cfg *config.Config) string {
	if cfg.Auth.DevJWTSecret != "" {
		return cfg.Auth.DevJWTSecret
	}
	return cfg.Mock.AuthSharedSecret
}

// runToken prints a development token for the configured or given user.
func runToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", cfg.Auth.DevTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret := devSecret(cfg)
	if secret == "" {
		return errors.New("set TASKS_DEV_JWT_SECRET or LOCAL_AUTH_SHARED_SECRET")
	}
	userID := fs.Arg(0)
	if userID == "" {
		id, err := cfg.API.ResolveUserID()
		if err != nil {
			return err
		}
		userID = id
	}
	token, err := client.SignDevToken(userID, []byte(secret), *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func runList(_ context.Context, app *ui.App, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	filter := fs.String("filter", string(ui.FilterAll), "all, active or completed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := ui.ParseFilter(*filter)
	if err != nil {
		return err
	}
	app.SetFilter(f)
	var loadErr error
	if msg := app.Store.Snapshot().Error; msg != "" {
		loadErr = errors.New(msg)
	}
	return finish(app, os.Stdout, loadErr, true)
}

func runAdd(ctx context.Context, app *ui.App, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return finish(app, os.Stdout, app.AddTask(ctx, strings.Join(fs.Args(), " "), *due), false)
}

func runToggle(ctx context.Context, app *ui.App, args []string) error {
	task, err := resolveArg(app, args)
	if err != nil {
		return err
	}
	return finish(app, os.Stdout, app.ToggleTask(ctx, task.ID), false)
}

func runEdit(ctx context.Context, app *ui.App, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	desc := fs.String("description", "", "new description")
	due := fs.String("due", "", "new due date, YYYY-MM-DD")
	clearDue := fs.Bool("clear-due", false, "remove the due date")
	if err := fs.Parse(args); err != nil {
		return err
	}
	task, err := resolveArg(app, fs.Args())
	if err != nil {
		return err
	}
	session := ui.OpenEdit(task)
	if *desc != "" {
		session.Description = *desc
	}
	switch {
	case *clearDue:
		session.ClearDueDate()
	case *due != "":
		session.DueDate = *due
	}
	return finish(app, os.Stdout, app.SaveEdit(ctx, session), false)
}

func runDelete(ctx context.Context, app *ui.App, args []string) error {
	task, err := resolveArg(app, args)
	if err != nil {
		return err
	}
	return finish(app, os.Stdout, app.DeleteTask(ctx, task.ID), false)
}

func resolveArg(app *ui.App, args []string) (domain.Task, error) {
	if len(args) != 1 {
		return domain.Task{}, errors.New("expected exactly one task number or id")
	}
	if state := app.Store.Snapshot(); state.Error != "" {
		return domain.Task{}, errors.New(state.Error)
	}
	return ui.Resolve(app.Visible(), app.Store.Snapshot().Tasks, args[0])
}

// finish prints the outcome of a one-shot command. Toast actions are dropped
// since the process exits before they could run.
func finish(app *ui.App, w io.Writer, handlerErr error, render bool) error {
	if render {
		view := app.View()
		if err := ui.Render(w, view); err != nil {
			return err
		}
		if handlerErr != nil {
			return errCommandFailed
		}
		return nil
	}
	for _, t := range app.Toasts.Drain() {
		t.Action = nil
		fmt.Fprintln(w, ui.FormatToast(t))
	}
	if handlerErr != nil {
		return errCommandFailed
	}
	return nil
}
