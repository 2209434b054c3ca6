// Command dialogcli is the native client: an interactive questionnaire
// session in the terminal, backed by the same core as the browser build.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/config"
	"github.com/NickPeut/BasePlanFactor/internal/dialog"
	"github.com/NickPeut/BasePlanFactor/internal/scheme"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app carries the wired client core for one command invocation.
type app struct {
	cfg        config.Config
	log        *zap.Logger
	kv         store.KV
	registry   *scheme.Registry
	controller *dialog.Controller
	renderer   *consoleRenderer

	// Factor display toggles, mirrored so /toggle can flip them.
	toggled map[string]bool

	timeout time.Duration
}

func (a *app) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func (a *app) close() {
	if a.kv != nil {
		a.kv.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		dbPath     string
		verbose    bool
	)

	a := &app{}

	root := &cobra.Command{
		Use:   "dialogcli",
		Short: "Terminal client for the questionnaire dialog service",
		Long: `dialogcli runs the questionnaire dialog in the terminal: answer the
bot's questions, watch the goal tree grow and inspect the evaluation
scores. Sessions are cached locally per scheme, so quitting and coming
back resumes where you left off.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if serverURL != "" {
				cfg.Server.BaseURL = serverURL
			}
			if dbPath != "" {
				cfg.Storage.Path = dbPath
			}
			if verbose {
				cfg.Log.Verbose = true
			}
			return a.setup(cfg)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "dialogcli.toml", "path to the TOML config file")
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "dialog service base URL (overrides config)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "local state database path (overrides config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSchemesCmd(a))
	root.AddCommand(newTokenCmd(a))

	return root
}

// setup builds the client core from a resolved config.
func (a *app) setup(cfg config.Config) error {
	logCfg := zap.NewDevelopmentConfig()
	if cfg.Log.Verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	kv, err := store.NewSQLiteKV(cfg.Storage.Path)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.kv = kv
	a.timeout = time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	a.renderer = newConsoleRenderer(os.Stdout)

	sessions := session.NewCache(kv, log)
	client := api.NewClient(cfg.Server.BaseURL,
		api.WithLogger(log),
		api.WithHTTPClient(&http.Client{Timeout: a.timeout}),
		api.WithTokenSource(func() (string, bool) {
			return kv.Get(store.KeyAuthToken)
		}),
	)
	a.registry = scheme.NewRegistry(client, kv, sessions, log)
	a.controller = dialog.NewController(client, sessions, a.renderer, log)
	return nil
}

// runChat is the interactive session loop.
func (a *app) runChat() error {
	fmt.Println("dialogcli. Type /help for commands, /quit to leave.")

	ctx, cancel := a.ctx()
	resumed, err := a.registry.RestoreActive(ctx)
	cancel()
	if err != nil {
		fmt.Println("Could not reach the service:", err)
		fmt.Println("Commands still work; answers will fail until it is back.")
	} else if resumed == nil {
		fmt.Println("No schemes yet. Create one with /create <name>.")
	} else {
		fmt.Printf("Scheme: %s (id %d)\n", resumed.Name, resumed.ID)
		ctx, cancel := a.ctx()
		if err := a.controller.SelectScheme(ctx, resumed.ID); err != nil {
			a.log.Warn("resume failed", zap.Error(err))
		}
		cancel()
	}

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(a.renderer.Prompt())
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.runCommand(line); quit {
				return nil
			}
			continue
		}
		a.answer(line)
	}
}

// runCommand handles one /command line. Returns true to quit.
func (a *app) runCommand(line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/q", "/exit":
		return true
	case "/help":
		printHelp()
	case "/schemes":
		a.printSchemes()
	case "/create":
		a.createScheme(rest)
	case "/delete":
		a.deleteScheme(rest)
	case "/select":
		a.selectScheme(rest)
	case "/reset":
		a.toggled = nil
		ctx, cancel := a.ctx()
		defer cancel()
		if err := a.controller.Reset(ctx); err != nil {
			a.log.Warn("reset failed", zap.Error(err))
		}
	case "/toggle":
		if rest == "" {
			fmt.Println("Usage: /toggle <factor name>")
			return false
		}
		a.toggled = toggleSet(a.toggled, rest)
		a.controller.ToggleFactor(rest, a.toggled[rest])
	default:
		fmt.Println("Unknown command. Type /help.")
	}
	return false
}

func toggleSet(m map[string]bool, name string) map[string]bool {
	if m == nil {
		m = make(map[string]bool)
	}
	m[name] = !m[name]
	return m
}

func (a *app) answer(text string) {
	ctx, cancel := a.ctx()
	defer cancel()

	err := a.controller.SubmitAnswer(ctx, text)
	switch {
	case errors.Is(err, dialog.ErrYesNoOnly):
		fmt.Printf("This question accepts only %q or %q.\n", dialog.AnswerYes, dialog.AnswerNo)
	case errors.Is(err, dialog.ErrNotAwaitingAnswer):
		fmt.Println("No open question. Pick a scheme with /select or /create one.")
	case errors.Is(err, dialog.ErrEmptyInput):
	case err != nil:
		a.log.Warn("answer failed", zap.Error(err))
	}
}

func (a *app) printSchemes() {
	ctx, cancel := a.ctx()
	defer cancel()

	schemes, err := a.registry.List(ctx)
	if err != nil {
		fmt.Println("Failed to list schemes:", err)
		return
	}
	if len(schemes) == 0 {
		fmt.Println("No schemes.")
		return
	}
	active, hasActive := a.registry.ActiveScheme()
	for _, s := range schemes {
		marker := "  "
		if hasActive && s.ID == active {
			marker = "* "
		}
		fmt.Printf("%s%d\t%s\n", marker, s.ID, s.Name)
	}
}

func (a *app) createScheme(name string) {
	if name == "" {
		fmt.Println("Usage: /create <name>")
		return
	}
	ctx, cancel := a.ctx()
	defer cancel()

	created, err := a.registry.Create(ctx, name)
	if err != nil {
		fmt.Println("Failed to create scheme:", err)
		return
	}
	fmt.Printf("Scheme: %s (id %d)\n", created.Name, created.ID)
	a.toggled = nil
	if err := a.controller.SelectScheme(ctx, created.ID); err != nil {
		a.log.Warn("start after create failed", zap.Error(err))
	}
}

func (a *app) deleteScheme(arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("Usage: /delete <id>")
		return
	}
	ctx, cancel := a.ctx()
	defer cancel()

	if err := a.registry.Delete(ctx, id); err != nil {
		fmt.Println("Failed to delete scheme:", err)
		return
	}
	fmt.Println("Deleted.")
	if next, ok := a.registry.ActiveScheme(); ok {
		fmt.Printf("Switching to scheme %d.\n", next)
		if err := a.controller.SelectScheme(ctx, next); err != nil {
			a.log.Warn("select after delete failed", zap.Error(err))
		}
	}
}

func (a *app) selectScheme(arg string) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fmt.Println("Usage: /select <id>")
		return
	}
	a.registry.SetActive(id)
	a.toggled = nil

	ctx, cancel := a.ctx()
	defer cancel()
	if err := a.controller.SelectScheme(ctx, id); err != nil {
		a.log.Warn("select scheme failed", zap.Error(err))
	}
}

func printHelp() {
	fmt.Print(`Commands:
  /schemes          list schemes (* marks the active one)
  /create <name>    create a scheme and start its dialog
  /delete <id>      delete a scheme
  /select <id>      switch to a scheme, resuming its session
  /toggle <factor>  show or hide a factor's values on the tree
  /reset            restart the current session from scratch
  /quit             leave

Anything else is sent as your answer to the open question.
`)
}

// =============================================================================
// Subcommands
// =============================================================================

func newSchemesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemes",
		Short: "Manage questionnaire schemes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schemes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			schemes, err := a.registry.List(ctx)
			if err != nil {
				return err
			}
			for _, s := range schemes {
				fmt.Printf("%d\t%s\n", s.ID, s.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name>",
		Short: "Create a scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx()
			defer cancel()
			created, err := a.registry.Create(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d\t%s\n", created.ID, created.Name)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scheme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scheme id %q", args[0])
			}
			ctx, cancel := a.ctx()
			defer cancel()
			return a.registry.Delete(ctx, id)
		},
	})

	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored auth token",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <token>",
		Short: "Store the bearer token sent with every request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.kv.Set(store.KeyAuthToken, args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.kv.Remove(store.KeyAuthToken)
		},
	})

	return cmd
}
