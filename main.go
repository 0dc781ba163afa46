package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"recipe-chat/internal/config"
	"recipe-chat/internal/conversation"
	"recipe-chat/internal/logger"
	"recipe-chat/internal/ragclient"
	"recipe-chat/internal/terminal"
	"recipe-chat/internal/tuners"
	"recipe-chat/internal/ui"
)

var version = "0.1.0"

var (
	configFile string
	envFile    string
	v          = viper.New()
)

var rootCmd = &cobra.Command{
	Use:          "recipe-chat",
	Short:        "Terminal chat client for the recipe assistant",
	Long:         "recipe-chat streams answers from the recipe assistant backend, keeps independent conversations in tabs and offers follow-up suggestions after every answer.",
	SilenceUsage: true,
	RunE:         runChat,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE:  runHealth,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("recipe-chat v%s\n", version)
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ~/.recipe-chat/config.{yaml,toml,json})")
	flags.StringVar(&envFile, "env-file", "", ".env file with RECIPE_CHAT_* variables (default ./.env)")

	flags.String(config.KeyChatEndpoint, "", "Chat endpoint; answers stream from {endpoint}/stream")
	flags.String(config.KeyTunerEndpoint, "", "Tuner suggestion endpoint")
	flags.String(config.KeyHealthEndpoint, "", "Health check endpoint (empty disables the check)")
	flags.String(config.KeyAPIKey, "", "Backend API key")
	flags.Duration(config.KeyTimeout, 0, "Timeout for tuner and health requests")
	flags.Duration(config.KeyStreamTimeout, 0, "Timeout for a whole streamed answer (0 for none)")
	flags.Int(config.KeyMaxTuners, 0, "Maximum number of suggestions shown")
	flags.Float64(config.KeyTemperature, 0, "Sampling temperature sent to the backend")
	flags.Float64(config.KeyTopP, 0, "Nucleus sampling probability sent to the backend")
	flags.Int(config.KeyTopK, 0, "Top-k sampling sent to the backend")
	flags.Int(config.KeyMaxTokens, 0, "Maximum answer tokens sent to the backend")
	flags.String(config.KeyLogLevel, "", "Set log level (debug|info|warn|error) [default: info]")
	flags.String(config.KeyLogFile, "", "Write logs to file instead of stderr")
	flags.Bool(config.KeyRender, true, "Render finalized answers as markdown")

	for _, key := range []string{
		config.KeyChatEndpoint, config.KeyTunerEndpoint, config.KeyHealthEndpoint,
		config.KeyAPIKey, config.KeyTimeout, config.KeyStreamTimeout, config.KeyMaxTuners,
		config.KeyTemperature, config.KeyTopP, config.KeyTopK, config.KeyMaxTokens,
		config.KeyLogLevel, config.KeyLogFile, config.KeyRender,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves and validates the configuration and configures the
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, configFile, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *ragclient.Client {
	return ragclient.NewClient(ragclient.Options{
		ChatEndpoint:   cfg.ChatEndpoint,
		TunerEndpoint:  cfg.TunerEndpoint,
		HealthEndpoint: cfg.HealthEndpoint,
		APIKey:         cfg.APIKey,
		Timeout:        cfg.Timeout,
		StreamTimeout:  cfg.StreamTimeout,
		Params: &ragclient.GenerationParams{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			MaxTokens:   cfg.MaxTokens,
		},
	})
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	display := ui.NewDisplay(os.Stdout, false)

	if err := newClient(cfg).HealthCheck(cmd.Context()); err != nil {
		display.PrintError(err)
		return err
	}
	display.PrintSuccess("backend is healthy")
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.For("main")
	ctx := cmd.Context()

	display := ui.NewDisplay(os.Stdout, cfg.Render)
	client := newClient(cfg)

	// Health check (non-fatal)
	if err := client.HealthCheck(ctx); err != nil {
		log.Warn("health check failed", "error", err)
		display.PrintWarning(fmt.Sprintf("Backend health check failed: %v", err))
	}

	executor := conversation.NewExecutor(client, nil)
	fetcher := tuners.NewFetcher(client, cfg.MaxTuners, nil)
	store := conversation.NewStore(executor, fetcher, nil)
	store.Subscribe(display.Observe)

	// Ctrl+C cancels the answer in flight, or quits when there is none
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for sig := range sigChan {
			if sig == os.Interrupt && store.Cancel(store.ActiveTabID()) {
				continue
			}
			display.PrintGoodbye()
			os.Exit(0)
		}
	}()

	display.PrintWelcome(cfg.ChatEndpoint)
	display.Follow(store.ActiveTab())

	r := &repl{store: store, display: display, input: terminal.NewInput(os.Stdin)}
	if err := r.run(ctx); err != nil {
		return err
	}
	display.PrintGoodbye()
	return nil
}

type repl struct {
	store   *conversation.Store
	display *ui.Display
	input   *terminal.Input
}

// run reads lines until /exit or end of input. Prompts are sent on the
// active tab and block until the answer and its suggestions are in.
func (r *repl) run(ctx context.Context) error {
	for {
		r.display.PrintPrompt(r.store.ActiveTabID())
		line, err := r.input.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		cmd, isCmd, err := terminal.ParseCommand(line)
		if err != nil {
			r.display.PrintError(err)
			continue
		}
		if !isCmd {
			r.send(ctx, line)
			continue
		}
		if cmd.Name == terminal.CmdExit {
			return nil
		}
		r.handle(ctx, cmd)
	}
}

func (r *repl) handle(ctx context.Context, cmd terminal.Command) {
	switch cmd.Name {
	case terminal.CmdHelp:
		r.display.PrintHelp()

	case terminal.CmdClear:
		r.display.ClearScreen()

	case terminal.CmdNewTab:
		tab := r.store.AddTab()
		r.switchTo(tab.ID)

	case terminal.CmdTab:
		r.switchTo(cmd.Arg)

	case terminal.CmdTabs:
		r.display.PrintTabs(r.store.Tabs(), r.store.ActiveTabID(), r.store.Status)

	case terminal.CmdTuner:
		current := r.store.Tuners()
		if cmd.Arg < 1 || cmd.Arg > len(current) {
			r.display.PrintWarning(fmt.Sprintf("No suggestion %d", cmd.Arg))
			return
		}
		r.send(ctx, current[cmd.Arg-1])

	case terminal.CmdHistory:
		tab := r.store.ActiveTab()
		if err := r.display.PrintJSON(fmt.Sprintf("Chat history (tab %d)", tab.ID), tab.History); err != nil {
			r.display.PrintError(err)
		}

	case terminal.CmdCalls:
		tab := r.store.ActiveTab()
		if err := r.display.PrintJSON(fmt.Sprintf("Function calls (tab %d)", tab.ID), tab.FunctionCallLog); err != nil {
			r.display.PrintError(err)
		}
	}
}

func (r *repl) switchTo(id int) {
	if err := r.store.SwitchTab(id); err != nil {
		r.display.PrintError(fmt.Errorf("tab %d: %w", id, err))
		return
	}
	r.display.Follow(r.store.ActiveTab())
}

func (r *repl) send(ctx context.Context, text string) {
	err := r.store.SendMessage(ctx, text)

	var transportErr *conversation.TransportError
	switch {
	case err == nil:
		r.display.PrintTuners(r.store.Tuners())
	case errors.Is(err, context.Canceled):
		r.display.PrintInfo("Answer cancelled")
	case errors.As(err, &transportErr):
		r.display.PrintWarning(fmt.Sprintf("Connection problem: %v", transportErr.Err))
	case errors.Is(err, conversation.ErrTabBusy):
		r.display.PrintWarning("This tab is still answering")
	}
}
