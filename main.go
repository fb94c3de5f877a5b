// =============================================================================
// main.go - ESP Console Entry Point
// =============================================================================
//
// esp-console is a bench tool for poking an embedded TCP endpoint (an
// ESP8266 UART gateway) by hand. It keeps one raw TCP connection open, sends
// whatever hex bytes the user types, and prints whatever comes back within
// two seconds. There is no framing and no protocol: bytes in, bytes out.
//
// Usage:
//
//	esp-console                              Connect to 192.168.0.108:502
//	esp-console --address 10.0.0.5 --port 23 Connect somewhere else
//	esp-console --retry-delay 0              Reconnect immediately
//	esp-console --config bench.yaml          Read settings from a file
//	esp-console --log debug                  Trace the connection on stderr
//
// Type hex bytes ("01 03 00 00 00 0A") and press Enter to send them. Type
// "exit" or press Ctrl-D / Ctrl-C to quit.
//
// =============================================================================

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LayAlex/ESP-TCP-UART-Gateway/rawtcp"
)

const (
	// version is the current version of the console.
	version = "1.0.0"

	// appName is the application name.
	appName = "ESP Console"
)

// fullTitle returns the application name with version.
func fullTitle() string {
	return fmt.Sprintf("%s v%s", appName, version)
}

// welcomeBanner returns the text printed once at startup.
func welcomeBanner(target string) string {
	return fmt.Sprintf(`%s - raw TCP client for ESP8266 gateways
Target: %s

Press Ctrl+C or type '%s' to quit.
`, fullTitle(), target, rawtcp.ExitKeyword)
}

// cliFlags holds the raw flag values. Only flags the user actually set
// override lower configuration layers.
type cliFlags struct {
	configPath string

	address            string
	port               int
	connectTimeout     time.Duration
	sendTimeout        time.Duration
	receiveTimeout     time.Duration
	responseTimeout    time.Duration
	pollInterval       time.Duration
	retryDelay         time.Duration
	reconnectOnTimeout bool
	historyFile        string
	logLevel           string
}

// GO CONCEPT: Building a Command With cobra
// -----------------------------------------
// spf13/cobra turns a struct literal into a command-line program: usage
// text, --help, --version and typed flags come for free. RunE returns an
// error instead of calling os.Exit, which keeps the command testable:
// tests call SetArgs and Execute and inspect the error.
//
// SilenceUsage/SilenceErrors stop cobra from printing the usage block on
// every runtime error; main decides how errors are shown.
//
// Compare with Python: click or argparse. A cobra.Command is roughly a
// @click.command() function with its @click.option decorators.
func newRootCommand(run func(cfg Config, logger *slog.Logger) error) *cobra.Command {
	var flags cliFlags
	defaults := defaultConfig()

	cmd := &cobra.Command{
		Use:   "esp-console",
		Short: "Interactive raw TCP client for testing embedded devices",
		Long: `esp-console connects to a device over TCP, sends hex bytes typed at the
prompt and prints the raw response as hex. It reconnects automatically
whenever the connection drops.`,
		Example:       "  esp-console --address 192.168.0.108 --port 502\n  ESPCONSOLE_RETRY_DELAY=0s esp-console",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath, flags.overrides(cmd))
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return run(cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file")
	f.StringVar(&flags.address, "address", defaults.Address, "device address")
	f.IntVar(&flags.port, "port", defaults.Port, "device TCP port")
	f.DurationVar(&flags.connectTimeout, "connect-timeout", defaults.ConnectTimeout, "connect timeout")
	f.DurationVar(&flags.sendTimeout, "send-timeout", defaults.SendTimeout, "write timeout")
	f.DurationVar(&flags.receiveTimeout, "receive-timeout", defaults.ReceiveTimeout, "read timeout once data is pending")
	f.DurationVar(&flags.responseTimeout, "response-timeout", defaults.ResponseTimeout, "how long to wait for a response")
	f.DurationVar(&flags.pollInterval, "poll-interval", defaults.PollInterval, "response poll interval")
	f.DurationVar(&flags.retryDelay, "retry-delay", defaults.RetryDelay, "pause between connection attempts (0 = immediate)")
	f.BoolVar(&flags.reconnectOnTimeout, "reconnect-on-timeout", defaults.ReconnectOnTimeout, "reconnect when a response times out")
	f.StringVar(&flags.historyFile, "history-file", "", "readline history file (default ~/"+historyFileName+")")
	f.StringVar(&flags.logLevel, "log", defaults.LogLevel, "log level: debug|info|warn|error")

	return cmd
}

// overrides returns the config keys for flags set on the command line.
func (f *cliFlags) overrides(cmd *cobra.Command) map[string]any {
	all := []struct {
		flag  string
		key   string
		value any
	}{
		{"address", "address", f.address},
		{"port", "port", f.port},
		{"connect-timeout", "connect_timeout", f.connectTimeout},
		{"send-timeout", "send_timeout", f.sendTimeout},
		{"receive-timeout", "receive_timeout", f.receiveTimeout},
		{"response-timeout", "response_timeout", f.responseTimeout},
		{"poll-interval", "poll_interval", f.pollInterval},
		{"retry-delay", "retry_delay", f.retryDelay},
		{"reconnect-on-timeout", "reconnect_on_timeout", f.reconnectOnTimeout},
		{"history-file", "history_file", f.historyFile},
		{"log", "log", f.logLevel},
	}

	out := make(map[string]any)
	for _, o := range all {
		if cmd.Flags().Changed(o.flag) {
			out[o.key] = o.value
		}
	}
	return out
}

// parseLogLevel maps a level name to slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}

// newLogger returns a text logger on w. Status lines meant for the user go
// to stdout; the log is diagnostics and stays on stderr.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// printError prints an error message to stderr.
func printError(message string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}

// setupSignalHandler requests shutdown and runs cleanup on SIGINT/SIGTERM.
//
// GO CONCEPT: Signal Handling
// ---------------------------
// signal.Notify delivers signals on a channel instead of killing the
// process. The goroutine below has two jobs only: flip the shutdown flag
// and release the connection. Everything else (leaving the session, the
// retry wait, the input read) notices the flag on its own, because every
// blocking point selects on shutdown.Done().
//
// Releasing the socket from this goroutine may race with a read or write
// on the main goroutine. That is fine: Release is idempotent and the
// in-flight call simply fails with an I/O error.
//
// Compare with Python: signal.signal(SIGINT, handler), where the handler
// sets a threading.Event and closes the socket.
func setupSignalHandler(shutdown *Shutdown, cleanup func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Println()
			fmt.Println("Shutting down...")
			shutdown.Request()
			cleanup()
		case <-shutdown.Done():
		}
	}()
}

// runConsole wires the pieces together and blocks until shutdown.
func runConsole(cfg Config, logger *slog.Logger) error {
	editor := NewLineEditor(cfg.HistoryFile)
	defer editor.Close()

	input := newLineSource(editor)
	defer input.Close()

	shutdown := NewShutdown()
	manager := rawtcp.NewManager(cfg.connOptions(logger))
	setupSignalHandler(shutdown, manager.Release)

	fmt.Print(welcomeBanner(cfg.Target()))

	c := &console{
		cfg:      cfg,
		manager:  manager,
		input:    input,
		shutdown: shutdown,
		out:      os.Stdout,
		logger:   logger,
	}
	c.run()
	return nil
}

func main() {
	if err := newRootCommand(runConsole).Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}
