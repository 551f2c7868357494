package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skobkin/menulink/internal/app"
	"github.com/skobkin/menulink/internal/config"
	"github.com/spf13/cobra"
)

const defaultReadyTimeout = 30 * time.Second

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	transport  string
	mode       string
	host       string
	port       int
	serialPort string
	serialBaud int
	bleAddress string
	wsURL      string
	logLevel   string
	metrics    string
	journal    bool
	noJournal  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "menuctl: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "menuctl",
		Short: "Remote control client for embedded menu applications",
		Long: `menuctl connects to an embedded device exposing a menu over the
tag-value remote protocol (TCP, serial, Bluetooth LE or WebSocket),
mirrors its menu tree and lets you watch and change values.

Examples:
  menuctl tree --host 192.168.1.40
  menuctl set 3 55 --serial /dev/ttyACM0
  menuctl watch --metrics 127.0.0.1:9464
  menuctl history --item 3 --limit 20`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (.toml or .json), default in the user config dir")
	flags.StringVar(&opts.transport, "transport", "", "transport: ip, serial, bluetooth or websocket")
	flags.StringVar(&opts.mode, "mode", "", "connection mode: join or pairing")
	flags.StringVar(&opts.host, "host", "", "remote host for the ip transport")
	flags.IntVar(&opts.port, "port", 0, "remote port for the ip transport")
	flags.StringVar(&opts.serialPort, "serial", "", "serial port, e.g. /dev/ttyACM0")
	flags.IntVar(&opts.serialBaud, "baud", 0, "serial baud rate")
	flags.StringVar(&opts.bleAddress, "ble", "", "Bluetooth LE device address")
	flags.StringVar(&opts.wsURL, "ws", "", "WebSocket URL, e.g. ws://panel.local/menu")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics on this address")
	flags.BoolVar(&opts.journal, "journal", false, "record events into the journal")
	flags.BoolVar(&opts.noJournal, "no-journal", false, "do not record events into the journal")
	root.MarkFlagsMutuallyExclusive("journal", "no-journal")

	root.AddCommand(
		watchCmd(opts),
		treeCmd(opts),
		setCmd(opts),
		deltaCmd(opts),
		dialogCmd(opts),
		historyCmd(opts),
		versionCmd(),
	)

	return root
}

// apply copies explicit flags onto cfg. An endpoint flag selects its
// transport unless --transport names one.
func (o *rootOptions) apply(cfg *config.AppConfig) {
	conn := &cfg.Connection
	implied := config.TransportKind("")

	if v := strings.TrimSpace(o.host); v != "" {
		conn.Host = v
		implied = config.TransportIP
	}
	if o.port > 0 {
		conn.Port = o.port
	}
	if v := strings.TrimSpace(o.serialPort); v != "" {
		conn.SerialPort = v
		implied = config.TransportSerial
	}
	if o.serialBaud > 0 {
		conn.SerialBaud = o.serialBaud
	}
	if v := strings.TrimSpace(o.bleAddress); v != "" {
		conn.BluetoothAddress = v
		implied = config.TransportBluetooth
	}
	if v := strings.TrimSpace(o.wsURL); v != "" {
		conn.WebSocketURL = v
		implied = config.TransportWebSocket
	}

	switch {
	case strings.TrimSpace(o.transport) != "":
		conn.Transport = config.TransportKind(strings.ToLower(strings.TrimSpace(o.transport)))
	case implied != "":
		conn.Transport = implied
	}
	if v := strings.TrimSpace(o.mode); v != "" {
		conn.Mode = config.ConnectionMode(strings.ToLower(v))
	}

	if v := strings.TrimSpace(o.logLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(o.metrics); v != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = v
	}
	if o.journal {
		cfg.Journal.Enabled = true
	}
	if o.noJournal {
		cfg.Journal.Enabled = false
	}
}

// startRuntime builds the runtime with flag overrides and starts
// connecting.
func startRuntime(ctx context.Context, opts *rootOptions) (*app.Runtime, error) {
	rt, err := app.Initialize(ctx, app.Options{
		ConfigFile: opts.configFile,
		LogOutput:  os.Stderr,
		Override:   opts.apply,
	})
	if err != nil {
		return nil, err
	}
	if err := rt.Start(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	return rt, nil
}

// startReady starts the runtime and waits for the remote to finish its
// bootstrap.
func startReady(ctx context.Context, opts *rootOptions, timeout time.Duration) (*app.Runtime, error) {
	rt, err := startRuntime(ctx, opts)
	if err != nil {
		return nil, err
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rt.WaitReady(wctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	return rt, nil
}
