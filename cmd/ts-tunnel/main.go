package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bscott/ts-tunnel/internal/collector"
	"github.com/bscott/ts-tunnel/internal/config"
	"github.com/bscott/ts-tunnel/internal/master"
	"github.com/bscott/ts-tunnel/internal/server"
	"github.com/bscott/ts-tunnel/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Default configuration values
const (
	defaultPort     = 50001
	defaultHostname = "tunnel"
	defaultLogLevel = "info"
)

type options struct {
	Name             string
	Password         string
	MaxClients       int
	NoMaster         bool
	Port             int
	EnableTailscale  bool
	HostName         string
	MasterURL        string
	AnnounceInterval time.Duration
	Headless         bool
	LogLevel         string
}

func main() {
	opts := parseFlags()
	setupLogging(opts.LogLevel)

	engine := server.NewServer(server.Config{
		Port:             opts.Port,
		EnableTailscale:  opts.EnableTailscale,
		HostName:         opts.HostName,
		MasterURL:        opts.MasterURL,
		AnnounceInterval: opts.AnnounceInterval,
	})
	startup := collector.New(engine)

	initial := config.RawInput{
		Name:       opts.Name,
		Password:   opts.Password,
		MaxClients: opts.MaxClients,
		Register:   !opts.NoMaster,
	}

	if opts.Headless || !isatty.IsTerminal(os.Stdin.Fd()) {
		startup.Confirm(initial)
	} else {
		started, err := configure(initial, runProgram, startup)
		if err != nil {
			log.Fatal(err)
		}
		if !started {
			os.Exit(0)
		}
	}

	if opts.EnableTailscale && os.Getenv("TS_AUTHKEY") == "" {
		log.Warn("TS_AUTHKEY environment variable not set. Tailscale mode may not work properly.")
	}
	fmt.Println(ui.FormatSystemMessage("Relay starting. Press Ctrl+C to stop."))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down relay...")
	if err := engine.Stop(); err != nil {
		log.Errorf("Error shutting down relay: %v", err)
	}
	os.Exit(0)
}

// formRunner runs a tea model until it quits
type formRunner func(m tea.Model) error

func runProgram(m tea.Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// configure shows the configuration form and, once it has quit and log
// output is back on the terminal, starts the relay with the confirmed values.
// It reports whether the relay was started.
func configure(initial config.RawInput, run formRunner, startup *collector.Collector) (bool, error) {
	// The form owns the terminal until it quits; hold log lines until then
	out := log.StandardLogger().Out
	var held bytes.Buffer
	log.SetOutput(&held)

	form := ui.NewForm(initial)
	err := run(form)

	log.SetOutput(out)
	if _, copyErr := io.Copy(out, &held); copyErr != nil {
		log.Warnf("Failed to flush held log output: %v", copyErr)
	}

	if err != nil {
		return false, fmt.Errorf("configuration form failed: %w", err)
	}
	if !form.Confirmed() {
		return false, nil
	}

	startup.Confirm(form.Input())
	return true, nil
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using %s", level, defaultLogLevel)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func parseFlags() options {
	var opts options

	// Define command-line flags
	pflag.StringVarP(&opts.Name, "name", "n", "", "Tunnel name shown in the master directory")
	pflag.StringVarP(&opts.Password, "password", "P", "", "Password clients must supply (empty for none)")
	pflag.IntVarP(&opts.MaxClients, "max-clients", "m", config.DefaultMaxClients,
		fmt.Sprintf("Maximum concurrent clients (%d-%d)", config.MinClients, config.MaxClients))
	pflag.BoolVar(&opts.NoMaster, "no-master", false, "Don't register with the master directory")
	pflag.IntVarP(&opts.Port, "port", "p", defaultPort, "TCP port to listen on")
	pflag.BoolVarP(&opts.EnableTailscale, "tailscale", "t", false, "Listen on the tailnet instead of all interfaces")
	pflag.StringVarP(&opts.HostName, "hostname", "H", defaultHostname, "Tailscale hostname (only used if --tailscale is enabled)")
	pflag.StringVar(&opts.MasterURL, "master-url", master.DefaultURL, "Master directory announce URL")
	pflag.DurationVar(&opts.AnnounceInterval, "announce-interval", master.DefaultInterval, "Time between master announcements")
	pflag.BoolVar(&opts.Headless, "headless", false, "Skip the configuration form and start with the flag values")
	pflag.StringVar(&opts.LogLevel, "log-level", defaultLogLevel, "Log level (debug, info, warn, error)")

	// Display help message
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
	return opts
}
