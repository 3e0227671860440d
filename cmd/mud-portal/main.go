// Package main provides the entry point for the mud-portal server, the
// WebSocket-to-telnet proxy that lets browser clients play on legacy MUD
// servers.
//
// Usage:
//
//	mud-portal [flags]
//
// Every flag can also be set through the environment with the MUDPORTAL_
// prefix and dashes replaced by underscores, e.g. MUDPORTAL_DEFAULT_HOST.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/go-mud/go-mud-portal/lib/bridge"
	"github.com/go-mud/go-mud-portal/lib/session"
	"github.com/go-mud/go-mud-portal/lib/util"
)

var (
	// Version is set at build time via ldflags.
	Version = "dev"

	// Build info.
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := parseConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&util.LineFormatter{})
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if cfg.TLSEnabled() {
		if err := checkReadable(cfg.CertFile, cfg.KeyFile); err != nil {
			log.WithError(err).Error("certificate files not readable")
			return 1
		}
	}

	log.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
	}).Info("starting mud-portal")

	server, err := bridge.NewServer(cfg, log)
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	errChan := make(chan error, 1)
	go func() { errChan <- server.ListenAndServe() }()

	code := 0
	select {
	case sig := <-sigChan:
		log.Infof("received %s", sig)
		if sig == syscall.SIGQUIT {
			// A core dump was asked for; close cleanly but exit
			// distinctly so supervisors can tell the cases apart.
			code = 3
		}
	case err := <-errChan:
		if err != nil {
			log.WithError(err).Error("server error")
			code = 1
		}
	}

	if err := server.Close(); err != nil {
		log.WithError(err).Warn("error stopping server")
	}
	log.Info("mud-portal stopped")
	return code
}

// parseConfig resolves the configuration: flag values, overridden by
// MUDPORTAL_ environment variables where set.
func parseConfig() (*bridge.Config, error) {
	cfg := bridge.DefaultConfig()
	cfg.Negotiation = bridge.DefaultNegotiation(Version)

	pflag.String("listen", cfg.ListenAddr, "WebSocket listen address")
	pflag.String("ws-path", cfg.WSPath, "WebSocket upgrade path")
	pflag.String("default-host", "", "default MUD host")
	pflag.Int("default-port", cfg.Upstream.DefaultPort, "default MUD port")
	pflag.Bool("only-default-host", false, "refuse connects to hosts other than the default")
	pflag.StringSlice("ttype", cfg.Negotiation.TerminalTypes, "terminal types announced over TTYPE")
	pflag.StringSlice("gmcp-portal", cfg.Negotiation.GMCPPortal, "GMCP introduction messages")
	pflag.StringSlice("msdp-pair", msdpFlagDefaults(cfg.Negotiation.MSDPPairs), "MSDP introduction pairs (KEY=value)")
	pflag.Bool("compress", false, "deflate outbound frames")
	pflag.Bool("debug", false, "debug logging and frame traces")
	pflag.String("cert", "", "TLS certificate file")
	pflag.String("key", "", "TLS key file")
	pflag.String("chat-log", cfg.Chat.LogPath, "chat history file")
	pflag.Int("chat-history", cfg.Chat.HistoryLimit, "chat history length")
	pflag.Duration("mccp-delay", cfg.Negotiation.MCCPDelay, "delay before agreeing to MCCP2")
	pflag.Duration("teardown-delay", cfg.Timeouts.Teardown, "notice-then-close delay")
	pflag.Duration("dial-timeout", cfg.Upstream.DialTimeout, "upstream dial timeout")
	pflag.Duration("idle-timeout", 0, "upstream idle timeout (0 = none)")
	pflag.Bool("metrics", cfg.Metrics, "expose /metrics on the listen address")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("mud-portal %s (%s, built %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	v := viper.New()
	v.SetEnvPrefix("MUDPORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	cfg.ListenAddr = v.GetString("listen")
	cfg.WSPath = v.GetString("ws-path")
	cfg.CertFile = v.GetString("cert")
	cfg.KeyFile = v.GetString("key")
	cfg.Upstream.DefaultHost = v.GetString("default-host")
	cfg.Upstream.DefaultPort = v.GetInt("default-port")
	cfg.Upstream.OnlyDefaultHost = v.GetBool("only-default-host")
	cfg.Upstream.DialTimeout = v.GetDuration("dial-timeout")
	cfg.Upstream.IdleTimeout = v.GetDuration("idle-timeout")
	cfg.Negotiation.TerminalTypes = v.GetStringSlice("ttype")
	cfg.Negotiation.GMCPPortal = v.GetStringSlice("gmcp-portal")
	pairs, err := parseMSDPPairs(v.GetStringSlice("msdp-pair"))
	if err != nil {
		return nil, err
	}
	cfg.Negotiation.MSDPPairs = pairs
	cfg.Negotiation.MCCPDelay = v.GetDuration("mccp-delay")
	cfg.Chat.LogPath = v.GetString("chat-log")
	cfg.Chat.HistoryLimit = v.GetInt("chat-history")
	cfg.Timeouts.Teardown = v.GetDuration("teardown-delay")
	cfg.Compress = v.GetBool("compress")
	cfg.Debug = v.GetBool("debug")
	cfg.Metrics = v.GetBool("metrics")

	return cfg, nil
}

// msdpFlagDefaults renders introduction pairs back into the KEY=value shape
// the flag takes.
func msdpFlagDefaults(pairs []session.MSDPIntro) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Key+"="+p.Value)
	}
	return out
}

// parseMSDPPairs parses ordered KEY=value strings into introduction pairs.
func parseMSDPPairs(raw []string) ([]session.MSDPIntro, error) {
	pairs := make([]session.MSDPIntro, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed MSDP pair %q, want KEY=value", kv)
		}
		pairs = append(pairs, session.MSDPIntro{Key: key, Value: value})
	}
	return pairs, nil
}

// checkReadable stats every path, so a missing certificate fails startup
// instead of the first TLS handshake.
func checkReadable(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	return nil
}
