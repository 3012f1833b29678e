// Command airserved runs the AirPlay legacy-pairing protocol engine against
// a no-op renderer, a thin front door kept out of the module's scope: CLI
// parsing and config-file loading are left to embedders (spec.md Non-goal),
// so this just wires enough flags to be runnable.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/antimof/UxPlay-sub000/internal/config"
	"github.com/antimof/UxPlay-sub000/internal/daemon"
	"github.com/antimof/UxPlay-sub000/internal/renderer"
)

func main() {
	name := flag.String("name", "AirServed", "advertised server/device name")
	deviceID := flag.String("device-id", "58:55:CA:1A:E2:88", "colon-separated hex device identifier")
	keyFile := flag.String("keyfile", "", "path to persist the Ed25519 identity (empty: derive from -device-id)")
	rtspPort := flag.Int("rtsp-port", 0, "RTSP listening port (0: choose automatically)")
	enableIPv6 := flag.Bool("ipv6", false, "also bind a dual-stack IPv6 listener")
	maxConns := flag.Int("max-connections", 12, "concurrent connection cap")
	pin := flag.String("pin", "", "enable SRP-6a pair-setup-with-PIN using this PIN")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := config.New(
		config.WithServerName(*name),
		config.WithDeviceID(*deviceID),
		config.WithKeyFile(*keyFile),
		config.WithPorts(*rtspPort, 0),
		config.WithIPv6(*enableIPv6),
		config.WithMaxConnections(*maxConns),
		config.WithPIN(*pin),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "airserved:", err)
		os.Exit(1)
	}

	srv, err := daemon.New(log, cfg, renderer.NoopSink{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start daemon")
	}

	srv.Start()
	log.Info().Int("port", srv.Port()).Str("name", cfg.ServerName).Msg("airserved listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	srv.Stop()
}
