// Command kgd is the Kinoglaz RTSP/RTP/RTCP streaming daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/kinoglaz/kgd/internal/config"
	"github.com/kinoglaz/kgd/internal/logging"
	"github.com/kinoglaz/kgd/internal/rtspcore"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion = flag.Bool("v", false, "print version and exit")
		showVersion2 = flag.Bool("version", false, "print version and exit")
		configPath  = flag.String("c", "", "path to the INI configuration file")
		daemonize   = flag.Bool("d", false, "daemonize after startup")
	)
	flag.Parse()

	if *showVersion || *showVersion2 {
		fmt.Printf("%s %s\n", rtspcore.DaemonName, version)
		return 0
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "kgd: -c <config-file> is required")
		return 1
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kgd: %v\n", err)
		return 1
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if *daemonize {
		logger.Info().Msg("daemonize requested; running in foreground (no fork-on-Linux-without-cgo primitive in this stack)")
	}

	listener, err := net.Listen("tcp", ":554")
	if err != nil {
		logger.Error().Err(err).Msg("failed to bind RTSP listener")
		return 1
	}

	holder := config.NewHolder(cfg)
	server := rtspcore.NewServer(listener, holder, logger)

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				reloaded, err := config.LoadFile(*configPath)
				if err != nil {
					logger.Warn().Err(err).Msg("config reload failed, keeping previous settings")
					continue
				}
				server.Reload(reloaded)
				logger.Info().Msg("configuration reloaded")
			case syscall.SIGTERM, syscall.SIGINT:
				logger.Info().Msg("shutting down")
				cancel()
				return
			}
		}
	}()

	logger.Info().Str("addr", listener.Addr().String()).Msg("kgd listening")
	if err := server.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return 1
	}

	return 0
}
