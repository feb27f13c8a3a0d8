package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/client"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/signalclient"
	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/webrtcpeer"
)

const dialTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewClientLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ICEFromRelay {
		fetchCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		servers, err := signalclient.FetchICEServers(fetchCtx, nil, cfg.RelayURL, cfg.Origin)
		cancel()
		if err != nil {
			logger.Error("failed to fetch ice servers from relay", "url", cfg.RelayURL, "err", err)
			os.Exit(1)
		}
		logger.Info("using relay ice servers", "count", len(servers))
		cfg.ICEServers = servers
	}

	engine, err := webrtcpeer.NewEngine(webrtcpeer.OptionsFromConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	sc, err := signalclient.Dial(dialCtx, signalclient.Config{
		URL:    cfg.RelayURL,
		Origin: cfg.Origin,
		Logger: logger,
	})
	cancel()
	if err != nil {
		logger.Error("failed to connect to relay", "url", cfg.RelayURL, "err", err)
		os.Exit(1)
	}
	defer sc.Close()

	out := newConsoleObserver(os.Stdout)
	sess := client.New(client.Config{
		Engine:   engine,
		Signaler: sc,
		Observer: out,
		Logger:   logger,
	})

	sessDone := make(chan error, 1)
	go func() { sessDone <- sess.Run(ctx) }()
	go func() {
		if err := sc.Run(sess); err != nil {
			logger.Warn("signaling connection ended", "err", err)
		}
	}()

	out.printf("connected to %s; type help for commands", cfg.RelayURL)
	repl(ctx, sess, out, os.Stdin)

	if snap, err := sess.Snapshot(); err == nil && snap.State != client.StateIdle {
		_ = sess.End()
	}
	stop()
	if err := <-sessDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session exited", "err", err)
	}
}

// repl reads commands until quit, EOF or ctx is done.
func repl(ctx context.Context, c controller, out *consoleObserver, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, err := parseCommand(line)
			if err != nil {
				out.printf("! %v", err)
				continue
			}
			if err := execute(c, out, cmd); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				out.printf("! %v", err)
			}
		}
	}
}
