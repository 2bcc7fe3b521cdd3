package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coolnoor19/wadesk/config"
	"github.com/coolnoor19/wadesk/internal/adminapi"
	"github.com/coolnoor19/wadesk/internal/app"
	"github.com/coolnoor19/wadesk/internal/domain"
	"github.com/coolnoor19/wadesk/internal/engine"
	"github.com/coolnoor19/wadesk/internal/eventbus"
	"github.com/coolnoor19/wadesk/internal/gateway"
	"github.com/coolnoor19/wadesk/internal/session"
	"github.com/coolnoor19/wadesk/internal/webserver"
)

var (
	cfile   = flag.String("c", "/etc/wadesk.yml", "config file")
	initdb  = flag.Bool("initdb", false, "drop and recreate database tables")
	showVer = flag.Bool("v", false, "print version")
)

var version = "dev"

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config.LoadConfig(*cfile)
	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := gateway.NewClient(cfg.Backend)
	transport := gateway.NewSocketTransport(cfg.Backend)
	bus := eventbus.New(transport)
	transport.SetDispatcher(bus)

	recon, err := engine.New(client, client, bus, engine.Hooks{})
	if err != nil {
		zap.S().Fatalf("engine init failed: %v", err)
	}

	window := time.Duration(cfg.Backend.QRValiditySeconds) * time.Second
	machine := session.NewMachine(client, window, session.Hooks{
		OnChange: func(s domain.Session) {
			zap.L().Info("session state changed",
				zap.String("session_id", s.ID), zap.String("status", s.Status))
		},
		// a freshly connected session becomes the engine's transport session
		OnConnected: func(sessionID string) {
			if err := recon.SetSession(sessionID); err != nil {
				zap.L().Warn("engine session switch failed",
					zap.String("session_id", sessionID), zap.Error(err))
			}
		},
		OnNotice: func(n session.Notice) {
			zap.L().Info("session notice",
				zap.String("session_id", n.SessionID), zap.String("kind", n.Kind))
		},
	})

	if err := machine.Attach(bus); err != nil {
		zap.S().Fatalf("session attach failed: %v", err)
	}
	if err := recon.Attach(bus); err != nil {
		zap.S().Fatalf("engine attach failed: %v", err)
	}

	application.SetSessionSource(machine.Snapshot)

	webserver.Init(application)
	adminapi.Setup(application, machine, recon, client)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// backend may come up after us; keep retrying the event socket
		for {
			err := bus.Start(gctx)
			if err == nil {
				return nil
			}
			zap.L().Warn("event socket connect failed, retrying", zap.Error(err))
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
	})

	g.Go(webserver.Listen)

	g.Go(func() error {
		<-gctx.Done()
		machine.Close()
		recon.Close()
		_ = bus.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.S().Errorf("server stopped: %v", err)
	}
}
