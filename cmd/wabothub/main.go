package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/pkg/errors"
	"github.com/talkincode/wabothub/config"
	"github.com/talkincode/wabothub/internal/adminapi"
	"github.com/talkincode/wabothub/internal/app"
	"github.com/talkincode/wabothub/internal/broadcast"
	"github.com/talkincode/wabothub/internal/dispatch"
	"github.com/talkincode/wabothub/internal/domain"
	"github.com/talkincode/wabothub/internal/pipeline"
	"github.com/talkincode/wabothub/internal/session"
	"github.com/talkincode/wabothub/internal/webserver"
	"github.com/talkincode/wabothub/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	h         bool
	x         bool
	initdb    bool
	qrconsole bool
	tenant    string
	conffile  string
)

func init() {
	flag.BoolVar(&h, "h", false, "help usage")
	flag.BoolVar(&x, "x", false, "debug mode")
	flag.BoolVar(&initdb, "initdb", false, "drop and recreate database tables")
	flag.BoolVar(&qrconsole, "qrconsole", false, "pair one tenant interactively, printing the QR to the terminal")
	flag.StringVar(&tenant, "tenant", "demo", "tenant key for -qrconsole")
	flag.StringVar(&conffile, "c", "/etc/wabothub.yml", "config file path")
}

func main() {
	flag.Parse()
	if h {
		flag.Usage()
		os.Exit(0)
	}

	cfg := config.LoadConfig(conffile)
	if x {
		cfg.System.Debug = true
	}

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	registry := session.NewRegistry()
	hub := broadcast.NewHub()
	factory := session.NewWhatsmeowFactory(cfg.SessionDir, cfg.System.Debug)
	ctrl := session.NewController(registry, factory, hub, session.Config{
		QRFreshWindow:  time.Duration(cfg.WhatsApp.QRFreshSeconds) * time.Second,
		AcquireWait:    time.Duration(cfg.WhatsApp.AcquireWaitSeconds) * time.Second,
		InitTimeout:    time.Duration(cfg.WhatsApp.InitTimeoutSeconds) * time.Second,
		ReconnectMax:   cfg.WhatsApp.ReconnectMax,
		ReconnectDelay: time.Duration(cfg.WhatsApp.ReconnectDelaySeconds) * time.Second,
	})

	store, err := pipeline.NewStore(application.DB())
	if err != nil {
		zap.S().Panicf("pipeline store init error: %v", err)
	}
	engine := pipeline.NewEngine(cfg.OpenAI, store)
	dispatcher, err := dispatch.NewDispatcher(cfg.WhatsApp.DispatchWorkers, engine, ctrl, store)
	if err != nil {
		zap.S().Panicf("dispatcher init error: %v", err)
	}
	defer dispatcher.Release()

	ctrl.OnMessage(func(tenantKey string, msg session.InboundMessage) {
		metrics.Counter(metrics.MessageInbound, metrics.TenantLabel(tenantKey))
		dispatcher.Handle(tenantKey, msg)
	})

	if qrconsole {
		runQRConsole(ctrl, hub, tenant)
		return
	}

	_, err = application.Scheduler().AddFunc("@every 30s", func() {
		metrics.Gauge(metrics.OnlineSessions, float64(registry.Len()))
		ctrl.SweepStaleQR()
	})
	if err != nil {
		zap.S().Errorf("gauge job error: %v", err)
	}

	_, err = application.Scheduler().AddFunc("@daily", func() {
		cutoff := time.Now().Add(-365 * 24 * time.Hour)
		if n, err := store.PurgeTurnsBefore(cutoff); err != nil {
			zap.L().Error("chat turn retention purge failed", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("chat turn retention purge", zap.Int64("deleted", n))
		}
	})
	if err != nil {
		zap.S().Errorf("retention job error: %v", err)
	}

	go bootstrapSessions(application, ctrl, factory)

	ws := webserver.Init(application)
	adminapi.Init(ctrl, hub, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(ws.Start)
	g.Go(func() error {
		<-ctx.Done()
		ws.Shutdown()
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zap.L().Error("server exited", zap.Error(err))
	}
}

// bootstrapSessions re-acquires sessions for enabled tenants that still
// have a credential partition from a previous run.
func bootstrapSessions(application *app.Application, ctrl *session.Controller, factory *session.WhatsmeowFactory) {
	time.Sleep(5 * time.Second)

	var tenants []domain.BotTenant
	if err := application.DB().
		Where("status = ?", domain.TenantEnabled).
		Find(&tenants).Error; err != nil {
		zap.L().Error("tenant bootstrap query failed", zap.Error(err))
		return
	}

	for _, t := range tenants {
		if !factory.HasCredentials(t.TenantKey) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		if _, err := ctrl.Acquire(ctx, t.TenantKey); err != nil {
			zap.L().Warn("tenant session bootstrap failed",
				zap.String("tenant", t.TenantKey), zap.Error(err))
		} else {
			zap.L().Info("tenant session restored", zap.String("tenant", t.TenantKey))
		}
		cancel()
	}
}

// runQRConsole pairs one tenant from the terminal, printing each QR as
// it arrives. Useful for first-time setup without the API.
func runQRConsole(ctrl *session.Controller, hub *broadcast.Hub, tenantKey string) {
	cancelQR, err := hub.SubscribeQR(tenantKey, func(rec session.QRRecord) {
		fmt.Println("Scan the QR code with WhatsApp:")
		qrterminal.GenerateHalfBlock(rec.Code, qrterminal.L, os.Stdout)
	})
	if err != nil {
		zap.S().Panicf("qr subscribe error: %v", err)
	}
	defer cancelQR()

	cancelStatus, err := hub.SubscribeStatus(tenantKey, func(ev session.StatusEvent) {
		fmt.Printf("session state: %s\n", ev.State)
	})
	if err != nil {
		zap.S().Panicf("status subscribe error: %v", err)
	}
	defer cancelStatus()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := ctrl.Acquire(ctx, tenantKey); err != nil {
		zap.S().Errorf("session acquire error: %v", err)
		return
	}
	<-ctx.Done()
}
