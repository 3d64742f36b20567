package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"kassenwerk.org/internal/access"
	"kassenwerk.org/internal/auth"
	"kassenwerk.org/internal/billing"
	"kassenwerk.org/internal/blob"
	"kassenwerk.org/internal/claims"
	"kassenwerk.org/internal/config"
	"kassenwerk.org/internal/finance"
	"kassenwerk.org/internal/httpapi"
	"kassenwerk.org/internal/notify"
	"kassenwerk.org/internal/obs"
	"kassenwerk.org/internal/org"
	"kassenwerk.org/internal/project"
	"kassenwerk.org/internal/store/pg"
	"kassenwerk.org/internal/team"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if cfg.AuthSecret == "" {
		log.Fatal("KASSENWERK_AUTH_SECRET is required")
	}

	store, err := pg.Open(cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer store.Close()

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("token setup")
	}

	svc := httpapi.Services{
		Tokens:   tokens,
		Orgs:     org.NewService(store),
		Projects: project.NewService(store),
		Teams:    team.NewService(store),
		Finance:  finance.NewService(store),
		Claims:   claims.NewService(store),
		Billing:  billing.NewService(store, cfg.TrialDays),
		Access:   access.NewResolver(store, store),
		Checkout: billing.StaticCheckout{BaseURL: cfg.CheckoutURL},
		Blobs:    blob.NewLocal("/files"),
		Mailer:   notify.LogMailer{},

		WebhookSecret: cfg.WebhookSecret,
	}

	probe := httpapi.ReadyProbe{DB: store.DB()}
	api := httpapi.New(svc, probe, version)

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.Logging(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.MaxBodyBytes(handler, cfg.MaxBodyBytes)
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitRPS)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	httpapi.RegisterGRPC(grpcSrv, probe)

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCListenAddr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen")
		}
		log.WithField("addr", cfg.GRPCListenAddr).Info("grpc health listening")
		if err := grpcSrv.Serve(lis); err != nil {
			log.WithError(err).Error("grpc serve")
		}
	}()

	go func() {
		log.WithField("addr", cfg.ListenAddr).WithField("version", version).Info("kassenwerk-api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	log.Info("stopped")
}
