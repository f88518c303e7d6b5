package main

// GET  /session                      - Current session
// POST /session/login                - Log in
// POST /session/logout               - Log out
// GET  /cart                         - Current cart with totals
// POST /cart/items/{productId}       - Add one unit of a product
// PUT  /cart/items/{itemId}          - Set a line's quantity
// POST /checkout                     - Enter checkout
// POST /checkout/commit              - Place the order
// GET  /checkout/payment             - Gateway handoff page
// GET  /metrics                      - Prometheus metrics

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"storefront/api"
	"storefront/config"
	"storefront/handler"
	"storefront/metrics"
	"storefront/service"
	"storefront/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	log.SetLevel(cfg.Level())

	// --- Credential store ---
	creds, err := store.Open(cfg.CredentialDriver, cfg.CredentialDSN)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.CredentialDriver).Fatal("open credential store")
	}
	defer creds.Close()

	// --- Backend client ---
	client, err := api.New(api.Config{
		BaseURL:    cfg.APIBaseURL,
		GatewayURL: cfg.GatewayURL,
		Timeout:    cfg.Timeout,
		Logger:     log,
	})
	if err != nil {
		log.WithError(err).Fatal("create backend client")
	}

	// --- Services ---
	session := service.NewSessionManager(client, creds, log)
	cart := service.NewCartSynchronizer(client, session, log)
	checkout := service.NewCheckout(client, cart, session, log)
	orders := service.NewOrderHistory(client, cart, session, log)
	catalog := service.NewCatalog(client, session)

	// the cart follows the session, so this also loads the cart
	initCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	if err := session.Initialize(initCtx); err != nil {
		log.WithError(err).Warn("initialize session")
	}
	cancel()

	// --- Handlers ---
	h := handler.NewHandler(session, cart, checkout, orders, catalog, handler.Options{
		AutoSubmitDelay: cfg.AutoSubmitDelay,
		RefreshWindow:   cfg.RefreshWindow,
		Logger:          log,
	})

	// --- Router ---
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	h.RegisterRoutes(r)

	// --- Server ---
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	log.Info("server stopped")
}
