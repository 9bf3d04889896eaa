package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/infstore/storefront/internal/abandoned"
	"github.com/infstore/storefront/internal/checkout"
	"github.com/infstore/storefront/internal/config"
	"github.com/infstore/storefront/internal/discount"
	"github.com/infstore/storefront/internal/httpx"
	"github.com/infstore/storefront/internal/notify"
	"github.com/infstore/storefront/internal/orders"
	"github.com/infstore/storefront/internal/payment"
	"github.com/infstore/storefront/internal/postgres"
	"github.com/infstore/storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Stores
	orderStore := &orders.Store{DB: db}
	discountStore := &discount.Store{DB: db}
	cartStore := &abandoned.Store{DB: db}
	outbox := &notify.Outbox{DB: db}

	// Payment
	gateway := payment.NewStripeGateway(cfg.StripeSecretKey)
	orchestrator := payment.NewOrchestrator(gateway, &payment.RedisIntentCache{RDB: rdb}, cfg.Currency)

	// Notifications: outbox drained by the in-process dispatcher
	sender := notify.NewGomailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	dispatcher := notify.NewDispatcher(outbox, sender, cfg.NotifyTick)
	go dispatcher.Run(ctx)

	// Abandoned-cart writes are debounced per session
	debouncer := abandoned.NewDebouncer(cartStore, cfg.SaveDebounce)

	svc := &checkout.Service{
		Orders:        orderStore,
		Discounts:     discountStore,
		Tracker:       cartStore,
		Notifier:      outbox,
		Payments:      orchestrator,
		OperatorEmail: cfg.OperatorEmail,
		StoreBaseURL:  cfg.StoreBaseURL,
		CancelWindow:  cfg.CancelWindow,
		ReminderGrace: cfg.ReminderGrace,
	}

	router := httpx.NewRouter()
	h := &httpx.CheckoutHandler{
		Checkout:  svc,
		Orders:    orderStore,
		Payments:  orchestrator,
		Debouncer: debouncer,
		Redis:     rdb,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	debouncer.Flush() // pending cart snapshots are not lost
	cancel()          // stop dispatcher loop; unsent rows survive in the outbox
}
