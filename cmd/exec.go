package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"

	"tikiti/config"
	"tikiti/internal/events"
	"tikiti/internal/handlers"
	"tikiti/internal/services"
	"tikiti/internal/services/card"
	"tikiti/internal/services/mpesa"
	"tikiti/models"
	"tikiti/utils"

	_ "tikiti/migrations"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PubNub pushes per-order status updates to waiting clients.
	var notifier *services.Notifier
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		notifier = services.NewNotifier(pubnub.NewPubNub(pnConfig))
	} else {
		slog.Warn("pubnub keys not set, realtime order updates disabled")
	}

	// Daraja client keeps its own token refresh loop for the process lifetime.
	var stk services.StkPusher
	var querier services.StatusQuerier
	if cfg.Mpesa.ConsumerKey != "" {
		mpesaClient, err := mpesa.New(ctx, &mpesa.Config{
			BaseURL:        cfg.Mpesa.BaseURL,
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			Passkey:        cfg.Mpesa.Passkey,
			CallbackURL:    cfg.Mpesa.CallbackURL,
		})
		if err != nil {
			return err
		}
		stk = mpesaClient
		querier = mpesaClient
	} else {
		slog.Warn("mpesa credentials not set, STK payments disabled")
	}

	var charger services.CardCharger
	if cfg.Card.BaseURL != "" {
		charger = card.New(&card.Config{
			BaseURL: cfg.Card.BaseURL,
			APIKey:  cfg.Card.APIKey,
		})
	}

	publisher, err := events.NewPublisher(cfg.RabbitMQURL, cfg.OrderLifecycleQueue)
	if err != nil {
		return err
	}
	defer publisher.Close()
	if publisher == nil {
		slog.Warn("rabbitmq url not set, order lifecycle events disabled")
	}

	// Initialize services
	inventoryService := services.NewInventoryService(app)
	issuanceService := services.NewIssuanceService(app, cfg.SenderName)
	paymentService := services.NewPaymentService(app, redisClient, inventoryService, issuanceService, notifier, publisher, querier)
	checkoutService := services.NewCheckoutService(app, inventoryService, stk, charger, paymentService, cfg.TaxRate)
	reaper := services.NewReaper(app, paymentService, publisher, cfg.StaleOrderMaxAge, cfg.SenderName)

	// Initialize handlers
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, paymentService)
	callbackHandler := handlers.NewCallbackHandler(paymentService)
	orderHandler := handlers.NewOrderHandler(app)
	ticketHandler := handlers.NewTicketHandler(app)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Zero-amount orders never touch a gateway: they complete as free orders
	// at save time, whatever method the client sent.
	app.OnRecordCreate("orders").BindFunc(func(e *core.RecordEvent) error {
		if e.Record.GetFloat("total") == 0 {
			e.Record.Set("payment_method", string(models.MethodFree))
			e.Record.Set("status", string(models.OrderCompleted))
			e.Record.Set("payment_status", string(models.PaymentFree))
		}
		return e.Next()
	})

	// The reaper is the safety net for orders whose payment resolved against
	// the customer but whose release never ran.
	app.Cron().MustAdd("expireStaleOrders", cfg.ReaperSchedule, func() {
		reaper.ReleaseExpired(ctx)
	})

	if cfg.EnableMetrics {
		go startOpsServer(cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Checkout endpoints
		e.Router.POST("/api/v1/checkout/process", checkoutHandler.ProcessCheckout)
		e.Router.GET("/api/v1/checkout/payment-status/{checkoutRequestId}", checkoutHandler.PaymentStatus)

		// Gateway callback
		e.Router.POST("/api/v1/callback/stk", callbackHandler.StkCallback)

		// Order endpoints
		e.Router.GET("/api/v1/orders/{orderNumber}", orderHandler.GetByNumber)
		e.Router.POST("/api/v1/orders/claim", orderHandler.Claim)

		// Gate check-in
		e.Router.POST("/api/v1/tickets/scan", ticketHandler.Scan)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// startOpsServer exposes Prometheus metrics and a liveness probe on a
// separate port, away from the public API.
func startOpsServer(port string) {
	e := echo.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
		slog.Error("ops server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
