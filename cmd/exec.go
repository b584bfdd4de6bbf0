package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"kuji-system/config"
	"kuji-system/handlers"
	"kuji-system/monitoring"
	"kuji-system/security"
	"kuji-system/services"
	"kuji-system/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	} else {
		slog.Warn("PubNub keys not configured, realtime notifications disabled")
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
		go serveMetrics(cfg.MetricsPort)
	}

	// Initialize services
	store := services.NewPBStore(app)
	notifier := services.NewNotifier(pn)
	commitmentService := services.NewCommitmentService(store, redisClient, cfg)
	lockService := services.NewLockService(redisClient, cfg, monitor)
	queueService := services.NewQueueService(redisClient, notifier, cfg, lockService, store, monitor)
	lockService.BindTurnChecker(queueService)
	drawService := services.NewDrawService(store, lockService, queueService, commitmentService, notifier, monitor, cfg)
	shippingService, err := services.NewShippingService(store, cfg)
	if err != nil {
		return err
	}

	rateLimiter := security.NewRateLimiter(redisClient, 30, time.Minute)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(app, queueService)
	ticketHandler := handlers.NewTicketHandler(app, store, lockService)
	drawHandler := handlers.NewDrawHandler(app, drawService, commitmentService)
	prizeHandler := handlers.NewPrizeHandler(app, drawService, shippingService)
	lotteryHandler := handlers.NewLotteryHandler(app, store, lockService, queueService, drawService)
	verifyHandler := handlers.NewVerifyHandler()
	adminHandler := handlers.NewAdminHandler(app, commitmentService, queueService, notifier, redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	setupLotteryHooks(app, redisClient)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncActiveLotteriesToRedis(app, redisClient)
		queueService.Start()

		antiBot := rateLimiter.AntiBotMiddleware()

		// Queue endpoints
		e.Router.POST("/api/v1/queue/join", queueHandler.Join).BindFunc(antiBot).BindFunc(rateLimiter.Middleware("queue"))
		e.Router.POST("/api/v1/queue/leave", queueHandler.Leave)
		e.Router.POST("/api/v1/queue/extend", queueHandler.Extend)
		e.Router.GET("/api/v1/queue/status", queueHandler.Status)

		// Ticket lock endpoints
		e.Router.POST("/api/v1/tickets/lock", ticketHandler.Lock).BindFunc(antiBot)
		e.Router.POST("/api/v1/tickets/unlock", ticketHandler.Unlock)

		// Draw endpoints
		e.Router.POST("/api/v1/draws/commitment", drawHandler.MintCommitment)
		e.Router.POST("/api/v1/draws", drawHandler.Draw).BindFunc(antiBot).BindFunc(rateLimiter.Middleware("draw"))

		// Lottery board endpoints
		e.Router.GET("/api/v1/lotteries/{setId}/state", lotteryHandler.State)
		e.Router.GET("/api/v1/lotteries/{setId}/quick-pick", lotteryHandler.QuickPick)

		// Prize endpoints
		e.Router.POST("/api/v1/prizes/{instanceId}/recycle", prizeHandler.Recycle)
		e.Router.POST("/api/v1/shipping/estimate", prizeHandler.EstimateShipping)
		e.Router.POST("/api/v1/shipping/request", prizeHandler.RequestShipping)

		// Public fairness verification
		e.Router.POST("/api/v1/verify/draw", verifyHandler.VerifyDraw)
		e.Router.POST("/api/v1/verify/pool", verifyHandler.VerifyPool)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/lotteries/{setId}/finalize", adminHandler.Finalize)
		e.Router.POST("/api/v1/admin/lotteries/{setId}/archive", adminHandler.Archive)
		e.Router.GET("/api/v1/admin/draw-dashboard", adminHandler.DrawDashboard)
		e.Router.POST("/api/v1/admin/remove-from-queue", adminHandler.RemoveFromQueue)

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

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		queueService.Shutdown()
		return e.Next()
	})

	return app.Start()
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}

// syncActiveLotteriesToRedis rebuilds the active_lotteries set from the
// database on startup, so the dashboard and sweep see the right sets after a
// restart.
func syncActiveLotteriesToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT id FROM lottery_sets WHERE status = 'AVAILABLE'",
	).All(&records); err != nil {
		log.Printf("Error fetching available lotteries: %v", err)
		return
	}

	redisClient.Del(ctx, "active_lotteries")

	var setIDs []interface{}
	for _, record := range records {
		if id := record["id"].String; id != "" {
			setIDs = append(setIDs, id)
		}
	}
	if len(setIDs) > 0 {
		redisClient.SAdd(ctx, "active_lotteries", setIDs...)
		log.Printf("Synced %d available lotteries to Redis", len(setIDs))
	}
}

// setupLotteryHooks keeps the Redis active_lotteries set in step with
// lottery_sets writes. Redis sync failures are logged, never block the
// request.
func setupLotteryHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	syncRecord := func(ctx context.Context, record *core.Record) {
		setID := record.Id
		if record.GetString("status") == "AVAILABLE" {
			if err := redisClient.SAdd(ctx, "active_lotteries", setID).Err(); err != nil {
				slog.Error("failed to add lottery to active set", "lottery_set_id", setID, "error", err)
			}
			return
		}
		if err := redisClient.SRem(ctx, "active_lotteries", setID).Err(); err != nil {
			slog.Error("failed to remove lottery from active set", "lottery_set_id", setID, "error", err)
		}
	}

	app.OnRecordCreateRequest("lottery_sets").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		syncRecord(e.Request.Context(), e.Record)
		return nil
	})

	app.OnRecordUpdateRequest("lottery_sets").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		syncRecord(e.Request.Context(), e.Record)
		return nil
	})

	app.OnRecordDeleteRequest("lottery_sets").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		if err := redisClient.SRem(e.Request.Context(), "active_lotteries", e.Record.Id).Err(); err != nil {
			slog.Error("failed to remove deleted lottery from active set", "lottery_set_id", e.Record.Id, "error", err)
		}
		return nil
	})

	// Engine-internal writes happen through services, not record requests, so
	// also watch the model-level update (covers the SOLD_OUT transition made
	// inside the draw transaction).
	app.OnRecordAfterUpdateSuccess("lottery_sets").BindFunc(func(e *core.RecordEvent) error {
		syncRecord(context.Background(), e.Record)
		return e.Next()
	})
}
