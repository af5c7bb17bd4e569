package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/database"
	"checkout-service/kafka"
	"checkout-service/models"
	"checkout-service/repository"
	"checkout-service/routes"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}

	// --- Database ---
	if err := database.Connect(logger,
		&models.Order{},
		&models.OrderItem{},
		&models.Coupon{},
		&models.CouponUsage{},
	); err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}

	// --- Redis ---
	redisClient, err := database.NewRedisClient(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("Redis connection failed", zap.Error(err))
	}

	// --- Kafka ---
	producer := kafka.NewPaymentEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.PaymentEventTopic)

	// --- HTTP router ---
	r := gin.New()
	r.Use(gin.Recovery())

	// Structured HTTP request logging
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	})

	// Request timeout middleware. The result long-poll is bounded by the
	// payment timeout instead, so it gets headroom beyond it.
	r.Use(func(c *gin.Context) {
		timeout := 30 * time.Second
		if c.Request.URL.Path == "/checkout/result" {
			timeout = cfg.PaymentTimeout + time.Minute
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// --- Dependency injection ---
	orderRepo := repository.NewGormOrderRepository(database.DB)
	couponRepo := repository.NewGormCouponRepository(database.DB)
	cartRepo := repository.NewRedisCartRepository(redisClient)
	keyRepo := repository.NewRedisKeyRepository(redisClient)
	handoffRepo := repository.NewRedisHandoffRepository(redisClient)

	gateway := services.NewRazorpayService(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	keyManager := services.NewKeyManager(keyRepo, cfg.PaymentTimeout, logger)

	channel, err := services.NewPaymentChannel(cfg.PaymentChannelMode, handoffRepo, cfg.PaymentTimeout, logger)
	if err != nil {
		logger.Fatal("Payment channel init failed", zap.Error(err))
	}

	couponService := services.NewCouponService(couponRepo, logger)
	checkoutService := services.NewCheckoutService(orderRepo, cartRepo, couponService, gateway, keyManager, cfg.AllowLocalFallback, logger)
	verificationService := services.NewVerificationService(orderRepo, cartRepo, gateway, keyManager, channel, producer, logger)
	orderService := services.NewOrderService(orderRepo, logger)

	checkoutController := controllers.NewCheckoutController(checkoutService, verificationService)
	orderController := controllers.NewOrderController(orderService)
	couponController := controllers.NewCouponController(couponService)
	webhookController := controllers.NewWebhookController(gateway, verificationService, logger)

	routes.RegisterCheckoutRoutes(r, checkoutController)
	routes.RegisterOrderRoutes(r, orderController)
	routes.RegisterCouponRoutes(r, couponController)
	routes.RegisterWebhookRoutes(r, webhookController)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "checkout-service"})
	})

	// --- HTTP server ---
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Info("Checkout Service started",
			zap.String("port", cfg.Port),
			zap.String("channel_mode", cfg.PaymentChannelMode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Initiating graceful shutdown...")
	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := producer.Close(); err != nil {
		logger.Error("Kafka producer close error", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	log.Println("Checkout Service stopped gracefully")
}
