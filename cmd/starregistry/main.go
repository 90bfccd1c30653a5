package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starregistry/internal/codec"
	"github.com/jmerrifield20/starregistry/internal/health"
	"github.com/jmerrifield20/starregistry/internal/ledger"
	"github.com/jmerrifield20/starregistry/internal/ownership"
	"github.com/jmerrifield20/starregistry/internal/receipt"
	"github.com/jmerrifield20/starregistry/internal/registry/handler"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("starregistry exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("starregistry")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("registry.port", 8000)
	viper.SetDefault("registry.grpc_port", 9090)
	viper.SetDefault("registry.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("registry.rate_limit_rps", 20)
	viper.SetDefault("ledger.codec", "json")
	viper.SetDefault("ownership.network", "mainnet")
	viper.SetDefault("ownership.max_age_seconds", 300)
	viper.SetDefault("receipt.secret", "")
	viper.SetDefault("receipt.issuer", "starregistry")
	viper.SetDefault("receipt.ttl_hours", 8760)
	viper.SetDefault("health.audit_interval", "30s")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Ownership proofs ─────────────────────────────────────────────────────
	network := viper.GetString("ownership.network")
	params, err := ownership.NetworkParams(network)
	if err != nil {
		return fmt.Errorf("ownership network: %w", err)
	}
	checker := ownership.MultiChecker{
		ownership.NewBitcoinChecker(params),
		ownership.AccountChecker{},
	}
	maxAge := time.Duration(viper.GetInt("ownership.max_age_seconds")) * time.Second
	verifier := ownership.NewVerifier(checker, ownership.WithMaxAge(maxAge))
	logger.Info("ownership verifier ready",
		zap.String("network", network),
		zap.Duration("max_age", verifier.MaxAge()),
	)

	// ── Ledger ───────────────────────────────────────────────────────────────
	payloadCodec, err := codec.ByName(viper.GetString("ledger.codec"))
	if err != nil {
		return fmt.Errorf("ledger codec: %w", err)
	}
	chain, err := ledger.New(verifier,
		ledger.WithCodec(payloadCodec),
		ledger.WithLogger(logger),
		ledger.WithAppendHook(func(b ledger.Block) {
			handler.RecordBlockAppend(b.Height)
		}),
	)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	handler.RecordBlockAppend(chain.Height(context.Background()))

	// ── Receipts ─────────────────────────────────────────────────────────────
	secret := viper.GetString("receipt.secret")
	if secret == "" {
		logger.Warn("receipt.secret not set, receipts will not verify after restart")
	}
	receipts, err := receipt.NewIssuer(
		[]byte(secret),
		viper.GetString("receipt.issuer"),
		time.Duration(viper.GetInt("receipt.ttl_hours"))*time.Hour,
	)
	if err != nil {
		return fmt.Errorf("receipt issuer: %w", err)
	}

	// ── Integrity monitor ────────────────────────────────────────────────────
	healthSvc := grpchealth.NewServer()
	monitor := health.New(chain, healthSvc, health.Config{
		CheckInterval: viper.GetDuration("health.audit_interval"),
	}, logger)
	monitor.SetMetricsRecord(handler.RecordAudit)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())

	// CORS
	corsOrigins := viper.GetStringSlice("registry.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	if rps := viper.GetInt("registry.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		faults, checkedAt := monitor.LastFaults()
		state := "ok"
		if len(faults) > 0 {
			state = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     state,
			"height":     chain.Height(c.Request.Context()),
			"faults":     len(faults),
			"checked_at": checkedAt,
		})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewStarHandler(chain, receipts, logger).Register(v1)

	// ── gRPC health server ───────────────────────────────────────────────────
	grpcPort := viper.GetInt("registry.grpc_port")
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	reflection.Register(grpcServer)

	// ── Start ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go monitor.Start(ctx)

	go func() {
		logger.Info("starregistry gRPC health listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()

	httpPort := viper.GetInt("registry.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starregistry HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down starregistry...")
	cancel()
	healthSvc.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("starregistry stopped", zap.Int("height", chain.Height(shutCtx)))
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString("request_id")),
		)
	}
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
