package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"vrflottery/internal/config"
	"vrflottery/internal/handlers"
	"vrflottery/internal/services"
)

func main() {
	configPath := flag.String("config", "lottery.yaml", "path to the config file; env vars override it")
	flag.Parse()

	defer logger.Init("vrflottery", true, false, io.Discard).Close()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 2. Deploy the local network: accounts, price feed, coordinator, lottery
	dep, err := services.Deploy(cfg)
	if err != nil {
		logger.Fatalf("Failed to deploy lottery: %v", err)
	}

	// 3. Initialize the HTTP Handler
	httpHandler := handlers.NewHTTPHandler(dep)

	// 4. Set up the Gin router
	r := gin.Default()

	// 5. Register public routes (before middleware)
	httpHandler.RegisterPublicRoutes(r)

	// 6. Group routes that require a caller and apply middleware
	accountRoutes := r.Group("/")
	accountRoutes.Use(httpHandler.AccountMiddleware())
	httpHandler.RegisterAccountRoutes(accountRoutes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 7. Start the background fulfiller that answers randomness requests
	if cfg.VRF.AutoFulfill {
		fulfiller := services.NewFulfiller(dep.Coordinator, services.CryptoSource(), cfg.VRF.StuckAfter)
		go fulfiller.Run(ctx, cfg.VRF.FulfillInterval)
		logger.Infof("Auto-fulfilling randomness every %s", cfg.VRF.FulfillInterval)
	}

	// 8. Run the server
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Infof("Server starting on %s (owner %s)", cfg.Server.Addr, dep.Lottery.Owner().Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	logger.Info("Server stopped")
}
