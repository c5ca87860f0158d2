package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/config"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
	"liyu1981.xyz/water-quality-monitor/pkg/db"
	"liyu1981.xyz/water-quality-monitor/pkg/firestore"
	monitorGrpc "liyu1981.xyz/water-quality-monitor/pkg/grpc"
	monitorHttp "liyu1981.xyz/water-quality-monitor/pkg/http"
	"liyu1981.xyz/water-quality-monitor/pkg/monitor"
	"liyu1981.xyz/water-quality-monitor/pkg/notify"
	"liyu1981.xyz/water-quality-monitor/pkg/quality"
	"liyu1981.xyz/water-quality-monitor/pkg/ws"
)

const shutdownTimeout = 10 * time.Second

func openStore(cfg *config.Config) datalog.Store {
	switch cfg.StoreType {
	case config.StoreTypeFirestore:
		return firestore.NewClient(cfg.Firestore)
	case config.StoreTypeSqlite:
		return db.NewDocumentStore(db.GetInstance(db.UseSqliteDialectorAt(cfg.DbPath)))
	case config.StoreTypeMemory:
		return db.NewDocumentStore(db.GetInstance(db.UseMemorySqliteDialector()))
	default:
		log.Fatal("Unknown store type: " + cfg.StoreType)
		return nil
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger := common.GetLogger()
	defer common.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg)
	logger.Info("Datalog store opened", zap.String("type", cfg.StoreType))

	hub := ws.NewHub()
	go hub.Run(ctx)

	notifiers := monitor.Notifiers{hub}
	if cfg.RedisAddr != "" {
		redisClient := notify.NewRedisClient(cfg.RedisAddr)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not reachable, alerts will still be attempted", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		notifiers = append(notifiers, notify.NewRedisPublisher(redisClient, cfg.RedisChannel))
		logger.Info("Publishing alerts to redis", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.RedisChannel))
	}

	monitorCore := monitor.Monitor{
		Store:        store,
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Location:     cfg.Location,
	}
	monitorCore.WithServices(monitor.ServiceOpts{
		Fetcher:  monitorCore.GetIFetcher(),
		Notifier: notifiers,
	})
	monitorCore.AddSensors(quality.Profiles()...)

	if err := monitorCore.Start(ctx); err != nil {
		log.Fatalf("failed to start monitor: %v", err)
	}
	defer monitorCore.Stop()

	defaultLimiter := fmt.Sprintf("{\"default_rate\": %v, \"default_burst\": %v}", float64(cfg.RefreshRate), cfg.RefreshBurst)

	var grpcServer *grpc.Server
	if cfg.GrpcHostPort != "" {
		monitorGrpcServer := monitorGrpc.MonitorServer{
			Monitor:          &monitorCore,
			RateLimiterStore: monitor.NewRateLimiterStore(cfg.RefreshRate, cfg.RefreshBurst),
		}
		interceptor := monitorGrpcServer.CreateRateLimitInterceptor([]string{
			monitorGrpc.MonitorService_Refresh_FullMethodName,
		})
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(interceptor))
		monitorGrpc.RegisterMonitorServiceServer(grpcServer, &monitorGrpcServer)
		logger.Info("gRPC server created with:", zap.String("default_limiter", defaultLimiter))

		listener, err := net.Listen("tcp", cfg.GrpcHostPort)
		if err != nil {
			log.Fatalf("failed to listen: %v", err)
		}

		go func() {
			logger.Info("start gRPC server on " + cfg.GrpcHostPort)
			if err := grpcServer.Serve(listener); err != nil {
				logger.Error("grpc server failed to serve", zap.Error(err))
				stop()
			}
		}()
	}

	rs := &monitorHttp.RestfulServer{
		Server:           gin.Default(),
		Monitor:          &monitorCore,
		Hub:              hub,
		RateLimiterStore: monitor.NewRateLimiterStore(cfg.RefreshRate, cfg.RefreshBurst),
		DashboardURL:     cfg.DashboardURL,
	}
	rs.Setup()
	logger.Info("http server created with:", zap.String("default_limiter", defaultLimiter))

	httpServer := &http.Server{
		Addr:    cfg.HttpHostPort,
		Handler: rs.Server,
	}

	go func() {
		logger.Info("Starting HTTP server on: " + cfg.HttpHostPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed to serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}
