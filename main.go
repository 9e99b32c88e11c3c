package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/deepfake-detector/internal/config"
	"github.com/example/deepfake-detector/internal/grpcclient"
	"github.com/example/deepfake-detector/internal/handlers"
	"github.com/example/deepfake-detector/internal/history"
	"github.com/example/deepfake-detector/internal/logging"
	"github.com/example/deepfake-detector/internal/model"
	"github.com/example/deepfake-detector/internal/session"
	"github.com/example/deepfake-detector/internal/usecase"
)

func main() {
	cfg, cfgErr := config.Load()
	level := "info"
	if cfgErr == nil {
		level = cfg.LogLevel
	}

	logger, err := logging.NewLogger(level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfgErr != nil {
		logger.Fatal("invalid configuration", zap.Error(cfgErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := model.NewLoader(openClassifier(cfg, logger))
	classifier, err := loader.Load()
	if err != nil {
		logger.Fatal("failed to load classifier", zap.Error(err), zap.String("backend", cfg.ModelBackend))
	}
	defer loader.Close() //nolint:errcheck
	logger.Info("classifier loaded", zap.String("backend", cfg.ModelBackend), zap.String("model_path", cfg.ModelPath))

	store := initHistory(ctx, cfg, logger)
	if cfg.HistoryLimit == 0 {
		logger.Warn("history storage is unbounded per session; set HISTORY_LIMIT to cap it")
	}

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		logger.Fatal("failed to create session manager", zap.Error(err))
	}

	uc := usecase.NewPredictionUseCase(classifier, store, logger, cfg.AnalysisDelay)

	if cfg.ClassifierListenAddr != "" {
		grpcServer, err := serveClassifier(cfg.ClassifierListenAddr, classifier, logger)
		if err != nil {
			logger.Fatal("failed to serve classifier over gRPC", zap.Error(err))
		}
		defer grpcServer.GracefulStop()
	}

	if level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(uc, sessions, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("deepfake detector listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newRouter(uc *usecase.PredictionUseCase, sessions *session.Manager, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize
	handlers.RegisterRoutes(r, uc, sessions)
	return r
}

func openClassifier(cfg *config.Config, logger *zap.Logger) model.OpenFunc {
	if cfg.ModelBackend == config.BackendGRPC {
		return grpcclient.DialClassifier(cfg.ClassifierAddr, logger)
	}
	return model.OpenONNX(model.ONNXOptions{
		ModelPath:   cfg.ModelPath,
		LibraryPath: cfg.ONNXLibraryPath,
		InputName:   cfg.ModelInputName,
		OutputName:  cfg.ModelOutputName,
	})
}

func initHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) history.Store {
	if cfg.HistoryBackend == config.HistoryRedis {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return history.NewRedisStore(initRedis(pingCtx, cfg.RedisAddr, logger), cfg.SessionTTL, cfg.HistoryLimit)
	}

	store := history.NewMemoryStore(cfg.HistoryLimit)
	interval := cfg.SessionTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	go store.RunJanitor(ctx, interval, cfg.SessionTTL, logger.Named("history"))
	return store
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err), zap.String("addr", addr))
	}
	return client
}

func serveClassifier(addr string, classifier model.Classifier, logger *zap.Logger) (*grpc.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer()
	grpcclient.Serve(server, classifier)
	go func() {
		if err := server.Serve(listener); err != nil {
			logger.Error("gRPC classifier server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving classifier over gRPC", zap.String("addr", addr))
	return server, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

// serveHTTPServerWithOptions serves until the server fails or a shutdown
// signal arrives, then drains in-flight requests within shutdownTimeout. A nil
// listener uses server.Addr; a nil signalCh listens for SIGINT and SIGTERM.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
