package appServer

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

	"github.com/ds124wfegd/comment-tree/config"
	"github.com/ds124wfegd/comment-tree/internal/database"
	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/ds124wfegd/comment-tree/internal/service"
	"github.com/ds124wfegd/comment-tree/internal/transport"
	"github.com/ds124wfegd/comment-tree/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// OpenStorage builds the key-value backend named by cfg.Storage.Backend.
func OpenStorage(ctx context.Context, cfg *config.Config) (database.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return database.NewMemoryStorage(), nil
	case config.BackendSQLite, "":
		storage, err := database.OpenSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case config.BackendRedis:
		client := redis.NewRedisClient(&cfg.Redis)
		storage, err := database.NewRedisStorage(ctx, client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return storage, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func NewServer(cfg *config.Config) {
	ctx := context.Background()

	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer storage.Close()

	repo := database.NewTreeRepository(storage, cfg.Storage)
	commentService := service.NewCommentService(repo, cfg.App)

	// повреждённые данные не мешают запуску: работаем с пустым деревом
	if err := commentService.Load(ctx); err != nil && !errors.Is(err, entity.ErrPersistence) {
		logrus.Fatalf("Failed to load comments: %v", err)
	}

	commentService.Subscribe(func(tree entity.CommentTree) {
		logrus.WithField("total", tree.Count()).Debug("Comment tree changed")
	})

	if cfg.Server.Mode == "release" || cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		router := transport.InitRoutes(commentService, cfg.Storage.Backend, cfg.Server.Timeout)
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithFields(logrus.Fields{
		"addr":    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		"storage": cfg.Storage.Backend,
	}).Info("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
