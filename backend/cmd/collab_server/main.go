package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collabcore/backend/config"
	"collabcore/backend/internal/cache"
	"collabcore/backend/internal/collab"
	"collabcore/backend/internal/httpapi/handlers"
	"collabcore/backend/internal/httpapi/middleware"
	"collabcore/backend/internal/lww"
	"collabcore/backend/internal/store"
	"collabcore/backend/internal/ws"
)

var (
	buildVersion = "dev"
	buildCommit  = "local"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	nodeID := cfg.Running.NodeID
	if nodeID == "" {
		nodeID = "collab-" + uuid.NewString()[:8]
	}
	clock := lww.NewClock(nodeID)
	log.Printf("collab server %s (%s) node=%s port=%d", buildVersion, buildCommit, clock.NodeID(), cfg.Running.Port)

	// 已应用的操作由 hub 在文档锁内推送给房间，保证按版本顺序送达
	hub := ws.NewHub()
	deps := collab.Deps{HistoryCap: cfg.Running.HistoryCap, Clock: clock, Listener: hub}

	// Redis 可选：没有配置时元数据只保存在内存
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect redis: %v", err)
		}
		defer rdb.Close()
		metaStore := cache.NewRedisMetaStore(rdb)
		if docs, err := metaStore.Documents(context.Background()); err == nil {
			log.Printf("redis meta index: %d documents", len(docs))
		}
		deps.Meta = metaStore
	}

	if cfg.Mysql.DSN != "" {
		db, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		deps.Snapshots = store.NewSnapshotStore(db)
		deps.Documents = store.NewDocumentStore(db)
	}

	var dispatcher *collab.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()

		// Kafka 本地队列 + worker 重试发送
		dispatcher = collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(0),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: cfg.Kafka.Backoff,
				MaxBackoff:  time.Second,
			},
		)
		deps.Events = dispatcher
	}

	svc := collab.NewInMemoryService(deps)
	manager := ws.NewManager(hub, svc, collab.NewSemaphoreControl(cfg.Running.SubmitConcurrency))

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if cfg.Running.EnableCORS {
		r.Use(cors.New(cors.Config{
			AllowOriginFunc: func(origin string) bool { return true },
			AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:   []string{"Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok", "version": buildVersion})
	})

	group := r.Group("/collab")
	// 从 Authorization 或 ?token= 提取 token，本地校验后写入 userId/username
	group.Use(middleware.AuthMiddleware(cfg.Auth.Secret))
	group.GET("/ws", manager.WebSocketConnect)
	handlers.NewDocumentHandler(svc, hub).Register(group)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Running.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down collab server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	// 先停 HTTP 再排空事件队列
	if dispatcher != nil {
		dispatcher.Close()
	}
}
