package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	redisAdapter "solbid/adapters/redis"
	solanaAdapter "solbid/adapters/solana"
	"solbid/adapters/ws"
	"solbid/models"
	"solbid/reconcile"
	"solbid/store"
)

type ServerImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
	gameStore   store.IGameStore
	gateway     solanaAdapter.IGateway
	coordinator *reconcile.Coordinator
	hub         *ws.Hub
	worker      *reconcile.Worker
	events      redisAdapter.IProducer[ws.GameEvent]
	retry       redisAdapter.IProducer[reconcile.PersistRequest]
	upgrader    websocket.Upgrader
	programID   solana.PublicKey

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	programID, err := solana.PublicKeyFromBase58(config.Ledger.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse program id, err=%w", op, err)
	}
	platformAccount, err := solana.PublicKeyFromBase58(config.Ledger.PlatformAccount)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse platform account, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Game{}, &models.Player{}, &models.Bid{}, &models.GameCounter{}); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化帳本閘道
	gateway := solanaAdapter.NewGateway(solanaAdapter.GatewayConfig{
		Endpoint:        config.Ledger.Endpoint,
		ProgramID:       programID,
		PlatformAccount: platformAccount,
		ConfirmTimeout:  config.Ledger.ConfirmTimeout,
		PollInterval:    config.Ledger.PollInterval,
	}, slog.Default())

	// 初始化事件流：發佈端給協調者，訂閱端給廣播 hub
	events, err := redisAdapter.NewProducer[ws.GameEvent](redisClient, config.Redis.StreamKeys.GameEvents)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event producer, err=%w", op, err)
	}
	eventConsumer, err := redisAdapter.NewConsumer[ws.GameEvent](redisClient, config.Redis.StreamKeys.GameEvents)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event consumer, err=%w", op, err)
	}
	hub := ws.NewHub(eventConsumer, slog.Default())

	// 初始化落庫重試流
	retry, err := redisAdapter.NewProducer[reconcile.PersistRequest](redisClient, config.Redis.StreamKeys.PersistRetry)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create retry producer, err=%w", op, err)
	}
	retryConsumer, err := redisAdapter.NewGroupConsumer[reconcile.PersistRequest](
		redisClient,
		config.Redis.StreamKeys.PersistRetry,
		"persist-workers",
		config.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create retry consumer, err=%w", op, err)
	}

	gameStore := store.NewGameStore(db)
	worker := reconcile.NewWorker(retryConsumer, gameStore, slog.Default())

	coordinator := reconcile.NewCoordinator(
		gateway,
		gameStore,
		redisAdapter.NewSignatureRegistry(redisClient),
		events,
		retry,
		func(gameID uint64) redisAdapter.IAutoRenewMutex {
			return redisAdapter.NewAutoRenewMutex(redisClient, redisAdapter.GameLockKey(gameID))
		},
		slog.Default(),
		reconcile.CoordinatorConfig{ProgramID: programID},
	)

	return &ServerImpl{
		db:          db,
		redisClient: redisClient,
		gameStore:   gameStore,
		gateway:     gateway,
		coordinator: coordinator,
		hub:         hub,
		worker:      worker,
		events:      events,
		retry:       retry,
		programID:   programID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			// token 已經驗過了，觀戰頁面的來源不設限
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		config: config,
	}, nil
}

// Start 啟動事件流和重試 worker
func (impl *ServerImpl) Start() error {
	const op = "ServerImpl.Start"
	impl.events.Start()
	impl.retry.Start()
	impl.hub.Start()
	if err := impl.worker.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start persist worker, err=%w", op, err)
	}
	return nil
}

// Close 依啟動的反序關閉所有背景元件
func (impl *ServerImpl) Close() {
	impl.worker.Close()
	impl.hub.Close()
	impl.retry.Close()
	impl.events.Close()
	if err := impl.redisClient.Close(); err != nil {
		slog.Error("Fail to close redis client", slog.Any("error", err))
	}
	if sqlDB, err := impl.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// RegisterRoutes 掛上所有 HTTP 和 websocket 路由
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	authorized := router.Group("/", impl.AuthMiddleware())
	{
		authorized.POST("/game", impl.CreateGame)
		authorized.POST("/game/:gameID/bids", impl.PlaceBid)
		authorized.PUT("/game/:gameID", impl.FinalizeGame)
		authorized.POST("/transactions", impl.PrepareTransaction)
		authorized.POST("/transactions/submit", impl.SubmitTransaction)
		authorized.GET("/ws", impl.ServeWs)
	}

	router.GET("/game/:gameID", impl.GetGame)
	router.GET("/game/:gameID/pdas", impl.GetGamePdas)
	router.GET("/games/live", impl.ListLiveGames)
	router.GET("/gameid", impl.GetGameID)
}
