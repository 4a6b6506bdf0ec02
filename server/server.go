package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SyncFM/cache"
	"SyncFM/config"
	"SyncFM/core/auth"
	"SyncFM/core/session"
	"SyncFM/core/syncplay"
	"SyncFM/db"
	"SyncFM/logger"
	"SyncFM/model"
	"SyncFM/repository"
	"SyncFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/syncfm.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.InitJWT(cfg.JWTSecret, cfg.JWTExpiry)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("数据库连接失败", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.User{}, &model.MediaFolder{}, &model.MediaItem{}); err != nil {
		logger.Fatal("数据库迁移失败", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Redis连接失败", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("MinIO初始化失败", logger.ErrorField(err))
	}

	userRepo := repository.NewGormUserRepository(db.GormDB)
	itemRepo := repository.NewGormItemRepository(db.GormDB)

	// 会话通道与分组协调器
	presence := cache.NewSessionCache(cfg.SessionPresenceTTL)
	hub := session.NewHub(presence)
	manager := syncplay.NewManager(
		hub,
		hub,
		repository.NewUserDirectory(userRepo),
		repository.NewMediaCatalog(itemRepo),
		syncplay.SystemClock,
		cfg.SyncPlayEmptyGroupGrace,
		logger.L(),
	)
	hub.SetDisconnectHandler(func(sessionID string) {
		manager.OnSessionDisconnected(context.Background(), sessionID)
	})

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go hub.Run()
	go manager.Run(runCtx, cfg.SyncPlaySweepInterval)

	apiHandler := NewAPIHandler(userRepo, itemRepo, manager, hub, cache.NewGroupListCache(), cfg)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, X-Session-Id")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)

	// 会话通道
	router.HandleFunc("/socket", apiHandler.SessionSocketHandler).Methods(http.MethodGet)

	// 分组管理
	router.HandleFunc("/SyncPlay/New", apiHandler.AuthMiddleware(apiHandler.NewGroupHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Join", apiHandler.AuthMiddleware(apiHandler.JoinGroupHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Leave", apiHandler.AuthMiddleware(apiHandler.LeaveGroupHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Settings", apiHandler.AuthMiddleware(apiHandler.GroupSettingsHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/List", apiHandler.AuthMiddleware(apiHandler.ListGroupsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/SyncPlay/ListAvailableUsers", apiHandler.AuthMiddleware(apiHandler.ListAvailableUsersHandler)).Methods(http.MethodGet)

	// 播放控制
	router.HandleFunc("/SyncPlay/Play", apiHandler.AuthMiddleware(apiHandler.PlayHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Unpause", apiHandler.AuthMiddleware(apiHandler.UnpauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Pause", apiHandler.AuthMiddleware(apiHandler.PauseHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Stop", apiHandler.AuthMiddleware(apiHandler.StopHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Seek", apiHandler.AuthMiddleware(apiHandler.SeekHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Buffering", apiHandler.AuthMiddleware(apiHandler.BufferingHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/SetIgnoreWait", apiHandler.AuthMiddleware(apiHandler.SetIgnoreWaitHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/NextTrack", apiHandler.AuthMiddleware(apiHandler.NextTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/PreviousTrack", apiHandler.AuthMiddleware(apiHandler.PreviousTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Ping", apiHandler.AuthMiddleware(apiHandler.PingHandler)).Methods(http.MethodPost)

	// 队列编辑
	router.HandleFunc("/SyncPlay/SetPlaylistItem", apiHandler.AuthMiddleware(apiHandler.SetPlaylistItemHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/RemoveFromPlaylist", apiHandler.AuthMiddleware(apiHandler.RemoveFromPlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/MovePlaylistItem", apiHandler.AuthMiddleware(apiHandler.MovePlaylistItemHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/Queue", apiHandler.AuthMiddleware(apiHandler.QueueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/SetRepeatMode", apiHandler.AuthMiddleware(apiHandler.SetRepeatModeHandler)).Methods(http.MethodPost)
	router.HandleFunc("/SyncPlay/SetShuffleMode", apiHandler.AuthMiddleware(apiHandler.SetShuffleModeHandler)).Methods(http.MethodPost)

	// WebRTC 信令
	router.HandleFunc("/SyncPlay/WebRTC", apiHandler.AuthMiddleware(apiHandler.WebRTCHandler)).Methods(http.MethodPost)

	// 媒体库
	router.HandleFunc("/api/items", apiHandler.AuthMiddleware(apiHandler.ItemsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/items/{item_id}/stream", apiHandler.AuthMiddleware(apiHandler.MediaStreamHandler)).Methods(http.MethodGet)

	server.Handler = router

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.ListenAddr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("正在关闭服务器...")

	cancelRun()
	hub.Stop()

	// 创建一个5秒超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("服务器被强制关闭", logger.ErrorField(err))
	}

	logger.Info("服务器已停止")
}
