package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-broker/internal/bridge"
	"chat-broker/internal/config"
	"chat-broker/internal/db"
	"chat-broker/internal/handlers"
	"chat-broker/internal/identity"
	"chat-broker/internal/middleware"
	"chat-broker/internal/observability"
	"chat-broker/internal/rabbitmq"
	"chat-broker/internal/registry"
	"chat-broker/internal/repositories"
	"chat-broker/internal/telemetry"
	"chat-broker/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("tracer shutdown: %v", err)
		}
	}()

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat", cfg.ServiceName, cfg.Environment)

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	userRepo := repositories.NewUserRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	idService := identity.NewService(userRepo, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	hub := ws.NewHub()
	messageBridge := bridge.New(messageRepo)
	messageBridge.Start()
	defer messageBridge.Close()

	roomRegistry := registry.NewService(roomRepo, userRepo, hub)

	authHandler := handlers.NewAuthHandler(idService, auditEmitter)
	roomHandler := handlers.NewRoomHandler(roomRegistry, messageBridge, auditEmitter)
	chatWS := ws.NewChatWebSocketHandler(hub, roomRegistry, messageBridge, idService)

	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(idService)

	router.POST("/signup", authHandler.Signup)
	router.POST("/signin", authHandler.Signin)
	router.POST("/jwt_refresh", authHandler.Refresh)

	router.POST("/chat/rooms", authMiddleware, roomHandler.CreateRoom)
	router.GET("/chat/rooms", authMiddleware, roomHandler.ListRooms)
	router.GET("/chat/find", authMiddleware, roomHandler.Find)
	router.POST("/chat/rooms/:room/members", authMiddleware, roomHandler.AddMember)
	router.DELETE("/chat/rooms/:room/members", authMiddleware, roomHandler.RemoveMember)
	router.GET("/chat/rooms/:room/messages", authMiddleware, roomHandler.History)

	router.GET("/ws/chat", chatWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
