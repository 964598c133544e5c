package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/contacts"
	"messaging-service/internal/db"
	"messaging-service/internal/directory"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, "audit.messaging", "messaging-service", cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	resolver := directory.NewResolver(userRepo)
	aggregator := contacts.NewAggregator(resolver, messageRepo)

	hub := ws.NewHub()

	messageHandler := handlers.NewMessageHandler(resolver, aggregator, messageRepo, userRepo, hub, auditEmitter)
	assignmentHandler := handlers.NewAssignmentHandler(userRepo, hub, auditEmitter)
	channelWS := ws.NewChannelHandler(hub, resolver, cfg.JWTSecret)

	router := gin.Default()
	router.Use(otelgin.Middleware("messaging-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)

	router.GET("/contacts", authMiddleware, messageHandler.ListContacts)
	router.GET("/contacts/:user_id/messages", authMiddleware, messageHandler.GetHistory)
	router.POST("/messages", authMiddleware, messageHandler.SendMessage)
	router.POST("/assignments", authMiddleware, assignmentHandler.CreateAssignment)

	router.GET("/ws/messages", channelWS.HandleUser)
	router.GET("/ws/conversations/:user_id", channelWS.HandleConversation)
	router.GET("/ws/roster", channelWS.HandleRoster)
	router.GET("/ws/presence", channelWS.HandlePresence)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
