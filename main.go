package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/subosito/gotenv"

	"github.com/fiware/message-backplane/authz"
	"github.com/fiware/message-backplane/bus"
	"github.com/fiware/message-backplane/cache"
	"github.com/fiware/message-backplane/config"
	backplaneHttp "github.com/fiware/message-backplane/http"
	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/sql"
	"github.com/fiware/message-backplane/store"
	"github.com/fiware/message-backplane/sweeper"
)

var logger = logging.Log()

var envConfig config.Config = config.EnvConfig{}

func init() {
	if err := gotenv.Load(); err != nil {
		logger.Debugf("No .env file loaded: %v.", err)
	}
}

/**
* Startup method to wire the backplane core and run the gin-server.
 */
func main() {

	repository := sql.GetMySqlRepository()

	messageCache := cache.NewMessageCache(envConfig.CacheWindowSize())
	busRegistry := bus.NewRegistry(repository)
	graph := authz.NewGraph(repository, busRegistry, envConfig.TokenTTL())
	messageStore := store.NewMessageStore(repository, messageCache, busRegistry, envConfig.MaxChannelMessages())
	if err := messageStore.SeedCache(context.Background()); err != nil {
		logger.Warnf("Was not able to seed the message cache: %v.", err)
	}

	retentionSweeper := sweeper.NewRetentionSweeper(messageStore, graph, envConfig.CleanupInterval())
	if err := retentionSweeper.Start(); err != nil {
		logger.Fatalf("Was not able to start the retention sweeper. Err: %v", err)
	}
	defer retentionSweeper.Stop()

	handler := backplaneHttp.NewBackplaneHandler(messageStore, graph, busRegistry)

	router := gin.New()
	router.Use(logging.GinHandlerFunc(), gin.Recovery())

	metricsMonitor := ginmetrics.GetMonitor()
	metricsMonitor.SetMetricPath("/metrics")
	metricsMonitor.Use(router)

	router.GET("/health", backplaneHttp.HealthReq)

	// message plane
	router.POST("/v2/bus/:bus/channel/:channel", handler.PostMessage)
	router.GET("/v2/messages", handler.GetMessages)
	router.GET("/v2/message/:id", handler.GetMessageById)

	// tokens
	router.POST("/v2/token", handler.IssueToken)
	router.DELETE("/v2/token/:id", handler.RevokeToken)

	// provisioning
	provisioning := router.Group("/v2/provision", backplaneHttp.AdminAuthMiddleware(envConfig.AdminJwtSecret()))
	provisioning.POST("/bus", handler.CreateBus)
	provisioning.DELETE("/bus/:id", handler.DeleteBus)
	provisioning.POST("/grant", handler.CreateGrant)
	provisioning.DELETE("/grant/:id", handler.DeleteGrant)
	provisioning.DELETE("/owner/:id", handler.DeleteOwner)
	provisioning.GET("/messages/count", handler.GetMessageCount)

	serverPort := envConfig.ServerPort()
	logger.Infof("Starting router at %v", serverPort)
	router.Run(fmt.Sprintf("0.0.0.0:%v", serverPort))
}
