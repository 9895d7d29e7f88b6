package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"steambridge/backend/internal/config"
	"steambridge/backend/internal/credentials"
	"steambridge/backend/internal/handler"
	"steambridge/backend/internal/hub"
	"steambridge/backend/internal/relay"
	"steambridge/backend/internal/upstream"

	"github.com/gin-gonic/gin"
)

func init() {
	config.LoadConfig()
}

func main() {
	creds, err := credentials.Load(config.AppConfig.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to load credentials: %v", err)
	}

	connections := hub.New()
	session := upstream.NewClient(config.AppConfig.UpstreamAddr)
	bridge := relay.New(session, connections)
	session.SetEvents(bridge.Events())

	ctx := context.Background()
	if err := session.LogOn(ctx, creds.AccountName, creds.Password); err != nil {
		var authErr *upstream.AuthError
		if errors.As(err, &authErr) {
			log.Fatalf("Steam logon failed: %v", authErr)
		}
		log.Fatalf("Upstream connection failed: %v", err)
	}
	log.Printf("Logged into Steam as %s", session.Account())
	defer session.Close()

	go bridge.Run(ctx)
	go statusTicker(session, connections)

	router := gin.Default()

	router.Static("/app", config.AppConfig.StaticDir)
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/app/index.html")
	})

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	router.GET("/ws", handler.WebSocket(bridge))

	fmt.Printf("Backend running on http://localhost%s\n", config.AppConfig.ListenAddr)
	log.Fatal(router.Run(config.AppConfig.ListenAddr))
}

// statusTicker logs a periodic connection health line, mirroring the
// bridge's always-on diagnostics.
func statusTicker(session *upstream.Client, connections *hub.Hub) {
	for range time.Tick(30 * time.Second) {
		log.Printf("status: upstream account=%s contacts=%d clients=%d",
			session.Account(), len(session.Relationships()), connections.Len())
	}
}
