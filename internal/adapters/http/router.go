package http

import (
	"context"
	stdhttp "net/http"

	"github.com/dkeye/Signal/internal/adapters/signal"
	"github.com/dkeye/Signal/internal/config"
	"github.com/dkeye/Signal/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

// ClientTokenMiddleware gives every browser a stable token kept in the
// cookie session. It only labels logs and rate limits; it is not auth.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	ctrl *signal.SignalWSController,
	m *metrics.Metrics,
	snapshots *SnapshotStore,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("SignalSessions", store))
	r.Use(ClientTokenMiddleware())

	a := &handlers{
		cfg:       cfg,
		limiter:   NewIssueRateLimiter(cfg.IssueLimit, cfg.IssueInterval),
		snapshots: snapshots,
	}

	signalHandler := func(c *gin.Context) {
		ctrl.Serve(ctx, c.Writer, c.Request, c.GetString(clientTokenKey))
	}
	files := gin.WrapH(stdhttp.FileServer(newStaticFS(cfg.StaticPath)))

	// The signaling socket is accepted on any path; "/" also serves the index page.
	r.GET("/", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			signalHandler(c)
			return
		}
		files(c)
	})
	r.GET("/ws", signalHandler)
	r.GET("/health", a.health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	group := r.Group("/api")
	group.GET("/config", a.clientConfig)
	group.GET("/new-room", a.newRoom)
	group.POST("/metrics", a.saveMetrics)
	group.GET("/metrics", a.lastMetrics)

	r.NoRoute(func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			signalHandler(c)
			return
		}
		if c.Request.Method != stdhttp.MethodGet && c.Request.Method != stdhttp.MethodHead {
			c.JSON(stdhttp.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		files(c)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
