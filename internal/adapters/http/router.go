package http

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/adapters/signal"
	"github.com/dkeye/Rooms/internal/app/orch"
	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/core"
)

const clientTokenKey = "client_token"

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware keeps a per-browser token in the session cookie and
// exposes it to handlers as "client_token".
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// SetupRouter builds the gin engine. uploads may be nil when images are served elsewhere.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, images core.ImageStore, uploads http.FileSystem) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.CORS)))

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RoomsSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
	}
	if uploads != nil {
		r.StaticFS(cfg.Upload.BaseURL, uploads)
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: o, images: images}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rooms := r.Group("/rooms")
	rooms.POST("", h.createRoom)
	rooms.GET("", h.listRooms)
	rooms.GET("/:id", h.getRoom)
	rooms.POST("/:id/join", h.joinRoom)
	rooms.POST("/:id/leave", h.leaveRoom)
	rooms.POST("/:id/rounds", h.startRound)
	rooms.GET("/:id/ranks", h.ranks)

	rounds := r.Group("/rounds")
	rounds.GET("/:id", h.getRound)
	rounds.POST("/:id/submissions", h.submit)
	rounds.POST("/:id/close", h.closeRound)

	ctrl := signal.NewSignalWSController(o, cfg.Relay)
	r.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	cc := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		cc.AllowAllOrigins = true
		return cc
	}
	cc.AllowOrigins = cfg.AllowOrigins
	// The session cookie carries the client token.
	cc.AllowCredentials = true
	return cc
}

type handlers struct {
	orch   *orch.Orchestrator
	images core.ImageStore
}
