package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/d60-Lab/livesync/config"
	"github.com/d60-Lab/livesync/internal/api/handler"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/internal/service"
)

// Server 开发后端：gin 路由 + websocket hub + outbox fanout
type Server struct {
	Engine *gin.Engine
	Hub    *service.Hub
	Fanout *service.FanoutWorker
	Auth   service.AuthService

	stopFanout func(context.Context) error
}

func NewServer(cfg *config.Config, db *gorm.DB) *Server {
	auth := service.NewAuthService(repository.NewUserRepository(db), cfg.Server.JWTSecret, cfg.Server.TokenTTL)
	pub := service.NewPublisher(db)
	hub := service.NewHub(auth)
	h := handler.NewHandler(auth, service.NewMessageService(db, pub), service.NewCommunityService(db, pub))
	return &Server{
		Engine: NewRouter(cfg.App.Name, h, auth, hub),
		Hub:    hub,
		Fanout: service.NewFanoutWorker(db, hub, 0, cfg.Server.FanoutTick),
		Auth:   auth,
	}
}

// Start 启动 fanout worker
func (s *Server) Start() {
	if s.stopFanout == nil {
		s.stopFanout = s.Fanout.Start()
	}
}

// Stop stops delivering and drops every websocket connection.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.stopFanout != nil {
		err = s.stopFanout(ctx)
		s.stopFanout = nil
	}
	s.Hub.Close()
	return err
}
