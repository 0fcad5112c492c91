package server

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hong-lou/chatrelay/internal/config"
	"github.com/hong-lou/chatrelay/internal/domain"
	"github.com/hong-lou/chatrelay/internal/fanout"
	"github.com/hong-lou/chatrelay/internal/postgres"
	"github.com/hong-lou/chatrelay/internal/redis"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	sessions *fanout.SessionController

	verifier   domain.CredentialVerifier
	membership *postgres.MembershipRepo
	messages   *postgres.MessageRepo
	publisher  domain.Publisher
	unread     *redis.UnreadCounters

	pool        *pgxpool.Pool
	redisClient *goredis.Client
}

func NewServer(
	cfg *config.Config,
	sessions *fanout.SessionController,
	verifier domain.CredentialVerifier,
	membership *postgres.MembershipRepo,
	messages *postgres.MessageRepo,
	publisher domain.Publisher,
	unread *redis.UnreadCounters,
	pool *pgxpool.Pool,
	redisClient *goredis.Client,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:        e,
		config:      cfg,
		sessions:    sessions,
		verifier:    verifier,
		membership:  membership,
		messages:    messages,
		publisher:   publisher,
		unread:      unread,
		pool:        pool,
		redisClient: redisClient,
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
