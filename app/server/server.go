package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"ragchat/app/agent"
	"ragchat/app/api"
	"ragchat/config"
	"ragchat/model"
	"ragchat/store"
)

// Server owns the fiber app and the shared index; everything request-scoped
// is built per call by the handlers.
type Server struct {
	cfg   *config.Config
	app   *fiber.App
	store store.VectorStorer
}

// New wires the store, embedder, relay and handlers from config. Missing
// credentials fail here, before the listener ever starts.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	embKey, err := cfg.Embedding.APIKey()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("embedding credential: %w", err)
	}
	embedder := model.NewOpenAIEmbedder(cfg.Embedding.BaseURL, embKey, cfg.Embedding.Model)

	chatKey, err := cfg.Chat.APIKey()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("chat credential: %w", err)
	}
	relay := model.NewRelay(
		cfg.Chat.BaseURL,
		chatKey,
		cfg.Chat.SiteURL,
		cfg.Chat.SiteName,
		time.Duration(cfg.Chat.TimeoutSecs)*time.Second,
	)

	ag := agent.New(st, embedder, cfg.RAG)

	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	if len(cfg.Server.AllowOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.Server.AllowOrigins, ","),
			AllowCredentials: true,
		}))
	}

	var (
		checkHandler  = api.NewCheckHandler()
		chatHandler   = api.NewChatHandler(ag, relay, cfg.Chat)
		ingestHandler = api.NewIngestHandler(ag, cfg.Server.SourceDir, cfg.RAG)
		apiGroup      = app.Group("/api")
		agentGroup    = apiGroup.Group("/agent")
	)

	apiGroup.Get("/health", checkHandler.HandleHealthy)
	agentGroup.Post("/chat", chatHandler.HandleChat)
	agentGroup.Post("/ingest", ingestHandler.HandleIngest)
	agentGroup.Post("/ingest/file", ingestHandler.HandleIngestFile)

	return &Server{
		cfg:   cfg,
		app:   app,
		store: st,
	}, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig) (store.VectorStorer, error) {
	switch cfg.Backing {
	case "pgvector":
		port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
		pg, err := store.NewPostgresStore(ctx, connStr, cfg.VectorDim)
		if err != nil {
			return nil, err
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "memory", "":
		return store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backing %q", cfg.Backing)
	}
}

func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Str("backing", s.cfg.Store.Backing).Msg("server starting")
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop() {
	if err := s.app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close failed")
	}
	log.Info().Msg("server stopped")
}
