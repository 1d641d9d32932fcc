package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chronos-cypher-service/internal/app"
	"chronos-cypher-service/internal/config"
	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
	"chronos-cypher-service/internal/infra/memory"
	pgstore "chronos-cypher-service/internal/infra/postgres"
	redisstore "chronos-cypher-service/internal/infra/redis"
	transport "chronos-cypher-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.LevelLoader = memory.NewStaticLevelLoader(sampleLevels())
	if pool != nil {
		loader = pgstore.NewLevelLoader(pool)
	}

	levelTTL := config.Duration(cfg.Levels.TTL, 10*time.Minute)
	var levels app.LevelRepository
	if redisClient != nil {
		levels = redisstore.NewLevelRepository(redisClient, loader, levelTTL)
	} else {
		levels = memory.NewLevelRepository(loader, levelTTL)
	}

	var teams app.TeamStore
	switch {
	case pool != nil:
		teams = pgstore.NewTeamStore(pool)
	case redisClient != nil:
		teams = redisstore.NewTeamStore(redisClient)
	default:
		teams = memory.NewTeamStore()
	}

	timer := engine.NewGameTimer(config.Duration(cfg.Game.TotalDuration, engine.DefaultTotalDuration))
	service := app.NewGameService(teams, levels, timer, cfg.Game.RevertPenalty)

	wsHandler := transport.NewWSHandler(service)
	apiHandler := transport.NewAPIHandler(service, cfg.Admin.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting chronos cypher service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleLevels provides a minimal ladder for running without Postgres; real
// deployments load level content from the levels table.
func sampleLevels() map[int]domain.Level {
	standard := domain.ScoringTable{
		PointsPerCorrect:         1500,
		PointsPerCorrectWithHint: 1000,
		IncorrectPenalty:         400,
		SkipPenalty:              750,
		ConsecutiveBonusUnit:     200,
		ConsecutiveBonusBlock:    3,
		TimeBonusTiers: []domain.TimeBonusTier{
			{ThresholdMinutes: 2.5, Bonus: 200},
			{ThresholdMinutes: 4, Bonus: 100},
		},
	}
	hard := standard
	hard.PointsPerCorrect = 2000

	return map[int]domain.Level{
		1: {
			Number:  1,
			Title:   "Opening Cipher",
			Scoring: standard,
			Questions: []domain.Question{
				{
					ID:     "l1q1",
					Prompt: "What is 7 x 8?",
					Kind:   domain.QuestionNumeric,
					Answer: "56",
					Hint:   "Think of 7 x 4, doubled.",
				},
				{
					ID:     "l1q2",
					Prompt: "I speak without a mouth and hear without ears. What am I?",
					Kind:   domain.QuestionText,
					Answer: "an echo",
					Hint:   "You find me in canyons.",
				},
				{
					ID:     "l1q3",
					Prompt: "Which planet is known as the Red Planet?",
					Kind:   domain.QuestionChoice,
					Options: []domain.Option{
						{ID: "a", Text: "Venus"},
						{ID: "b", Text: "Mars"},
						{ID: "c", Text: "Jupiter"},
					},
					Answer: "b",
				},
			},
		},
		2: {
			Number:  2,
			Title:   "Fraction Vault",
			Scoring: hard,
			Questions: []domain.Question{
				{
					ID:     "l2q1",
					Prompt: "Simplify 4/8 to its lowest terms.",
					Kind:   domain.QuestionFraction,
					Answer: "1/2",
					Hint:   "Divide both sides by their greatest common factor.",
				},
				{
					ID:     "l2q2",
					Prompt: "What is 12 squared?",
					Kind:   domain.QuestionNumeric,
					Answer: "144",
				},
			},
		},
	}
}
