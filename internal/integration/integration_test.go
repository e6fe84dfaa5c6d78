package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-room-service/internal/app"
	"quiz-room-service/internal/domain"
	pgloader "quiz-room-service/internal/infra/postgres"
	pgmigrations "quiz-room-service/internal/infra/postgres/migrations"
	infraredis "quiz-room-service/internal/infra/redis"
)

// recordingSink is an in-process stand-in for a websocket connection.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) SendEvent(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, domain.Event{Event: event, Payload: payload})
	return nil
}

func (s *recordingSink) IsConnected() bool { return true }

func (s *recordingSink) recorded() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) find(event string) (domain.Event, bool) {
	for _, ev := range s.recorded() {
		if ev.Event == event {
			return ev, true
		}
	}
	return domain.Event{}, false
}

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	registry := infraredis.NewRoomRegistry(redisClient, 5*time.Minute)
	engine := app.NewRoomEngine(registry, quizRepo)

	engine.CreateRoom("ROOM01", "quiz-1")

	screen := &recordingSink{}
	if err := engine.ConnectScreen("ROOM01", screen); err != nil {
		t.Fatalf("connect screen: %v", err)
	}
	alice := &recordingSink{}
	if _, err := engine.ConnectPlayer("ROOM01", "Alice", alice); err != nil {
		t.Fatalf("connect alice: %v", err)
	}
	bob := &recordingSink{}
	if _, err := engine.ConnectPlayer("ROOM01", "Bob", bob); err != nil {
		t.Fatalf("connect bob: %v", err)
	}

	questions, err := engine.LoadQuestions(ctx, "ROOM01")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].DurationSeconds != 30 {
		t.Fatalf("timer alias not resolved from jsonb: %+v", questions[0])
	}

	if err := engine.StartGame("ROOM01", questions); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Q1: Alice correct, Bob wrong. The quorum concludes the question.
	engine.SubmitAnswer("ROOM01", "Alice", "B")
	engine.SubmitAnswer("ROOM01", "Bob", "A")
	// Q2 (weight 2): both correct.
	engine.SubmitAnswer("ROOM01", "Alice", "C")
	engine.SubmitAnswer("ROOM01", "Bob", "C")

	final, ok := screen.find(domain.EventShowFinal)
	if !ok {
		t.Fatalf("no final event, saw %v", screen.recorded())
	}
	payload := final.Payload.(domain.ShowFinalPayload)
	if len(payload.Scoreboard) != 2 {
		t.Fatalf("expected 2 rows, got %+v", payload.Scoreboard)
	}
	if payload.Scoreboard[0].Player != "Alice" || string(payload.Scoreboard[0].Score) != "3" {
		t.Fatalf("expected alice leading with 3, got %+v", payload.Scoreboard[0])
	}
	if payload.Scoreboard[1].Player != "Bob" || string(payload.Scoreboard[1].Score) != "2" {
		t.Fatalf("expected bob with 2, got %+v", payload.Scoreboard[1])
	}

	// Both players saw the same broadcasts the screen did.
	if _, ok := alice.find(domain.EventShowFinal); !ok {
		t.Fatalf("alice missed the final event")
	}

	// The registry left its liveness marker behind.
	if val, err := redisClient.Get(ctx, "room:live:ROOM01").Result(); err != nil || val != "quiz-1" {
		t.Fatalf("liveness marker = %q, %v", val, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (? , ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Warm-up",
		Questions: []domain.Question{
			{
				ID:   "q1",
				Text: "What is 2 + 2?",
				Options: []domain.Option{
					{ID: "A", Text: "3"},
					{ID: "B", Text: "4"},
					{ID: "C", Text: "5"},
				},
				CorrectOption:   "B",
				DurationSeconds: 30,
			},
			{
				ID:   "q2",
				Text: "Which planet is known as the Red Planet?",
				Options: []domain.Option{
					{ID: "A", Text: "Venus"},
					{ID: "B", Text: "Jupiter"},
					{ID: "C", Text: "Mars"},
				},
				CorrectOption:   "C",
				ScoreWeight:     "2",
				DurationSeconds: 45,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
