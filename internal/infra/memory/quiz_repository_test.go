package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-room-service/internal/domain"
)

type countingLoader struct {
	mu    sync.Mutex
	calls int
	quiz  domain.Quiz
	err   error
}

func (l *countingLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return domain.Quiz{}, l.err
	}
	return l.quiz, nil
}

func (l *countingLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestGetQuizCachesUntilTTL(t *testing.T) {
	loader := &countingLoader{quiz: domain.Quiz{ID: "quiz-1", Title: "Warm-up"}}
	repo := NewQuizRepository(loader, time.Minute)

	now := time.Now()
	repo.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if quiz.ID != "quiz-1" {
			t.Fatalf("wrong quiz: %+v", quiz)
		}
	}
	if loader.callCount() != 1 {
		t.Fatalf("expected a single backing load, got %d", loader.callCount())
	}

	// Past the TTL plus the worst-case 10% jitter the cache reloads.
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if loader.callCount() != 2 {
		t.Fatalf("expected reload after expiry, got %d calls", loader.callCount())
	}
}

func TestGetQuizPropagatesLoaderError(t *testing.T) {
	loader := &countingLoader{err: domain.ErrQuizNotFound}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	// Errors are not cached; the next call hits the loader again.
	repo.GetQuiz(context.Background(), "missing")
	if loader.callCount() != 2 {
		t.Fatalf("expected 2 loads, got %d", loader.callCount())
	}
}

func TestStaticQuizLoader(t *testing.T) {
	loader := NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1"},
	})
	if _, err := loader.LoadQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := loader.LoadQuiz(context.Background(), "other"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
