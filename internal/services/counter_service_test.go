package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/refugios-lanche/api/internal/repositories"
)

type stubCounterRepository struct {
	nextFn      func(ctx context.Context, counterID string, step int64) (int64, error)
	configureFn func(ctx context.Context, counterID string, cfg repositories.CounterConfig) error

	configureCalls int
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn == nil {
		return 0, errors.New("next not stubbed")
	}
	return s.nextFn(ctx, counterID, step)
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	s.configureCalls++
	if s.configureFn == nil {
		return nil
	}
	return s.configureFn(ctx, counterID, cfg)
}

func TestCounterServiceNextFormatsValues(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "receipts:daily" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			if step != 1 {
				t.Fatalf("unexpected step %d", step)
			}
			return 7, nil
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	value, err := svc.Next(context.Background(), "receipts", "daily", CounterGenerationOptions{
		Step:      1,
		Prefix:    "RC-",
		PadLength: 4,
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if value.Value != 7 {
		t.Fatalf("expected raw value 7, got %d", value.Value)
	}
	if value.Formatted != "RC-0007" {
		t.Fatalf("expected RC-0007, got %q", value.Formatted)
	}
}

func TestCounterServiceNextRejectsBlankScope(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), "  ", "daily", CounterGenerationOptions{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestCounterServiceNextOrderNumber(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders:sequence" {
				t.Fatalf("unexpected counter id %q", counterID)
			}
			return 42, nil
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	number, err := svc.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != "RFL000042" {
		t.Fatalf("expected RFL000042, got %q", number)
	}
	if !strings.HasPrefix(number, "RFL") || len(number) != 9 {
		t.Fatalf("order number shape mismatch: %q", number)
	}
}

func TestCounterServiceConfiguresOnce(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(_ context.Context, _ string, _ int64) (int64, error) { return 1, nil },
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	max := int64(999999)
	opts := CounterGenerationOptions{Step: 1, MaxValue: &max}
	for i := 0; i < 3; i++ {
		if _, err := svc.Next(context.Background(), "orders", "sequence", opts); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if repo.configureCalls != 1 {
		t.Fatalf("expected a single configure call, got %d", repo.configureCalls)
	}
}

func TestCounterServiceMapsExhaustion(t *testing.T) {
	repo := &stubCounterRepository{
		nextFn: func(_ context.Context, _ string, _ int64) (int64, error) {
			return 0, &repositories.CounterError{Code: repositories.CounterErrorExhausted, Message: "counter at max"}
		},
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), "orders", "sequence", CounterGenerationOptions{}); !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}
