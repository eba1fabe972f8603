package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/refugios-lanche/api/internal/domain"
)

type stubHealthRepository struct {
	collectFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFn == nil {
		return domain.SystemHealthReport{}, errors.New("collect not stubbed")
	}
	return s.collectFn(ctx)
}

func TestHealthReportFillsBuildMetadata(t *testing.T) {
	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 7, 30, 0, 0, time.UTC)

	repo := &stubHealthRepository{
		collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.4.0",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}

	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Version != "1.4.0" || report.Environment != "production" {
		t.Fatalf("build metadata missing: %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("unexpected uptime %s", report.Uptime)
	}
	if report.GeneratedAt != now {
		t.Fatalf("unexpected timestamp %s", report.GeneratedAt)
	}
}

func TestHealthReportDerivesWorstStatus(t *testing.T) {
	repo := &stubHealthRepository{
		collectFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusError, Error: "topic unreachable"},
				},
			}, nil
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %q", report.Status)
	}
}
