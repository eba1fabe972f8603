package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/refugios-lanche/api/internal/platform/config"
	"github.com/refugios-lanche/api/internal/repositories"
	"github.com/refugios-lanche/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Sales    services.SalesService
	Auth     services.AuthService
	Counters services.CounterService
	System   services.SystemService
}

// Dependencies carries the infrastructure collaborators that are constructed outside the
// container: token signing, event publishing, QR rendering, logging, build metadata.
type Dependencies struct {
	Tokens  services.TokenIssuer
	Events  services.OrderEventPublisher
	QRCodes services.QRCodeGenerator
	Build   services.BuildInfo
	Logger  func(ctx context.Context, event string, fields map[string]any)
	Clock   func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Dependencies) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Dependencies) (Services, error) {
	var svc Services

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	countersRepo := reg.Counters()
	if countersRepo == nil {
		return Services{}, errors.New("counter repository is required")
	}
	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: countersRepo,
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	productsRepo := reg.Products()
	if productsRepo == nil {
		return Services{}, errors.New("product repository is required")
	}
	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: productsRepo,
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	pricer, err := services.NewOrderPricingEngine(services.OrderPricingEngineDeps{
		Products: productsRepo,
		Logger:   deps.Logger,
		Now:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}

	ordersRepo := reg.Orders()
	if ordersRepo == nil {
		return Services{}, errors.New("order repository is required")
	}
	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          ordersRepo,
		Pricer:          pricer,
		Counters:        counterSvc,
		QRCodes:         deps.QRCodes,
		UnitOfWork:      reg,
		Events:          deps.Events,
		FrontendBaseURL: cfg.Orders.FrontendBaseURL,
		Clock:           clock,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	location, err := time.LoadLocation(cfg.Orders.Timezone)
	if err != nil {
		return Services{}, fmt.Errorf("load restaurant timezone: %w", err)
	}
	salesSvc, err := services.NewSalesService(services.SalesServiceDeps{
		Orders:   ordersRepo,
		Location: location,
		Clock:    clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build sales service: %w", err)
	}
	svc.Sales = salesSvc

	adminsRepo := reg.Admins()
	if adminsRepo != nil && deps.Tokens != nil {
		authSvc, err := services.NewAuthService(services.AuthServiceDeps{
			Admins: adminsRepo,
			Tokens: deps.Tokens,
			Clock:  clock,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build auth service: %w", err)
		}
		svc.Auth = authSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
