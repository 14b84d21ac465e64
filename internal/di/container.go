package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/gioia-jewelry/api/internal/payments"
	"github.com/gioia-jewelry/api/internal/platform/auth"
	"github.com/gioia-jewelry/api/internal/platform/config"
	"github.com/gioia-jewelry/api/internal/repositories"
	"github.com/gioia-jewelry/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Login       services.LoginService
	Cart        services.CartService
	Inventory   services.InventoryService
	Pricing     services.PricingEngine
	Promotions  services.PromotionService
	Orders      services.OrderService
	Fulfillment services.FulfillmentService
	Payments    services.PaymentService
}

// Infrastructure carries the externally constructed collaborators the
// container cannot build from configuration alone.
type Infrastructure struct {
	Events        services.OrderEventPublisher
	Authenticator *auth.SessionAuthenticator
	OTP           *auth.OTPStore
	OTPSender     services.OTPSender
	Logger        *zap.Logger
}

// Container wires repositories, services, and gateway adapters for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Gateways     *payments.Manager
	VNPay        *payments.VNPayProvider
}

// NewContainer constructs the runtime dependencies. Production wiring provides the Firestore
// registry and Pub/Sub publisher, while tests can supply in-memory substitutes.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	logger := infra.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	vnpayProvider, manager, err := buildGateways(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(cfg, reg, infra, manager, vnpayProvider, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Gateways:     manager,
		VNPay:        vnpayProvider,
	}, nil
}

// Close releases resources such as repository clients or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildGateways(cfg config.Config, logger *zap.Logger) (*payments.VNPayProvider, *payments.Manager, error) {
	vnpayProvider, err := payments.NewVNPayProvider(payments.VNPayConfig{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PayURL:     cfg.VNPay.PayURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
		Expiry:     cfg.VNPay.Expiry,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("vnpay")),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build vnpay provider: %w", err)
	}

	providers := map[string]payments.Provider{
		"vnpay": vnpayProvider,
	}
	if cfg.Stripe.APIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Stripe.APIKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Clock:      time.Now,
			Logger:     serviceLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["card"] = stripeProvider
	}

	manager, err := payments.NewManager(providers)
	if err != nil {
		return nil, nil, fmt.Errorf("build payment manager: %w", err)
	}
	return vnpayProvider, manager, nil
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure, manager *payments.Manager, vnpayProvider *payments.VNPayProvider, logger *zap.Logger) (Services, error) {
	var svc Services

	idGen := func() string { return ulid.Make().String() }

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory:  reg.Inventory(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("inventory")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions:  reg.Promotions(),
		IDGenerator: idGen,
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("promotions")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	pricingEngine, err := services.NewCartPricingEngine(services.CartPricingEngineDeps{
		Promotion:   promotionSvc,
		ShippingFee: cfg.Pricing.ShippingFee,
		Now:         time.Now,
		Logger:      serviceLogger(logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricingEngine

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Variants: reg.Variants(),
		Clock:    time.Now,
		Logger:   serviceLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Inventory:  inventorySvc,
		UnitOfWork: reg,
		Events:     infra.Events,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	fulfillmentSvc, err := services.NewFulfillmentService(services.FulfillmentServiceDeps{
		Carts:       reg.Carts(),
		Variants:    reg.Variants(),
		Addresses:   reg.Addresses(),
		Promotions:  reg.Promotions(),
		Orders:      reg.Orders(),
		Counters:    reg.Counters(),
		Inventory:   inventorySvc,
		Pricing:     pricingEngine,
		UnitOfWork:  reg,
		Events:      infra.Events,
		IDGenerator: idGen,
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("fulfillment")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build fulfillment service: %w", err)
	}
	svc.Fulfillment = fulfillmentSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:      orderSvc,
		Attempts:    reg.Payments(),
		Gateways:    manager,
		VNPay:       vnpayProvider,
		IDGenerator: idGen,
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	if infra.Authenticator != nil && infra.OTP != nil {
		sender := infra.OTPSender
		if sender == nil {
			otpLogger := logger.Named("otp")
			sender = func(ctx context.Context, email, code string, expiresAt time.Time) error {
				otpLogger.Info("otp issued",
					zap.String("email", email),
					zap.Time("expires_at", expiresAt),
				)
				return nil
			}
		}
		loginSvc, err := services.NewLoginService(services.LoginServiceDeps{
			Users:    reg.Users(),
			OTP:      infra.OTP,
			Sessions: infra.Authenticator,
			Sender:   sender,
			Clock:    time.Now,
			Logger:   serviceLogger(logger.Named("login")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build login service: %w", err)
		}
		svc.Login = loginSvc
	}

	return svc, nil
}

func serviceLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Info(event, zFields...)
	}
}
