package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrPaymentMethodRequired = errors.New("payment method required")
	ErrPromoAlreadyApplied   = errors.New("promo code already applied")
	ErrNoCheckout            = errors.New("no checkout in progress")
	ErrWrongStep             = errors.New("action not allowed in the current checkout step")
	ErrNothingToRetry        = errors.New("checkout has nothing to retry")
	ErrFinalizationFailed    = errors.New("order finalization failed")
)

type Step string

const (
	StepReview       Step = "review"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Wizard is one checkout in flight. Order is built once, on the first finalization attempt,
// and reused by every retry.
type Wizard struct {
	Step          Step                 `json:"step"`
	Outcome       Outcome              `json:"outcome,omitempty"`
	Cart          domain.Cart          `json:"cart"`
	Promo         *domain.Promo        `json:"promo,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"payment_method,omitempty"`
	Totals        domain.Totals        `json:"totals"`
	Order         *domain.Order        `json:"order,omitempty"`
	Error         string               `json:"error,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`

	identity identity.Identity
}

func (w *Wizard) snapshot() Wizard {
	out := *w
	out.Cart = w.Cart.Clone()
	if w.Promo != nil {
		promo := *w.Promo
		out.Promo = &promo
	}
	if w.Order != nil {
		order := *w.Order
		order.Items = domain.Cart{Items: w.Order.Items}.Clone().Items
		out.Order = &order
	}

	return out
}

func (w *Wizard) refresh(cart domain.Cart) {
	fraction := decimal.Zero
	if w.Promo != nil {
		fraction = w.Promo.Fraction
	}

	w.Cart = cart
	w.Totals = domain.ComputeTotals(cart.Total(), fraction)
}

type CheckoutService interface {
	Start(ctx context.Context, profileID string, id identity.Identity) (Wizard, error)
	Get(ctx context.Context, profileID string) (Wizard, error)
	ApplyPromo(ctx context.Context, profileID, code string) (Wizard, error)
	SelectPayment(ctx context.Context, profileID, method string) (Wizard, error)
	Next(ctx context.Context, profileID string) (Wizard, error)
	Back(ctx context.Context, profileID string) (Wizard, error)
	Retry(ctx context.Context, profileID string) (Wizard, error)
}

type wizardEntry struct {
	mu     sync.Mutex
	wizard *Wizard
}

type checkoutService struct {
	carts   CartStore
	history OrderHistory
	ttl     time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu      sync.Mutex
	wizards map[string]*wizardEntry
}

func NewCheckoutService(carts CartStore, history OrderHistory, ttl time.Duration, logger *zap.Logger) CheckoutService {
	return &checkoutService{
		carts:   carts,
		history: history,
		ttl:     ttl,
		logger:  logger,
		tracer:  otel.Tracer("checkout_service"),
		now:     time.Now,
		wizards: make(map[string]*wizardEntry),
	}
}

// Start discards any previous wizard of the profile and opens a new one in review.
func (s *checkoutService) Start(ctx context.Context, profileID string, id identity.Identity) (Wizard, error) {
	s.pruneExpired()

	e := s.entry(profileID)
	e.mu.Lock()
	defer e.mu.Unlock()

	w := &Wizard{Step: StepReview, identity: id, UpdatedAt: s.now()}
	w.refresh(s.carts.Get(ctx, profileID))
	e.wizard = w

	return w.snapshot(), nil
}

func (s *checkoutService) Get(ctx context.Context, profileID string) (Wizard, error) {
	return s.with(ctx, profileID, func(*Wizard) error { return nil })
}

func (s *checkoutService) ApplyPromo(ctx context.Context, profileID, code string) (Wizard, error) {
	return s.with(ctx, profileID, func(w *Wizard) error {
		if w.Step == StepConfirmation {
			return ErrWrongStep
		}

		promo, err := domain.LookupPromo(code)
		if err != nil {
			return err
		}
		if w.Promo != nil && w.Promo.Code == promo.Code {
			return ErrPromoAlreadyApplied
		}

		w.Promo = &promo
		w.refresh(w.Cart)
		return nil
	})
}

func (s *checkoutService) SelectPayment(ctx context.Context, profileID, method string) (Wizard, error) {
	return s.with(ctx, profileID, func(w *Wizard) error {
		if w.Step != StepPayment {
			return ErrWrongStep
		}

		m, err := domain.ParsePaymentMethod(method)
		if err != nil {
			return err
		}

		w.PaymentMethod = m
		return nil
	})
}

func (s *checkoutService) Next(ctx context.Context, profileID string) (Wizard, error) {
	return s.with(ctx, profileID, func(w *Wizard) error {
		switch w.Step {
		case StepReview:
			cart := s.carts.Get(ctx, profileID)
			if cart.IsEmpty() {
				w.refresh(cart)
				return ErrEmptyCart
			}

			w.refresh(cart)
			w.Step = StepPayment
			return nil
		case StepPayment:
			if w.PaymentMethod == "" {
				return ErrPaymentMethodRequired
			}

			// the order bills the cart as it is now, not the snapshot taken when payment opened
			if w.Order == nil {
				cart := s.carts.Get(ctx, profileID)
				if cart.IsEmpty() {
					return ErrEmptyCart
				}
				w.refresh(cart)
			}

			w.Step = StepConfirmation
			return s.finalize(ctx, profileID, w)
		default:
			return ErrWrongStep
		}
	})
}

func (s *checkoutService) Back(ctx context.Context, profileID string) (Wizard, error) {
	return s.with(ctx, profileID, func(w *Wizard) error {
		if w.Step != StepPayment {
			return ErrWrongStep
		}

		w.Step = StepReview
		w.refresh(s.carts.Get(ctx, profileID))
		return nil
	})
}

func (s *checkoutService) Retry(ctx context.Context, profileID string) (Wizard, error) {
	return s.with(ctx, profileID, func(w *Wizard) error {
		if w.Step != StepConfirmation || w.Outcome != OutcomeError {
			return ErrNothingToRetry
		}

		return s.finalize(ctx, profileID, w)
	})
}

// finalize records the order and clears the cart. Both history writes are keyed by the order
// number, so running it again after a partial failure cannot duplicate the order.
func (s *checkoutService) finalize(ctx context.Context, profileID string, w *Wizard) error {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.finalize")
	defer span.End()

	if w.Order == nil {
		now := s.now()
		order := domain.NewOrder(domain.OrderDraft{
			OrderNumber:   domain.NewOrderNumber(now),
			UserID:        w.identity.UID,
			Cart:          w.Cart,
			Promo:         w.Promo,
			PaymentMethod: w.PaymentMethod,
		}, now)
		w.Order = &order
	}

	span.SetAttributes(attribute.String("order_number", w.Order.OrderNumber))

	if err := s.history.Append(ctx, profileID, w.identity, *w.Order); err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, s.logger, "Order finalization failed", zap.String("order_number", w.Order.OrderNumber), zap.Error(err))

		w.Outcome = OutcomeError
		w.Error = err.Error()
		return fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}

	s.carts.Clear(ctx, profileID)

	w.Outcome = OutcomeSuccess
	w.Error = ""

	mylogger.Info(ctx, s.logger, "Order completed",
		zap.String("order_number", w.Order.OrderNumber),
		zap.String("total", w.Order.Total.StringFixed(2)),
	)

	return nil
}

// with runs fn on the live wizard of the profile. The returned snapshot reflects the state after
// fn, including when fn fails.
func (s *checkoutService) with(ctx context.Context, profileID string, fn func(w *Wizard) error) (Wizard, error) {
	e := s.entry(profileID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wizard == nil || s.expired(e.wizard) {
		e.wizard = nil
		return Wizard{}, ErrNoCheckout
	}

	err := fn(e.wizard)
	e.wizard.UpdatedAt = s.now()

	if err != nil && !errors.Is(err, ErrFinalizationFailed) {
		mylogger.Debug(ctx, s.logger, "Checkout action rejected", zap.String("step", string(e.wizard.Step)), zap.Error(err))
	}

	return e.wizard.snapshot(), err
}

func (s *checkoutService) entry(profileID string) *wizardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.wizards[profileID]
	if !ok {
		e = &wizardEntry{}
		s.wizards[profileID] = e
	}

	return e
}

func (s *checkoutService) expired(w *Wizard) bool {
	return s.ttl > 0 && s.now().Sub(w.UpdatedAt) > s.ttl
}

// pruneExpired drops idle wizards. Entries currently locked by a request are left alone.
func (s *checkoutService) pruneExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for profileID, e := range s.wizards {
		if !e.mu.TryLock() {
			continue
		}
		if e.wizard != nil && s.expired(e.wizard) {
			delete(s.wizards, profileID)
		}
		e.mu.Unlock()
	}
}
