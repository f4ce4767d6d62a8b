package order

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goimay/orders/internal/retry"
)

// resolveConcurrency bounds parallel catalog lookups per checkout.
const resolveConcurrency = 4

// Recorder receives the outcome of every order operation.
type Recorder interface {
	ObserveTransition(op, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string) {}

// Service is the only writer of order state. Customer methods are scoped to
// the caller's own orders; Admin methods act on any order.
type Service struct {
	repo    Repository
	catalog CatalogResolver
	users   IdentityResolver

	ids      *IDGenerator
	events   EventPublisher
	recorder Recorder
	log      *zap.Logger
	retry    retry.Config
	now      func() time.Time

	loc        *time.Location
	timeLayout string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(g *IDGenerator) Option { return func(s *Service) { s.ids = g } }

func WithPublisher(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithRetry sets the backoff used when a write hits ErrConflict.
func WithRetry(cfg retry.Config) Option { return func(s *Service) { s.retry = cfg } }

// WithTimeFormat sets how OrderView timestamps are rendered.
func WithTimeFormat(loc *time.Location, layout string) Option {
	return func(s *Service) {
		s.loc = loc
		s.timeLayout = layout
	}
}

func NewService(repo Repository, catalog CatalogResolver, users IdentityResolver, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		catalog:    catalog,
		users:      users,
		ids:        NewIDGenerator(),
		events:     NopPublisher{},
		recorder:   nopRecorder{},
		log:        zap.NewNop(),
		retry:      retry.DefaultConfig,
		now:        time.Now,
		loc:        time.Local,
		timeLayout: LegacyTimeLayout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Retryable = func(err error) bool { return errors.Is(err, ErrConflict) }
	return s
}

// CreateOrder places an order for the user behind email. Prices are taken
// from the catalog at this instant and never change afterwards.
func (s *Service) CreateOrder(ctx context.Context, email string, req CreateOrderRequest) (*View, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}

	lines := make([]CreateOrderItem, 0, len(req.Items))
	for _, ln := range req.Items {
		if ln.ProductID != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		s.recorder.ObserveTransition("create", resultOf(ErrValidation))
		return nil, NewValidationError("cart is empty")
	}
	info := req.shipping()
	if err := info.validate(); err != nil {
		s.recorder.ObserveTransition("create", resultOf(err))
		return nil, err
	}

	items, err := s.resolveItems(ctx, lines)
	if err != nil {
		s.recorder.ObserveTransition("create", resultOf(err))
		return nil, err
	}

	var o *Order
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		if o, err = New(s.ids.Next(), userID, info, items, s.now()); err != nil {
			return err
		}
		return s.repo.Create(ctx, o)
	})
	s.recorder.ObserveTransition("create", resultOf(err))
	if err != nil {
		s.logFailure("create order", "", err)
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.Total.String()))
	s.publish(ctx, EventCreated, o)
	return s.view(o), nil
}

// resolveItems snapshots every line. Results are stored by index so the
// items keep the request order.
func (s *Service) resolveItems(ctx context.Context, lines []CreateOrderItem) ([]Item, error) {
	items := make([]Item, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, ln := range lines {
		g.Go(func() error {
			p, err := s.catalog.ResolveProduct(gctx, string(ln.ProductID))
			if err != nil {
				return err
			}
			qty := 1
			if ln.Quantity != nil {
				qty = *ln.Quantity
			}
			items[i] = NewItem(p, qty)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

// ListMyOrders returns the caller's orders, newest first.
func (s *Service) ListMyOrders(ctx context.Context, email string) ([]*View, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	orders, err := s.repo.List(ctx, ListFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	return s.views(orders), nil
}

// GetMyOrder fails with ErrNotFound for missing and foreign orders alike.
func (s *Service) GetMyOrder(ctx context.Context, email, orderID string) (*View, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.GetForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	return s.view(o), nil
}

// MarkReceived moves the caller's ConfirmedPreparing order to Delivered.
// Repeating it on a delivered order returns the order unchanged.
func (s *Service) MarkReceived(ctx context.Context, email, orderID string) (*View, error) {
	userID, err := s.users.ResolveUserID(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "mark_received", orderID, userID, func(o *Order, now time.Time) (bool, error) {
		return o.MarkReceived(now)
	})
}

// AdminListAllOrders returns every order, newest first.
func (s *Service) AdminListAllOrders(ctx context.Context) ([]*View, error) {
	return s.AdminListOrders(ctx, "")
}

// AdminListOrders is AdminListAllOrders narrowed to one status code.
// An empty status lists everything.
func (s *Service) AdminListOrders(ctx context.Context, status string) ([]*View, error) {
	var f ListFilter
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		f.Status = st
	}
	orders, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.views(orders), nil
}

func (s *Service) AdminConfirm(ctx context.Context, orderID string) (*View, error) {
	return s.mutate(ctx, "confirm", orderID, "", func(o *Order, now time.Time) (bool, error) {
		return true, o.Confirm(now)
	})
}

func (s *Service) AdminCancel(ctx context.Context, orderID string) (*View, error) {
	return s.mutate(ctx, "cancel", orderID, "", func(o *Order, now time.Time) (bool, error) {
		return true, o.Cancel(now)
	})
}

// mutate runs apply against the locked order, retrying on write conflicts.
func (s *Service) mutate(ctx context.Context, op, orderID, ownerID string,
	apply func(o *Order, now time.Time) (bool, error)) (*View, error) {
	var (
		out     *Order
		from    Status
		changed bool
	)
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		o, err := s.repo.Update(ctx, orderID, ownerID, func(o *Order) (bool, error) {
			from = o.Status
			c, err := apply(o, s.now())
			changed = c
			return c, err
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	s.recorder.ObserveTransition(op, resultOf(err))
	if err != nil {
		s.logFailure(op, orderID, err)
		return nil, err
	}

	if changed && from != out.Status {
		s.log.Info("order status changed",
			zap.String("order_id", out.ID),
			zap.String("op", op),
			zap.String("from", string(from)),
			zap.String("to", string(out.Status)))
		s.publish(ctx, eventType(out.Status), out)
	}
	return s.view(out), nil
}

func (s *Service) publish(ctx context.Context, typ string, o *Order) {
	if typ == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, newEvent(typ, o)); err != nil {
		s.log.Warn("publish order event", zap.String("order_id", o.ID), zap.String("type", typ), zap.Error(err))
	}
}

func (s *Service) logFailure(op, orderID string, err error) {
	var be *Error
	if errors.As(err, &be) {
		s.log.Debug("order operation rejected", zap.String("op", op), zap.String("order_id", orderID), zap.Error(err))
		return
	}
	s.log.Error("order operation failed", zap.String("op", op), zap.String("order_id", orderID), zap.Error(err))
}

func (s *Service) view(o *Order) *View { return ToView(o, s.loc, s.timeLayout) }

func (s *Service) views(orders []*Order) []*View {
	out := make([]*View, 0, len(orders))
	for _, o := range orders {
		out = append(out, s.view(o))
	}
	return out
}

func eventType(st Status) string {
	switch st {
	case StatusConfirmedPreparing:
		return EventConfirmed
	case StatusCancelled:
		return EventCancelled
	case StatusDelivered:
		return EventDelivered
	}
	return ""
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "error"
}
