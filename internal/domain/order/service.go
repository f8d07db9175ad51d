package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/ruxstar-pod/internal/domain/auth"
	"github.com/xenking/ruxstar-pod/internal/domain/pricing"
	"github.com/xenking/ruxstar-pod/internal/domain/product"
	"github.com/xenking/ruxstar-pod/internal/domain/vendor"
	"github.com/xenking/ruxstar-pod/pkg/opt"
)

// Default accepted quantity range for a single order line.
const (
	DefaultMinQuantity = 1
	DefaultMaxQuantity = 500
)

// PlaceOrderRequest holds a configured order as submitted by a customer.
type PlaceOrderRequest struct {
	ProductID  string   `json:"product_id" validate:"required"`
	Quantity   int      `json:"quantity"`
	Size       string   `json:"size"`
	Color      string   `json:"color"`
	PrintType  string   `json:"print_type"`
	Placement  string   `json:"placement"`
	Turnaround string   `json:"turnaround"`
	Customer   Customer `json:"customer"`
	Notes      string   `json:"notes" validate:"max=2000"`
	Design     *DesignFile
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Product *product.Product
	Pricing pricing.Result
}

// Service owns order creation and the fulfilment state machine. Status
// changes go through Advance only.
type Service struct {
	products product.Repository
	vendors  vendor.Repository
	orders   Repository
	files    Uploader
	notifier Notifier
	engine   *pricing.Engine
	validate *validator.Validate

	minQuantity int
	maxQuantity int

	now   func() time.Time
	newID func() string

	tracer      trace.Tracer
	placed      metric.Int64Counter
	transitions metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithQuantityRange sets the accepted quantity range. Requested quantities
// outside it are clamped.
func WithQuantityRange(lo, hi int) Option {
	return func(s *Service) {
		if lo >= 1 && hi >= lo {
			s.minQuantity, s.maxQuantity = lo, hi
		}
	}
}

// WithTracerProvider sets the tracer provider used for service spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("pod/order")
	}
}

// WithMeterProvider sets the meter provider used for service counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.initMetrics(mp.Meter("pod/order"))
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	vendors vendor.Repository,
	orders Repository,
	files Uploader,
	notifier Notifier,
	engine *pricing.Engine,
	opts ...Option,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Service{
		products:    products,
		vendors:     vendors,
		orders:      orders,
		files:       files,
		notifier:    notifier,
		engine:      engine,
		validate:    newValidator(),
		minQuantity: DefaultMinQuantity,
		maxQuantity: DefaultMaxQuantity,
		now:         time.Now,
		newID:       uuid.NewString,
		tracer:      otel.GetTracerProvider().Tracer("pod/order"),
	}
	s.initMetrics(otel.GetMeterProvider().Meter("pod/order"))
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) initMetrics(meter metric.Meter) {
	var err error
	s.placed, err = meter.Int64Counter("pod.orders.placed",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		s.placed = noop.Int64Counter{}
	}
	s.transitions, err = meter.Int64Counter("pod.orders.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		s.transitions = noop.Int64Counter{}
	}
}

// Quote prices a configuration without placing an order. The quantity is
// clamped to the accepted range first.
func (s *Service) Quote(ctx context.Context, productID string, quantity int, turnaround string) (pricing.Result, error) {
	p, err := s.product(ctx, productID)
	if err != nil {
		return pricing.Result{}, err
	}
	t, err := resolveTurnaround(p, turnaround)
	if err != nil {
		return pricing.Result{}, err
	}
	quantity = pricing.Clamp(quantity, s.minQuantity, s.maxQuantity)
	return s.engine.Compute(p.PriceSheet(), quantity, t), nil
}

// PlaceOrder validates the configuration, prices it, assigns the first
// available vendor, stores the optional design file, and persists the order
// in status new with its initial timeline entry.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	p, err := s.product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	placement, err := checkConfiguration(p, &req)
	if err != nil {
		return nil, err
	}
	turnaround, err := resolveTurnaround(p, req.Turnaround)
	if err != nil {
		return nil, err
	}

	quantity := pricing.Clamp(req.Quantity, s.minQuantity, s.maxQuantity)
	price := s.engine.Compute(p.PriceSheet(), quantity, turnaround)

	v, err := s.vendors.FirstAvailable(ctx)
	if err != nil {
		if errors.Is(err, vendor.ErrNoneAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("find vendor: %w", err)
	}

	orderID := s.newID()

	var fileURL string
	if req.Design != nil && len(req.Design.Data) > 0 {
		fileURL, err = s.files.Upload(ctx, orderID, *req.Design)
		if err != nil {
			return nil, fmt.Errorf("upload design: %w", err)
		}
	}

	now := s.now()
	o := &Order{
		ID:         orderID,
		VendorID:   v.ID,
		Customer:   req.Customer,
		Notes:      req.Notes,
		FileURL:    fileURL,
		TotalPrice: price.Total,
		Status:     StatusNew,
		CreatedAt:  now,
		UpdatedAt:  now,
		Items: []Item{{
			ID:          s.newID(),
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    quantity,
			Size:        req.Size,
			Color:       req.Color,
			PrintType:   req.PrintType,
			Placement:   placement,
			Turnaround:  req.Turnaround,
			UnitPrice:   price.UnitPrice,
		}},
		Timeline: []TimelineEntry{{
			ID:     s.newID(),
			Status: StatusNew,
			At:     now,
		}},
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("policy", price.Policy)))
	if err := s.notifier.OrderCreated(ctx, o); err != nil {
		zctx.From(ctx).Warn("Order created notification failed",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return &PlaceOrderResult{
		Order:   o,
		Product: p,
		Pricing: price,
	}, nil
}

// Advance moves the vendor's order exactly one step along the fulfilment
// sequence and appends the matching timeline entry. It is not idempotent:
// a replayed call advances again.
func (s *Service) Advance(ctx context.Context, sess auth.Session, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Advance",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	o, err := s.owned(ctx, sess, orderID)
	if err != nil {
		return nil, err
	}

	next, ok := o.Status.Next()
	if !ok {
		return nil, &TerminalStateError{OrderID: o.ID, Status: o.Status}
	}

	now := s.now()
	if n := len(o.Timeline); n > 0 && now.Before(o.Timeline[n-1].At) {
		now = o.Timeline[n-1].At
	}
	entry := TimelineEntry{ID: s.newID(), Status: next, At: now}

	if err := s.orders.Transition(ctx, Transition{
		OrderID:  o.ID,
		VendorID: o.VendorID,
		From:     o.Status,
		Entry:    entry,
	}); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("transition order: %w", err)
	}

	from := o.Status
	o.Status = next
	o.UpdatedAt = now
	o.Timeline = append(o.Timeline, entry)

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", next.String())))
	zctx.From(ctx).Info("Order advanced",
		zap.String("order_id", o.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", next),
	)

	if next == StatusReady {
		if err := s.notifier.OrderReady(ctx, o); err != nil {
			zctx.From(ctx).Warn("Order ready notification failed",
				zap.String("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return o, nil
}

// Reconcile repairs an order whose stored status disagrees with its latest
// timeline entry, which can only happen if a status write and its timeline
// insert were split. It reports whether a repair was made.
func (s *Service) Reconcile(ctx context.Context, sess auth.Session, orderID string) (*Order, bool, error) {
	o, err := s.owned(ctx, sess, orderID)
	if err != nil {
		return nil, false, err
	}

	latest, ok := o.LatestStatus()
	if !ok || latest == o.Status {
		return o, false, nil
	}

	now := s.now()
	if err := s.orders.SetStatus(ctx, o.ID, o.Status, latest, now); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("repair order status: %w", err)
	}

	zctx.From(ctx).Warn("Order status repaired from timeline",
		zap.String("order_id", o.ID),
		zap.Stringer("stored", o.Status),
		zap.Stringer("timeline", latest),
	)
	o.Status = latest
	o.UpdatedAt = now
	return o, true, nil
}

// GetOrder returns one of the vendor's orders.
func (s *Service) GetOrder(ctx context.Context, sess auth.Session, orderID string) (*Order, error) {
	return s.owned(ctx, sess, orderID)
}

// ListForVendor returns the vendor's orders, newest first.
func (s *Service) ListForVendor(ctx context.Context, sess auth.Session) ([]Order, error) {
	if sess.VendorID == "" {
		return nil, auth.ErrNoSession
	}
	orders, err := s.orders.ListByVendor(ctx, sess.VendorID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) owned(ctx context.Context, sess auth.Session, orderID string) (*Order, error) {
	if sess.VendorID == "" {
		return nil, auth.ErrNoSession
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if o.VendorID != sess.VendorID {
		return nil, ErrNotOwner
	}
	return o, nil
}

func (s *Service) product(ctx context.Context, id string) (*product.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !p.Active {
		return nil, &ProductNotFoundError{ProductID: id}
	}
	return p, nil
}

// checkConfiguration verifies every choice against the product's offered
// sets and returns the effective placement.
func checkConfiguration(p *product.Product, req *PlaceOrderRequest) (string, error) {
	choices := []struct {
		field   string
		value   string
		offered []string
		has     func(string) bool
	}{
		{"size", req.Size, p.Sizes, p.HasSize},
		{"color", req.Color, p.Colors, p.HasColor},
		{"print_type", req.PrintType, p.SupportedPrintTypes, p.SupportsPrintType},
	}
	for _, c := range choices {
		switch {
		case c.value == "" && len(c.offered) > 0:
			return "", &ValidationError{Field: c.field, Reason: "is required"}
		case c.value != "" && !c.has(c.value):
			return "", &ValidationError{
				Field:  c.field,
				Reason: fmt.Sprintf("%q is not offered for %s", c.value, p.Name),
			}
		}
	}

	placement := req.Placement
	if placement == "" {
		placement = product.DefaultPlacement
	}
	for _, allowed := range product.Placements {
		if placement == allowed {
			return placement, nil
		}
	}
	return "", &ValidationError{
		Field:  "placement",
		Reason: fmt.Sprintf("must be one of %s", strings.Join(product.Placements, ", ")),
	}
}

func resolveTurnaround(p *product.Product, label string) (opt.Opt[pricing.Turnaround], error) {
	if label == "" {
		return opt.None[pricing.Turnaround](), nil
	}
	t, ok := p.Turnaround(label)
	if !ok {
		return opt.None[pricing.Turnaround](), &ValidationError{
			Field:  "turnaround",
			Reason: fmt.Sprintf("%q is not offered for %s", label, p.Name),
		}
	}
	return opt.New(t), nil
}
