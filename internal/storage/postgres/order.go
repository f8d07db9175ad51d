package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/ruxstar-pod/internal/domain/order"
)

const orderColumns = `id, vendor_id, customer_name, customer_phone, customer_email,
	notes, file_url, total_price, status, created_at, updated_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and timeline entries live in child tables.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order with its items and timeline in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(`INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.VendorID, o.Customer.Name, o.Customer.Phone, o.Customer.Email,
		o.Notes, o.FileURL, o.TotalPrice, o.Status.String(), o.CreatedAt, o.UpdatedAt,
	)
	for _, it := range o.Items {
		b.Queue(`INSERT INTO order_items (id, order_id, product_id, product_name,
				quantity, size, color, print_type, placement, turnaround, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.Size,
			it.Color, it.PrintType, it.Placement, it.Turnaround, it.UnitPrice,
		)
	}
	for _, e := range o.Timeline {
		b.Queue(`INSERT INTO order_timeline (id, order_id, status, at) VALUES ($1, $2, $3, $4)`,
			e.ID, o.ID, e.Status.String(), e.At)
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order with items and timeline, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attach(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListByVendor returns the vendor's orders newest first.
func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+`
		FROM orders
		WHERE vendor_id = $1
		ORDER BY created_at DESC, id`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of vendor %q: %w", vendorID, err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders of vendor %q: %w", vendorID, err)
	}
	if err := r.attach(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Transition applies the status change only if the stored status still
// equals t.From, then appends the timeline entry, atomically.
func (r *OrderRepository) Transition(ctx context.Context, t order.Transition) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE orders
			SET status = $1, updated_at = $2
			WHERE id = $3 AND vendor_id = $4 AND status = $5`,
			t.Entry.Status.String(), t.Entry.At, t.OrderID, t.VendorID, t.From.String(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return order.ErrStatusConflict
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_timeline (id, order_id, status, at) VALUES ($1, $2, $3, $4)`,
			t.Entry.ID, t.OrderID, t.Entry.Status.String(), t.Entry.At,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, order.ErrStatusConflict) {
			return err
		}
		return fmt.Errorf("transitioning order %q to %s: %w", t.OrderID, t.Entry.Status, err)
	}
	return nil
}

// SetStatus replaces the stored status if it still equals from, without
// touching the timeline.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID string, from, to order.Status, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to.String(), at, orderID, from.String())
	if err != nil {
		return fmt.Errorf("setting status of order %q: %w", orderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking order %q: %w", orderID, err)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusConflict
}

// attach loads items and timeline entries for orders concurrently.
func (r *OrderRepository) attach(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	var (
		items    map[string][]order.Item
		timeline map[string][]order.TimelineEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.items(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		timeline, err = r.timeline(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for id, i := range index {
		orders[i].Items = items[id]
		orders[i].Timeline = timeline[id]
	}
	return nil
}

func (r *OrderRepository) items(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id, id, product_id, product_name,
			quantity, size, color, print_type, placement, turnaround, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("loading order items: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]order.Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      order.Item
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.Size, &it.Color, &it.PrintType, &it.Placement,
			&it.Turnaround, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading order items: %w", err)
	}
	return out, nil
}

func (r *OrderRepository) timeline(ctx context.Context, orderIDs []string) (map[string][]order.TimelineEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id, id, status, at
		FROM order_timeline
		WHERE order_id = ANY($1)
		ORDER BY order_id, at, seq`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("loading order timeline: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]order.TimelineEntry, len(orderIDs))
	for rows.Next() {
		var (
			orderID, status string
			e               order.TimelineEntry
		)
		if err := rows.Scan(&orderID, &e.ID, &status, &e.At); err != nil {
			return nil, fmt.Errorf("scanning timeline entry: %w", err)
		}
		if e.Status, err = order.ParseStatus(status); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading order timeline: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.VendorID, &o.Customer.Name, &o.Customer.Phone,
		&o.Customer.Email, &o.Notes, &o.FileURL, &o.TotalPrice, &status,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, err
	}
	var err error
	if o.Status, err = order.ParseStatus(status); err != nil {
		return order.Order{}, err
	}
	return o, nil
}
