package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/order"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// orderColumns are selected from orders o joined with the staff names.
var orderColumns = []string{
	"o.id::text", "o.order_number",
	"COALESCE(o.customer_id, '')", "o.customer_name", "o.customer_phone", "o.customer_email",
	"o.lines",
	"o.subtotal", "o.tax_rate", "o.is_taxable", "o.tax_amount", "o.discount_amount",
	"o.shipping_amount", "o.total_amount", "o.total_cost", "o.refunded_amount",
	"o.status", "o.payment_status",
	"o.payment_method", "o.payment_amount", "o.transaction_id", "o.charge_status", "o.paid_at",
	"o.order_type", "o.table_number", "o.delivery_address",
	"o.cashier_id", "COALESCE(cs.name, '')",
	"COALESCE(o.prepared_by, '')", "COALESCE(ps.name, '')",
	"COALESCE(o.served_by, '')", "COALESCE(ss.name, '')",
	"o.notes", "o.created_at", "o.updated_at",
}

var _ order.Repository = (*OrderStore)(nil)

// OrderStore implements order.Repository backed by PostgreSQL. Order lines
// are stored as a JSONB snapshot on the order row.
type OrderStore struct {
	pool *pgxpool.Pool
	qb   sq.StatementBuilderType
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{
		pool: pool,
		qb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *OrderStore) selectOrders() sq.SelectBuilder {
	return s.qb.Select(orderColumns...).
		From("orders o").
		LeftJoin("staff cs ON cs.id = o.cashier_id").
		LeftJoin("staff ps ON ps.id = o.prepared_by").
		LeftJoin("staff ss ON ss.id = o.served_by")
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o     order.Order
		lines []byte
	)
	err := row.Scan(
		&o.ID, &o.Number,
		&o.CustomerID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&lines,
		&o.Subtotal, &o.TaxRate, &o.IsTaxable, &o.TaxAmount, &o.DiscountAmount,
		&o.ShippingAmount, &o.TotalAmount, &o.TotalCost, &o.RefundedAmount,
		&o.Status, &o.PaymentStatus,
		&o.Payment.Method, &o.Payment.Amount, &o.Payment.TransactionID, &o.Payment.Status, &o.Payment.PaidAt,
		&o.Type, &o.TableNumber, &o.DeliveryAddress,
		&o.CashierID, &o.CashierName,
		&o.PreparedByID, &o.PreparedByName,
		&o.ServedByID, &o.ServedByName,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return order.Order{}, err
	}
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, errors.Wrapf(err, "decode lines of order %q", o.Number)
	}
	return o, nil
}

func (s *OrderStore) collect(ctx context.Context, b sq.SelectBuilder) ([]order.Order, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	rows, err := conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	return orders, nil
}

// Create persists a new order.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "encode order lines")
	}

	query, args, err := s.qb.Insert("orders").SetMap(map[string]any{
		"id":               o.ID,
		"order_number":     o.Number,
		"customer_id":      nullString(o.CustomerID),
		"customer_name":    o.CustomerName,
		"customer_phone":   o.CustomerPhone,
		"customer_email":   o.CustomerEmail,
		"lines":            lines,
		"subtotal":         o.Subtotal,
		"tax_rate":         o.TaxRate,
		"is_taxable":       o.IsTaxable,
		"tax_amount":       o.TaxAmount,
		"discount_amount":  o.DiscountAmount,
		"shipping_amount":  o.ShippingAmount,
		"total_amount":     o.TotalAmount,
		"total_cost":       o.TotalCost,
		"refunded_amount":  o.RefundedAmount,
		"status":           string(o.Status),
		"payment_status":   string(o.PaymentStatus),
		"payment_method":   string(o.Payment.Method),
		"payment_amount":   o.Payment.Amount,
		"transaction_id":   o.Payment.TransactionID,
		"charge_status":    string(o.Payment.Status),
		"paid_at":          o.Payment.PaidAt,
		"order_type":       string(o.Type),
		"table_number":     o.TableNumber,
		"delivery_address": o.DeliveryAddress,
		"cashier_id":       o.CashierID,
		"prepared_by":      nullString(o.PreparedByID),
		"served_by":        nullString(o.ServedByID),
		"notes":            o.Notes,
		"created_at":       o.CreatedAt,
		"updated_at":       o.UpdatedAt,
	}).ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert")
	}

	if _, err := conn(ctx, s.pool).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.Wrap(apperr.Conflict, err, "order number "+o.Number+" already exists")
		}
		if ref := missingReference(err, o); ref != nil {
			return ref
		}
		return errors.Wrapf(err, "create order %q", o.Number)
	}
	return nil
}

// missingReference maps a foreign key violation on an orders row to the
// domain error naming the unknown id, or returns nil.
func missingReference(err error, o *order.Order) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != foreignKeyViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case "orders_customer_id_fkey":
		return order.ErrCustomerNotFound
	case "orders_cashier_id_fkey":
		return &order.StaffNotFoundError{StaffID: o.CashierID}
	case "orders_prepared_by_fkey":
		return &order.StaffNotFoundError{StaffID: o.PreparedByID}
	case "orders_served_by_fkey":
		return &order.StaffNotFoundError{StaffID: o.ServedByID}
	}
	return nil
}

// refCondition matches an order by id when ref is a UUID, else by number.
func refCondition(ref string) sq.Eq {
	if _, err := uuid.Parse(ref); err == nil {
		return sq.Eq{"o.id": ref}
	}
	return sq.Eq{"o.order_number": ref}
}

// Get resolves an order by id or order number.
func (s *OrderStore) Get(ctx context.Context, ref string) (*order.Order, error) {
	return s.get(ctx, s.selectOrders().Where(refCondition(ref)), ref)
}

// GetForUpdate is Get with the order row locked until the transaction ends.
func (s *OrderStore) GetForUpdate(ctx context.Context, ref string) (*order.Order, error) {
	return s.get(ctx, s.selectOrders().Where(refCondition(ref)).Suffix("FOR UPDATE OF o"), ref)
}

func (s *OrderStore) get(ctx context.Context, b sq.SelectBuilder, ref string) (*order.Order, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	o, err := scanOrder(conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", ref)
	}
	return &o, nil
}

// Update writes the mutable lifecycle fields of o.
func (s *OrderStore) Update(ctx context.Context, o *order.Order) error {
	query, args, err := s.qb.Update("orders").SetMap(map[string]any{
		"status":          string(o.Status),
		"payment_status":  string(o.PaymentStatus),
		"charge_status":   string(o.Payment.Status),
		"paid_at":         o.Payment.PaidAt,
		"refunded_amount": o.RefundedAmount,
		"prepared_by":     nullString(o.PreparedByID),
		"served_by":       nullString(o.ServedByID),
		"notes":           o.Notes,
		"updated_at":      o.UpdatedAt,
	}).Where(sq.Eq{"id": o.ID}).ToSql()
	if err != nil {
		return errors.Wrap(err, "build update")
	}

	tag, err := conn(ctx, s.pool).Exec(ctx, query, args...)
	if err != nil {
		if ref := missingReference(err, o); ref != nil {
			return ref
		}
		return errors.Wrapf(err, "update order %q", o.Number)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// filterConditions translates f into WHERE conditions on orders o.
func filterConditions(f order.Filter) sq.And {
	conds := sq.And{}
	if f.Status != "" {
		conds = append(conds, sq.Eq{"o.status": string(f.Status)})
	}
	if f.PaymentStatus != "" {
		conds = append(conds, sq.Eq{"o.payment_status": string(f.PaymentStatus)})
	}
	if f.Type != "" {
		conds = append(conds, sq.Eq{"o.order_type": string(f.Type)})
	}
	if f.CustomerID != "" {
		conds = append(conds, sq.Eq{"o.customer_id": f.CustomerID})
	}
	if f.CashierID != "" {
		conds = append(conds, sq.Eq{"o.cashier_id": f.CashierID})
	}
	if !f.From.IsZero() {
		conds = append(conds, sq.GtOrEq{"o.created_at": f.From})
	}
	if !f.To.IsZero() {
		conds = append(conds, sq.Lt{"o.created_at": f.To})
	}
	if f.Search != "" {
		conds = append(conds, sq.Like{"o.order_number": likePrefix(f.Search)})
	}
	return conds
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(s string) string {
	return likeEscaper.Replace(s) + "%"
}

// List returns one page of orders matching f, newest first, and the total
// number of matches.
func (s *OrderStore) List(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	conds := filterConditions(f)

	countSQL, countArgs, err := s.qb.Select("count(*)").From("orders o").Where(conds).ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build count")
	}
	var total int
	if err := conn(ctx, s.pool).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	b := s.selectOrders().Where(conds).OrderBy("o.created_at DESC", "o.order_number DESC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}
	orders, err := s.collect(ctx, b)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// ListCreatedBetween returns every order created in [from, to), oldest first.
func (s *OrderStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]order.Order, error) {
	return s.collect(ctx, s.selectOrders().
		Where(sq.GtOrEq{"o.created_at": from}).
		Where(sq.Lt{"o.created_at": to}).
		OrderBy("o.created_at", "o.order_number"))
}

// CountCreatedBetween counts orders created in [from, to). It runs under a
// savepoint so a failure leaves the caller's transaction usable.
func (s *OrderStore) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	return s.count(ctx, `SELECT count(*) FROM orders WHERE created_at >= $1 AND created_at < $2`, from, to)
}

func (s *OrderStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := savepoint(ctx, s.pool, func(q querier) error {
		return q.QueryRow(ctx, query, args...).Scan(&n)
	}); err != nil {
		return 0, errors.Wrap(err, "count orders")
	}
	return n, nil
}
