package order

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/catalog"
	"github.com/xenking/pos-backoffice/internal/domain/customer"
	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
	"github.com/xenking/pos-backoffice/internal/events"
)

// memStore is an in-memory implementation of every collaborator. Do
// snapshots the state and restores it when fn fails, mirroring a rollback.
type memStore struct {
	products  map[string]catalog.Product
	customers map[string]customer.Customer
	orders    map[string]Order

	countErr    error
	createErr   error
	decErr      error
	recordErr   error
	getErr      error
	staffNames  map[string]string
	txCalls     int
	rolledBack  int
	createCalls int
}

func newMemStore(products ...catalog.Product) *memStore {
	s := &memStore{
		products:   make(map[string]catalog.Product),
		customers:  make(map[string]customer.Customer),
		orders:     make(map[string]Order),
		staffNames: map[string]string{"cashier-1": "Jane Cashier", "cook-1": "Omondi Cook"},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txCalls++
	products := make(map[string]catalog.Product, len(s.products))
	for k, v := range s.products {
		products[k] = v
	}
	customers := make(map[string]customer.Customer, len(s.customers))
	for k, v := range s.customers {
		customers[k] = v
	}
	orders := make(map[string]Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}

	if err := fn(ctx); err != nil {
		s.products, s.customers, s.orders = products, customers, orders
		s.rolledBack++
		return err
	}
	return nil
}

// catalog.Store

func (s *memStore) FindProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) DecrementStock(_ context.Context, id string, qty int) error {
	if s.decErr != nil {
		return s.decErr
	}
	p := s.products[id]
	p.Stock = max(p.Stock-qty, 0)
	s.products[id] = p
	return nil
}

func (s *memStore) RestoreStock(_ context.Context, id string, qty int) error {
	p := s.products[id]
	p.Stock += qty
	s.products[id] = p
	return nil
}

func (s *memStore) ListProducts(context.Context) ([]catalog.Product, error) { return nil, nil }

func (s *memStore) ListCategories(context.Context) ([]catalog.Category, error) { return nil, nil }

// customer.Store

func (s *memStore) FindCustomer(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) RecordOrder(_ context.Context, id string, amount decimal.Decimal, at time.Time) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	c := s.customers[id]
	c.OrderCount++
	c.TotalSpent = c.TotalSpent.Add(amount)
	c.LastOrderDate = &at
	s.customers[id] = c
	return nil
}

func (s *memStore) ListCustomers(context.Context) ([]customer.Customer, error) { return nil, nil }

// Repository

func (s *memStore) CountCreatedBetween(_ context.Context, from, to time.Time) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, o := range s.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Create(_ context.Context, o *Order) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *memStore) find(ref string) (*Order, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, o := range s.orders {
		if o.ID == ref || o.Number == ref {
			c := cloneOrder(o)
			c.CashierName = s.staffNames[c.CashierID]
			if cust, ok := s.customers[c.CustomerID]; ok {
				c.CustomerName = cust.Name
			}
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) Get(_ context.Context, ref string) (*Order, error) { return s.find(ref) }

func (s *memStore) GetForUpdate(_ context.Context, ref string) (*Order, error) { return s.find(ref) }

// Update rejects unknown staff references like the orders foreign keys do.
func (s *memStore) Update(_ context.Context, o *Order) error {
	for _, id := range []string{o.PreparedByID, o.ServedByID} {
		if _, ok := s.staffNames[id]; id != "" && !ok {
			return &StaffNotFoundError{StaffID: id}
		}
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *memStore) List(_ context.Context, f Filter) ([]Order, int, error) {
	var all []Order
	for _, o := range s.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.HasPrefix(o.Number, f.Search) {
			continue
		}
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number > all[j].Number })
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (s *memStore) ListCreatedBetween(_ context.Context, from, to time.Time) ([]Order, error) {
	var out []Order
	for _, o := range s.orders {
		if !o.CreatedAt.Before(from) && o.CreatedAt.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func cloneOrder(o Order) Order {
	o.Lines = append([]Line(nil), o.Lines...)
	return o
}

// settings.Store

type staticSettings struct {
	format money.Format
	tax    settings.TaxDefaults
	err    error
}

func (s staticSettings) CurrencyFormat(context.Context) (money.Format, error) { return s.format, s.err }

func (s staticSettings) TaxDefaults(context.Context) (settings.TaxDefaults, error) {
	return s.tax, s.err
}

// events.Publisher

type recordingPublisher struct {
	events []events.Event
	ctxErr error
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.events = append(p.events, e)
	p.ctxErr = ctx.Err()
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// blockingPublisher waits for the publish context to end, like a writer stuck
// on an unreachable broker.
type blockingPublisher struct {
	hadDeadline bool
	err         error
}

func (p *blockingPublisher) Publish(ctx context.Context, _ events.Event) error {
	_, p.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	p.err = ctx.Err()
	return p.err
}

func (p *blockingPublisher) Close() error { return nil }
