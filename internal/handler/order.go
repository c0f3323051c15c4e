package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-backoffice/internal/domain/apperr"
	"github.com/xenking/pos-backoffice/internal/domain/order"
	"github.com/xenking/pos-backoffice/internal/domain/period"
	"github.com/xenking/pos-backoffice/internal/domain/staff"
)

type itemRequest struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Discount  decimal.Decimal `json:"discount"`
}

type paymentRequest struct {
	Method        string              `json:"method"`
	Amount        decimal.NullDecimal `json:"amount"`
	TransactionID string              `json:"transactionId" validate:"max=128"`
}

// createOrderRequest accepts the payment either as a nested object or as
// flat fields. The nested object wins when both are sent.
type createOrderRequest struct {
	Items   []itemRequest   `json:"items" validate:"max=500,dive"`
	Payment *paymentRequest `json:"payment"`

	PaymentMethod string              `json:"paymentMethod"`
	AmountPaid    decimal.NullDecimal `json:"amountPaid"`
	TransactionID string              `json:"transactionId" validate:"max=128"`

	CustomerID      string              `json:"customerId" validate:"max=64"`
	OrderType       string              `json:"orderType"`
	TableNumber     string              `json:"tableNumber" validate:"max=32"`
	DeliveryAddress string              `json:"deliveryAddress" validate:"max=500"`
	TaxRate         decimal.NullDecimal `json:"taxRate"`
	IsTaxable       *bool               `json:"isTaxable"`
	TaxAmount       decimal.NullDecimal `json:"taxAmount"`
	DiscountAmount  decimal.Decimal     `json:"discountAmount"`
	ShippingAmount  decimal.Decimal     `json:"shippingAmount"`
	Notes           string              `json:"notes" validate:"max=1000"`
}

func (req *createOrderRequest) paymentIntent() order.PaymentIntent {
	if req.Payment != nil {
		return order.PaymentIntent{
			Method:        order.PaymentMethod(req.Payment.Method),
			Amount:        req.Payment.Amount,
			TransactionID: req.Payment.TransactionID,
		}
	}
	return order.PaymentIntent{
		Method:        order.PaymentMethod(req.PaymentMethod),
		Amount:        req.AmountPaid,
		TransactionID: req.TransactionID,
	}
}

func (req *createOrderRequest) checkout(cashierID string) order.CheckoutRequest {
	items := make([]order.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Discount:  it.Discount,
		}
	}
	return order.CheckoutRequest{
		Items:           items,
		Payment:         req.paymentIntent(),
		CustomerID:      req.CustomerID,
		CashierID:       cashierID,
		Type:            order.Type(req.OrderType),
		TableNumber:     req.TableNumber,
		DeliveryAddress: req.DeliveryAddress,
		TaxRate:         req.TaxRate,
		IsTaxable:       req.IsTaxable,
		TaxAmount:       req.TaxAmount,
		DiscountAmount:  req.DiscountAmount,
		ShippingAmount:  req.ShippingAmount,
		Notes:           req.Notes,
	}
}

type statusRequest struct {
	Status     string `json:"status" validate:"required"`
	PreparedBy string `json:"preparedBy" validate:"max=64"`
	ServedBy   string `json:"servedBy" validate:"max=64"`
}

type refundRequest struct {
	Amount decimal.NullDecimal `json:"amount"`
	Reason string              `json:"reason" validate:"max=500"`
}

type paymentResponse struct {
	Method        order.PaymentMethod `json:"method"`
	Amount        decimal.Decimal     `json:"amount"`
	TransactionID string              `json:"transactionId,omitempty"`
	Status        order.ChargeStatus  `json:"status"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
}

type staffRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type customerRef struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Customer        *customerRef        `json:"customer,omitempty"`
	Items           []order.Line        `json:"items"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	TaxRate         decimal.Decimal     `json:"taxRate"`
	IsTaxable       bool                `json:"isTaxable"`
	TaxAmount       decimal.Decimal     `json:"taxAmount"`
	DiscountAmount  decimal.Decimal     `json:"discountAmount"`
	ShippingAmount  decimal.Decimal     `json:"shippingAmount"`
	TotalAmount     decimal.Decimal     `json:"totalAmount"`
	TotalCost       decimal.Decimal     `json:"totalCost"`
	Profit          decimal.Decimal     `json:"profit"`
	RefundedAmount  decimal.Decimal     `json:"refundedAmount"`
	Change          decimal.Decimal     `json:"change"`
	Status          order.Status        `json:"status"`
	PaymentStatus   order.PaymentStatus `json:"paymentStatus"`
	Payment         paymentResponse     `json:"payment"`
	OrderType       order.Type          `json:"orderType"`
	TableNumber     string              `json:"tableNumber,omitempty"`
	DeliveryAddress string              `json:"deliveryAddress,omitempty"`
	Cashier         staffRef            `json:"cashier"`
	PreparedBy      *staffRef           `json:"preparedBy,omitempty"`
	ServedBy        *staffRef           `json:"servedBy,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func optionalStaff(id, name string) *staffRef {
	if id == "" {
		return nil
	}
	return &staffRef{ID: id, Name: name}
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           o.Lines,
		Subtotal:        o.Subtotal,
		TaxRate:         o.TaxRate,
		IsTaxable:       o.IsTaxable,
		TaxAmount:       o.TaxAmount,
		DiscountAmount:  o.DiscountAmount,
		ShippingAmount:  o.ShippingAmount,
		TotalAmount:     o.TotalAmount,
		TotalCost:       o.TotalCost,
		Profit:          o.Profit(),
		RefundedAmount:  o.RefundedAmount,
		Change:          o.Payment.Amount.Sub(o.TotalAmount),
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		OrderType:       o.Type,
		TableNumber:     o.TableNumber,
		DeliveryAddress: o.DeliveryAddress,
		Cashier:         staffRef{ID: o.CashierID, Name: o.CashierName},
		PreparedBy:      optionalStaff(o.PreparedByID, o.PreparedByName),
		ServedBy:        optionalStaff(o.ServedByID, o.ServedByName),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Payment: paymentResponse{
			Method:        o.Payment.Method,
			Amount:        o.Payment.Amount,
			TransactionID: o.Payment.TransactionID,
			Status:        o.Payment.Status,
			PaidAt:        o.Payment.PaidAt,
		},
	}
	if o.CustomerID != "" || o.CustomerName != "" {
		resp.Customer = &customerRef{
			ID:    o.CustomerID,
			Name:  o.CustomerName,
			Phone: o.CustomerPhone,
			Email: o.CustomerEmail,
		}
	}
	if resp.Items == nil {
		resp.Items = []order.Line{}
	}
	return resp
}

type pageResponse struct {
	Orders     []orderResponse `json:"orders"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// CreateOrder handles POST /api/orders. The authenticated staff member is
// the cashier.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	member, ok := staff.FromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createOrderRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req.checkout(member.ID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toOrderResponse(o), "Order created successfully")
}

// GetOrder handles GET /api/orders/{id}. The id may be an order number.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(o), "")
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := h.dateParam(q.Get("from"), "from", false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := h.dateParam(q.Get("to"), "to", true)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.ListOrders(r.Context(), order.Filter{
		Status:        order.Status(q.Get("status")),
		PaymentStatus: order.PaymentStatus(q.Get("paymentStatus")),
		Type:          order.Type(q.Get("orderType")),
		CustomerID:    q.Get("customerId"),
		CashierID:     q.Get("cashierId"),
		From:          from,
		To:            to,
		Search:        q.Get("search"),
	}, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := pageResponse{
		Orders: make([]orderResponse, len(res.Orders)),
		Total:  res.Total,
		Page:   res.Page,
		Limit:  res.Limit,
	}
	for i := range res.Orders {
		out.Orders[i] = toOrderResponse(&res.Orders[i])
	}
	if res.Limit > 0 {
		out.TotalPages = (res.Total + res.Limit - 1) / res.Limit
	}
	writeData(w, http.StatusOK, out, "")
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), order.StatusUpdate{
		Status:     order.Status(req.Status),
		PreparedBy: req.PreparedBy,
		ServedBy:   req.ServedBy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(o), "Order status updated")
}

// ProcessRefund handles POST /api/orders/{id}/refund.
func (h *Handler) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.ProcessRefund(r.Context(), chi.URLParam(r, "id"), order.RefundRequest{
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toOrderResponse(o), "Refund processed")
}

// GetOrderStats handles GET /api/orders/stats?period=.
func (h *Handler) GetOrderStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.orders.GetOrderStats(r.Context(), period.Name(r.URL.Query().Get("period")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, st, "")
}

// GetTodaySummary handles GET /api/orders/today.
func (h *Handler) GetTodaySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.orders.GetTodaySummary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sum, "")
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.Validation, "%s must be a non-negative integer", name)
	}
	return n, nil
}

// dateParam parses RFC 3339 timestamps or YYYY-MM-DD dates in the handler's
// location. An inclusive date bound covers the whole day.
func (h *Handler) dateParam(s, name string, inclusive bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, h.loc)
	if err != nil {
		return time.Time{}, apperr.Newf(apperr.Validation, "%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
	}
	if inclusive {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}
