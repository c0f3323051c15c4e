package apperr

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

type stockError struct{}

func (stockError) Error() string { return "only 2 left" }
func (stockError) Kind() Kind    { return InsufficientStock }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: Internal},
		{name: "classified", err: New(NotFound, "order not found"), want: NotFound},
		{name: "wrapped classified", err: errors.Wrap(New(Validation, "bad"), "checkout"), want: Validation},
		{name: "typed", err: errors.Wrap(stockError{}, "price lines"), want: InsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "order not found", Message(errors.Wrap(New(NotFound, "order not found"), "get")))
	assert.Equal(t, "only 2 left", Message(stockError{}))
	assert.Equal(t, "internal server error", Message(errors.New("pq: connection reset")))
	assert.Equal(t, "internal server error", Message(Wrap(Internal, errors.New("disk full"), "disk full")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation.StatusCode())
	assert.Equal(t, http.StatusNotFound, NotFound.StatusCode())
	assert.Equal(t, http.StatusConflict, InsufficientStock.StatusCode())
	assert.Equal(t, http.StatusPaymentRequired, PaymentInsufficient.StatusCode())
	assert.Equal(t, http.StatusUnprocessableEntity, RefundExceedsTotal.StatusCode())
	assert.Equal(t, http.StatusInternalServerError, Internal.StatusCode())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := Wrap(NotFound, cause, "customer not found")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "customer not found: no rows", err.Error())
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(nil, NotFound))
}
