package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-cart/pkg/errors"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.APIError {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	return env.Error
}

func TestWriteSuccessWrapsData(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"url": "https://square.link/u/abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"url":"https://square.link/u/abc"}}`, w.Body.String())
}

func TestWriteErrorKeepsCallerMessageAndDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeDiscountRejected, "discount code expired").
		WithDetails(map[string]any{"reason": "expired", "code": "OLD"})
	WriteError(context.Background(), logger.Nop(), w, err)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(pkgerrors.CodeDiscountRejected), body.Code)
	assert.Equal(t, "discount code expired", body.Message)
	details, ok := body.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "expired", details["reason"])
}

func TestWriteErrorHidesDetailsWhereNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeNotFound, "product p-9 not found").
		WithDetails(map[string]any{"table": "products"})
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "product p-9 not found", body.Message)
	assert.Nil(t, body.Details)
}

func TestWriteErrorUsesPublicMessageForServerFaults(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeCheckout, "square returned 503 for location LOC1")
	WriteError(context.Background(), nil, w, err)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "checkout could not be started", decodeError(t, w).Message)
}

func TestWriteErrorDefaultsToInternal(t *testing.T) {
	for _, err := range []error{errors.New("boom"), nil} {
		w := httptest.NewRecorder()
		WriteError(context.Background(), nil, w, err)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, string(pkgerrors.CodeInternal), body.Code)
		assert.Equal(t, "internal server error", body.Message)
		assert.Nil(t, body.Details)
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-Id", "req-42")
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"))

	body := decodeError(t, w)
	assert.Equal(t, "req-42", body.RequestID)
	assert.Equal(t, string(pkgerrors.CodeEmptyCart), body.Code)
}
