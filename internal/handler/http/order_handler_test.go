package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/storefront/internal/apperr"
	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func TestOrderHandler_PlaceCOD(t *testing.T) {
	// Arrange
	mockService := new(MockOrderService)
	userID := uuid.Must(uuid.NewV4())
	in := order.PlaceOrderInput{Address: "1 Main St", City: "Springfield", Phone: "555"}
	placed := &order.Order{
		ID:            uuid.Must(uuid.NewV4()),
		UserID:        userID,
		TotalAmount:   decimal.RequireFromString("45.00"),
		Status:        order.StatusPending,
		PaymentMethod: order.PaymentCOD,
		PaymentStatus: order.PaymentPending,
	}
	mockService.On("PlaceOrderCOD", mock.Anything, userID, in).Return(placed, nil).Once()

	req := newJSONRequest(t, http.MethodPost, "/orders/cod", in)
	req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))

	// Act
	rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

	// Assert
	require.Equal(t, http.StatusCreated, rr.Code)
	var got order.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, placed.ID, got.ID)
	assert.Equal(t, order.PaymentCOD, got.PaymentMethod)
	assert.True(t, placed.TotalAmount.Equal(got.TotalAmount))
	mockService.AssertExpectations(t)
}

func TestOrderHandler_PlaceCODErrors(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	in := order.PlaceOrderInput{Address: "1 Main St"}

	testCases := []struct {
		name        string
		serviceErr  error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "out of stock",
			serviceErr:  apperr.OutOfStock("order.PlaceOrderCOD", "Tee", 1),
			wantStatus:  http.StatusBadRequest,
			wantMessage: `product "Tee" has only 1 in stock`,
		},
		{
			name:        "empty cart",
			serviceErr:  apperr.InvalidState("order.PlaceOrderCOD", "cart is empty"),
			wantStatus:  http.StatusBadRequest,
			wantMessage: "cart is empty",
		},
		{
			name:        "unexpected failure",
			serviceErr:  apperr.Wrap(apperr.KindTransactionConflict, "order.PlaceOrderCOD", "serialization failure", assert.AnError),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Failed to place order",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			mockService.On("PlaceOrderCOD", mock.Anything, userID, in).Return(nil, tc.serviceErr).Once()

			req := newJSONRequest(t, http.MethodPost, "/orders/cod", in)
			req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
			rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantMessage, decodeError(t, rr))
		})
	}
}

func TestOrderHandler_PlaceCODRequiresAddress(t *testing.T) {
	mockService := new(MockOrderService)

	req := newJSONRequest(t, http.MethodPost, "/orders/cod", `{"city":"Springfield"}`)
	req.Header.Set("Authorization", bearer(t, uuid.Must(uuid.NewV4()), user.RoleUser))
	rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body handler.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "is required", body.Details["address"])
	mockService.AssertNotCalled(t, "PlaceOrderCOD")
}

func TestOrderHandler_PlaceGatewayPassesClientIP(t *testing.T) {
	mockService := new(MockOrderService)
	userID := uuid.Must(uuid.NewV4())
	in := order.PlaceOrderInput{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Phone: "555"}
	placement := &order.GatewayPlacement{
		Order:       &order.Order{ID: uuid.Must(uuid.NewV4()), PaymentMethod: order.PaymentGateway},
		CheckoutURL: "https://checkout.example/cs_test_1",
	}
	mockService.On("PlaceOrderGateway", mock.Anything, userID, in, "203.0.113.7").Return(placement, nil).Once()

	req := newJSONRequest(t, http.MethodPost, "/orders/gateway", in)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
	rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var got order.GatewayPlacement
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, placement.CheckoutURL, got.CheckoutURL)
	assert.Equal(t, placement.Order.ID, got.Order.ID)
	mockService.AssertExpectations(t)
}

func TestOrderHandler_VerifyPayment(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())

	t.Run("missing order id", func(t *testing.T) {
		mockService := new(MockOrderService)

		req := httptest.NewRequest(http.MethodGet, "/orders/verify", nil)
		req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "VerifyPayment")
	})

	t.Run("decided", func(t *testing.T) {
		mockService := new(MockOrderService)
		verifications := []payment.Verification{{GatewayOrderID: "cs_1", BankStatus: payment.BankStatusSuccess}}
		result := &order.VerifyResult{
			Order:         &order.Order{ID: uuid.Must(uuid.NewV4()), Payment: true, PaymentStatus: order.PaymentPaid},
			Verifications: verifications,
		}
		mockService.On("VerifyPayment", mock.Anything, "cs_1").Return(result, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/orders/verify?order_id=cs_1", nil)
		req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		require.Equal(t, http.StatusOK, rr.Code)
		var got order.VerifyResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.NotNil(t, got.Order)
		assert.True(t, got.Order.Payment)
		if diff := cmp.Diff(verifications, got.Verifications); diff != "" {
			t.Errorf("verifications mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("gateway down", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("VerifyPayment", mock.Anything, "cs_2").
			Return(nil, apperr.Wrap(apperr.KindUpstreamFailure, "order.VerifyPayment", "payment gateway unavailable", assert.AnError)).Once()

		req := httptest.NewRequest(http.MethodGet, "/orders/verify?order_id=cs_2", nil)
		req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Failed to verify payment", decodeError(t, rr))
	})
}

func TestOrderHandler_GetOrderOwnership(t *testing.T) {
	ownerID := uuid.Must(uuid.NewV4())
	o := &order.Order{ID: uuid.Must(uuid.NewV4()), UserID: ownerID}

	testCases := []struct {
		name       string
		callerID   uuid.UUID
		role       user.Role
		wantStatus int
	}{
		{name: "owner", callerID: ownerID, role: user.RoleUser, wantStatus: http.StatusOK},
		{name: "admin", callerID: uuid.Must(uuid.NewV4()), role: user.RoleSuperAdmin, wantStatus: http.StatusOK},
		{name: "stranger", callerID: uuid.Must(uuid.NewV4()), role: user.RoleUser, wantStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockOrderService)
			mockService.On("GetOrder", mock.Anything, o.ID).Return(o, nil).Once()

			req := httptest.NewRequest(http.MethodGet, "/orders/"+o.ID.String(), nil)
			req.Header.Set("Authorization", bearer(t, tc.callerID, tc.role))
			rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}

func TestOrderHandler_ListMyOrdersEmpty(t *testing.T) {
	mockService := new(MockOrderService)
	userID := uuid.Must(uuid.NewV4())
	mockService.On("ListUserOrders", mock.Anything, userID).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/orders/me", nil)
	req.Header.Set("Authorization", bearer(t, userID, user.RoleUser))
	rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestOrderHandler_AdminStatusUpdates(t *testing.T) {
	adminID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())

	t.Run("already cancelled", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("UpdateStatus", mock.Anything, orderID, order.StatusCancelled).
			Return(nil, apperr.InvalidState("order.UpdateStatus", "order is already cancelled")).Once()

		req := newJSONRequest(t, http.MethodPatch, "/orders/"+orderID.String()+"/status", handler.UpdateStatusRequest{Status: order.StatusCancelled})
		req.Header.Set("Authorization", bearer(t, adminID, user.RoleSuperAdmin))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "order is already cancelled", decodeError(t, rr))
	})

	t.Run("line status", func(t *testing.T) {
		mockService := new(MockOrderService)
		in := order.LineStatusInput{ProductID: uuid.Must(uuid.NewV4()), Size: "M", Status: order.StatusDelivered}
		updated := &order.Order{ID: orderID, Status: order.StatusDelivered}
		mockService.On("UpdateLineStatus", mock.Anything, orderID, in).Return(updated, nil).Once()

		req := newJSONRequest(t, http.MethodPatch, "/orders/"+orderID.String()+"/lines/status", in)
		req.Header.Set("Authorization", bearer(t, adminID, user.RoleSuperAdmin))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		require.Equal(t, http.StatusOK, rr.Code)
		var got order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Equal(t, order.StatusDelivered, got.Status)
		mockService.AssertExpectations(t)
	})

	t.Run("line missing", func(t *testing.T) {
		mockService := new(MockOrderService)
		in := order.LineStatusInput{ProductID: uuid.Must(uuid.NewV4()), Size: "XL", Status: order.StatusCancelled}
		mockService.On("UpdateLineStatus", mock.Anything, orderID, in).Return(nil, order.ErrItemNotFound).Once()

		req := newJSONRequest(t, http.MethodPatch, "/orders/"+orderID.String()+"/lines/status", in)
		req.Header.Set("Authorization", bearer(t, adminID, user.RoleSuperAdmin))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "order item not found", decodeError(t, rr))
	})

	t.Run("list all", func(t *testing.T) {
		mockService := new(MockOrderService)
		mockService.On("ListOrders", mock.Anything).Return([]order.Order{{ID: orderID}}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.Header.Set("Authorization", bearer(t, adminID, user.RoleSuperAdmin))
		rr := serve(handler.NewOrderHandler(mockService, newAuth()), req)

		require.Equal(t, http.StatusOK, rr.Code)
		var got []order.Order
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, orderID, got[0].ID)
	})
}
