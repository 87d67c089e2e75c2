package api

import (
	"context"
	"net/http"
	"time"

	"staylink/internal/models"
	"staylink/internal/validate"
)

// CreateReservation validates the stay locally before anything is sent.
func (c *Client) CreateReservation(ctx context.Context, req models.ReservationRequest) (*models.Reservation, error) {
	if _, _, err := validate.DateRange(req.CheckIn, req.CheckOut, time.Now()); err != nil {
		return nil, err
	}
	if err := validate.Guests(req.Guests, 0); err != nil {
		return nil, err
	}
	phone, err := validate.Phone(req.Phone)
	if err != nil {
		return nil, err
	}
	req.Phone = phone

	var out models.Reservation
	if err := c.Do(ctx, http.MethodPost, "/api/reservations", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListReservations(ctx context.Context, page, size int) (*models.Page[models.Reservation], error) {
	var out models.Page[models.Reservation]
	if err := c.Do(ctx, http.MethodGet, "/api/reservations", pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	var out models.Reservation
	if err := c.Do(ctx, http.MethodGet, "/api/reservations/"+pathID(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, "/api/reservations/"+pathID(id), nil, nil, nil)
}

// SavePayment records the order before the payment provider is opened.
func (c *Client) SavePayment(ctx context.Context, req models.PaymentSaveRequest) error {
	if req.OrderID == "" || req.Amount <= 0 {
		return &validate.FieldError{Field: "amount", Message: "결제 정보가 올바르지 않습니다."}
	}
	return c.Do(ctx, http.MethodPost, "/api/payments/save", nil, req, nil)
}

// ConfirmPayment hands the provider's payment key back to the server.
func (c *Client) ConfirmPayment(ctx context.Context, req models.PaymentConfirmRequest) (*models.Payment, error) {
	if req.PaymentKey == "" || req.OrderID == "" {
		return nil, &validate.FieldError{Field: "paymentKey", Message: "결제 정보가 올바르지 않습니다."}
	}
	var out models.Payment
	if err := c.Do(ctx, http.MethodPost, "/api/payments/confirm", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
