package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classdesk-api/internal/dto"
	"github.com/noah-isme/classdesk-api/internal/handler"
	"github.com/noah-isme/classdesk-api/internal/middleware"
)

type mockDeliveryService struct {
	result dto.DeliveryRunResponse
	err    error
	calls  int
}

func (m *mockDeliveryService) ProcessPendingDeliveries(_ context.Context) (dto.DeliveryRunResponse, error) {
	m.calls++
	return m.result, m.err
}

func newDeliveryApp(svc *mockDeliveryService, secret string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v1/internal/deliveries", middleware.CronSecret(secret))
	handler.NewDeliveryHandler(svc, zerolog.New(io.Discard)).Register(group)
	return app
}

func TestDeliveryHandlerRequiresCronSecret(t *testing.T) {
	svc := &mockDeliveryService{}
	app := newDeliveryApp(svc, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/deliveries/run", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, svc.calls)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/internal/deliveries/run", nil)
	req.Header.Set("X-Cron-Secret", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestDeliveryHandlerRunsBatch(t *testing.T) {
	svc := &mockDeliveryService{result: dto.DeliveryRunResponse{Processed: 2, Delivered: 1, Failed: 1}}
	app := newDeliveryApp(svc, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/deliveries/run", nil)
	req.Header.Set("X-Cron-Secret", "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.calls)

	var payload struct {
		Success bool                    `json:"success"`
		Data    dto.DeliveryRunResponse `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, 2, payload.Data.Processed)
}

func TestDeliveryHandlerBatchError(t *testing.T) {
	svc := &mockDeliveryService{err: errors.New("lock unavailable")}
	app := newDeliveryApp(svc, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/deliveries/run", nil)
	req.Header.Set("X-Cron-Secret", "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
