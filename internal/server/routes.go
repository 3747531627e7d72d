package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berfenger/dnake2mqtt/internal/core/domain"
	"github.com/berfenger/dnake2mqtt/internal/device"
	"github.com/berfenger/dnake2mqtt/internal/mqtt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.ListDevicesHandler)
	e.POST("/devices/:id/:command", s.DeviceCommandHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ListDevicesRequest{}, s.requestTimeout).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	}
	response, ok := res.(domain.ListDevicesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(statusOf(response.GetResponseError()), errorBody{Error: response.GetResponseError().Error()})
	}
	devices := response.Devices
	if devices == nil {
		devices = []domain.DeviceSnapshot{}
	}
	return c.JSON(http.StatusOK, devices)
}

// DeviceCommandHandler runs a command with the request body as payload, the
// same text an MQTT command topic would carry.
func (s *Server) DeviceCommandHandler(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 4096))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}
	command := c.Param("command")
	if command == "" {
		command = mqtt.COMMAND_SET
	}
	req := domain.DeviceCommandRequest{
		UniqueId: c.Param("id"),
		Command:  command,
		Payload:  string(body),
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, req, s.requestTimeout).Result()
	if err != nil {
		s.logger.Warn("device command timed out", zap.String("device", req.UniqueId), zap.Error(err))
		return c.JSON(http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	}
	response, ok := res.(domain.DeviceCommandResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(statusOf(response.GetResponseError()), errorBody{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, response.Device)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, device.ErrInvalidCommand):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
