package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	adactor "sajh1mqtt/internal/adapter/actor"
	"sajh1mqtt/internal/core/domain"
	"sajh1mqtt/pkg/saj"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.POST("/register/read", s.ReadRegisterHandler)
	api.POST("/register/write", s.WriteRegisterHandler)
	api.POST("/appmode", s.SetAppModeHandler)
	api.POST("/refresh/:block", s.RefreshBlockHandler)
	api.GET("/block/:block", s.BlockSnapshotHandler)

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

type readRegisterParams struct {
	Register string `json:"register"`
	Count    string `json:"count"`
	Format   string `json:"format"`
}

type readRegisterResult struct {
	Register string `json:"register"`
	Count    uint16 `json:"count"`
	Data     string `json:"data"`
	Value    string `json:"value,omitempty"`
}

func (s *Server) ReadRegisterHandler(c echo.Context) error {
	var params readRegisterParams
	if err := c.Bind(&params); err != nil {
		return badRequest(c, err)
	}
	register, err := parseRegister(params.Register)
	if err != nil {
		return badRequest(c, err)
	}
	count := uint16(1)
	if params.Count != "" {
		v, err := strconv.ParseUint(params.Count, 0, 16)
		if err != nil || v == 0 {
			return badRequest(c, fmt.Errorf("count %q is not a valid register count", params.Count))
		}
		count = uint16(v)
	}
	// reject a bad format before touching the device
	if params.Format != "" {
		if _, _, err := saj.ParseWireType(params.Format); err != nil {
			return badRequest(c, err)
		}
	}

	timeout := time.Duration(len(saj.SplitRead(register, count)))*adactor.BridgeRequestTimeout + 2*time.Second
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ReadRegistersRequest{
		Start: register,
		Count: count,
	}, timeout).Result()
	if err != nil {
		return deviceError(c, err)
	}
	response, ok := res.(domain.ReadRegistersResponse)
	if !ok {
		return deviceError(c, errors.New("unexpected read response"))
	}
	if response.HasResponseError() {
		return deviceError(c, response.GetResponseError())
	}
	result := readRegisterResult{
		Register: hexRegister(register),
		Count:    count,
		Data:     saj.HexBytes(response.Data),
	}
	if params.Format != "" {
		value, err := renderFormatted(response.Data, params.Format)
		if err != nil {
			return badRequest(c, err)
		}
		result.Value = value
	}
	return c.JSON(http.StatusOK, result)
}

type writeRegisterParams struct {
	Register string `json:"register"`
	Value    string `json:"value"`
}

type writeRegisterResult struct {
	Register string `json:"register"`
	Value    uint16 `json:"value"`
}

func (s *Server) WriteRegisterHandler(c echo.Context) error {
	var params writeRegisterParams
	if err := c.Bind(&params); err != nil {
		return badRequest(c, err)
	}
	register, err := parseRegister(params.Register)
	if err != nil {
		return badRequest(c, err)
	}
	value, err := strconv.ParseUint(params.Value, 0, 16)
	if err != nil {
		return badRequest(c, fmt.Errorf("value %q is not a valid register value", params.Value))
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.WriteRegisterRequest{
		Register: register,
		Value:    uint16(value),
	}, adactor.BridgeRequestTimeout+5*time.Second).Result()
	if err != nil {
		return deviceError(c, err)
	}
	response, ok := res.(domain.WriteRegisterResponse)
	if !ok {
		return deviceError(c, errors.New("unexpected write response"))
	}
	if response.HasResponseError() {
		return deviceError(c, response.GetResponseError())
	}
	return c.JSON(http.StatusOK, writeRegisterResult{
		Register: hexRegister(response.Register),
		Value:    response.Value,
	})
}

type setAppModeParams struct {
	Mode string `json:"mode"`
}

type setAppModeResult struct {
	Mode string `json:"mode"`
}

func (s *Server) SetAppModeHandler(c echo.Context) error {
	var params setAppModeParams
	if err := c.Bind(&params); err != nil {
		return badRequest(c, err)
	}
	mode, err := saj.AppModeFromString(params.Mode)
	if err != nil {
		return badRequest(c, err)
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetAppModeRequest{
		Mode: mode,
	}, adactor.BridgeRequestTimeout+5*time.Second).Result()
	if err != nil {
		return deviceError(c, err)
	}
	response, ok := res.(domain.SetAppModeResponse)
	if !ok {
		return deviceError(c, errors.New("unexpected app mode response"))
	}
	if response.HasResponseError() {
		return deviceError(c, response.GetResponseError())
	}
	return c.JSON(http.StatusOK, setAppModeResult{
		Mode: saj.AppModeToString(response.Mode),
	})
}

type refreshBlockResult struct {
	Block string `json:"block"`
}

func (s *Server) RefreshBlockHandler(c echo.Context) error {
	block := c.Param("block")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.RefreshBlockRequest{
		Block: block,
	}, 5*time.Second).Result()
	if err != nil {
		return deviceError(c, err)
	}
	response, ok := res.(domain.RefreshBlockResponse)
	if !ok {
		return deviceError(c, errors.New("unexpected refresh response"))
	}
	if response.HasResponseError() {
		return deviceError(c, response.GetResponseError())
	}
	return c.JSON(http.StatusOK, refreshBlockResult{
		Block: response.Block,
	})
}

type blockSnapshotResult struct {
	Block      string `json:"block"`
	Ready      bool   `json:"ready"`
	LastUpdate string `json:"last_update,omitempty"`
	Data       string `json:"data,omitempty"`
}

func (s *Server) BlockSnapshotHandler(c echo.Context) error {
	block := c.Param("block")
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.BlockSnapshotRequest{
		Block: block,
	}, 5*time.Second).Result()
	if err != nil {
		return deviceError(c, err)
	}
	response, ok := res.(domain.BlockSnapshotResponse)
	if !ok {
		return deviceError(c, errors.New("unexpected snapshot response"))
	}
	if response.HasResponseError() {
		return deviceError(c, response.GetResponseError())
	}
	if !response.Ready {
		return deviceError(c, domain.ErrNotReady)
	}
	return c.JSON(http.StatusOK, blockSnapshotResult{
		Block:      response.Block,
		Ready:      response.Ready,
		LastUpdate: response.LastUpdate.Format(time.RFC3339),
		Data:       saj.HexBytes(response.Data),
	})
}

type errorResult struct {
	Error string `json:"error"`
}

func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResult{Error: err.Error()})
}

func deviceError(c echo.Context, err error) error {
	return c.JSON(errorStatus(err), errorResult{Error: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRequestTimeout), errors.Is(err, actor.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrTransportDown), errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUnknownBlock):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func parseRegister(s string) (uint16, error) {
	if s == "" {
		return 0, errors.New("register is required")
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("register %q is not a valid register address", s)
	}
	return uint16(v), nil
}

func hexRegister(register uint16) string {
	return fmt.Sprintf("0x%04x", register)
}

// renderFormatted repeats the wire format across the payload, so a multi
// register read renders as one value per span.
func renderFormatted(data []byte, format string) (string, error) {
	dataType, textLen, err := saj.ParseWireType(format)
	if err != nil {
		return "", err
	}
	size := saj.WireSize(dataType, textLen)
	if size <= 0 || len(data) < size {
		return "", fmt.Errorf("payload of %d bytes is too short for format %s", len(data), format)
	}
	var parts []string
	for off := 0; off+size <= len(data); off += size {
		value, err := saj.DecodeField(data, saj.FieldDescriptor{Offset: off, Type: dataType, TextLen: textLen})
		if err != nil {
			return "", err
		}
		parts = append(parts, value.Render())
	}
	return strings.Join(parts, " "), nil
}
