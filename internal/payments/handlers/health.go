package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fxpay/internal/fx"
)

type BreakerStater interface {
	BreakerState() fx.State
}

// HealthHandler reports liveness along with the FX circuit state. An open circuit does not
// make the service unhealthy since payments are still recorded.
type HealthHandler struct {
	rates BreakerStater
}

func NewHealthHandler(rates BreakerStater) *HealthHandler {
	return &HealthHandler{rates: rates}
}

func (h *HealthHandler) Handle(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "UP",
		"fxCircuit": h.rates.BreakerState().String(),
	})
}
