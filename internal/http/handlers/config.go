package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
)

type configResponse struct {
	Configured  bool   `json:"configured"`
	ClientID    string `json:"clientId"`
	TenantID    string `json:"tenantId"`
	ResourceURL string `json:"resourceUrl"`
}

func (h *Handlers) HandleConfigGet(c *echo.Context) error {
	cfg, found, err := h.Configs.Load(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, configResponse{
		Configured:  found,
		ClientID:    cfg.ClientID,
		TenantID:    cfg.TenantID,
		ResourceURL: cfg.ResourceURL,
	})
}

// HandleConfigPut validates and persists the Dynamics client configuration.
// A successful save invalidates any active CRM session because the scopes and
// redirect derived from the old configuration are stale.
func (h *Handlers) HandleConfigPut(c *echo.Context) error {
	var candidate configstore.ClientConfiguration
	if err := c.Bind(&candidate); err != nil {
		return JSONError(c, http.StatusBadRequest, ErrorBody{Code: CodeInvalidConfiguration, Message: "malformed configuration"})
	}
	candidate = candidate.Normalized()

	if err := h.Configs.Save(c.Request().Context(), candidate); err != nil {
		return h.WriteError(c, err)
	}
	if err := h.Auth.Configure(candidate); err != nil {
		return h.WriteError(c, err)
	}

	h.logger().Info("dynamics configuration saved", "tenant_id", candidate.TenantID)
	return c.JSON(http.StatusOK, configResponse{
		Configured:  true,
		ClientID:    candidate.ClientID,
		TenantID:    candidate.TenantID,
		ResourceURL: candidate.ResourceURL,
	})
}

func (h *Handlers) HandleConfigDelete(c *echo.Context) error {
	if err := h.Configs.Clear(c.Request().Context()); err != nil {
		return err
	}
	h.Auth.ClearConfiguration()
	h.logger().Info("dynamics configuration cleared")
	return c.NoContent(http.StatusNoContent)
}
