package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
)

type statusResponse struct {
	IsConfigured  bool            `json:"isConfigured"`
	IsConnected   bool            `json:"isConnected"`
	HasValidToken bool            `json:"hasValidToken"`
	State         msauth.State    `json:"state"`
	CurrentUser   *msauth.Account `json:"currentUser,omitempty"`
}

func (h *Handlers) HandleDynamicsStatus(c *echo.Context) error {
	st := h.Auth.Status()
	connected := st.State == msauth.StateConnected
	return c.JSON(http.StatusOK, statusResponse{
		IsConfigured:  st.State != msauth.StateUnconfigured,
		IsConnected:   connected,
		HasValidToken: connected,
		State:         st.State,
		CurrentUser:   st.Account,
	})
}

// HandleDynamicsConnect establishes a Dynamics session. A silent restore
// answers immediately; otherwise the flow completes out of band through the
// redirect callback and outlives this request, so the client polls status or
// follows the returned URL in a separate window.
func (h *Handlers) HandleDynamicsConnect(c *echo.Context) error {
	handle, err := h.Auth.StartConnect(c.Request().Context())
	if err != nil {
		return h.WriteError(c, err)
	}

	go func() {
		if err := <-handle.Done; err != nil {
			h.logger().Warn("interactive sign-in did not complete", "error", err)
		}
	}()

	if handle.AuthURL == "" {
		return c.JSON(http.StatusOK, map[string]bool{"connected": true})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"authUrl": handle.AuthURL})
}

// HandleDynamicsCallback receives the OAuth redirect and routes it to the
// waiting sign-in flow. The response is a minimal page for the popup window.
func (h *Handlers) HandleDynamicsCallback(c *echo.Context) error {
	state := c.QueryParam("state")
	code := c.QueryParam("code")
	errCode := c.QueryParam("error")
	errDescription := c.QueryParam("error_description")

	if err := h.Callback.Deliver(state, code, errCode, errDescription); err != nil {
		return c.HTML(http.StatusBadRequest, "<html><body><p>Sign-in could not be completed. You can close this window.</p></body></html>")
	}
	if errCode != "" {
		return c.HTML(http.StatusOK, "<html><body><p>Sign-in was not completed. You can close this window.</p></body></html>")
	}
	return c.HTML(http.StatusOK, "<html><body><p>Sign-in complete. You can close this window.</p></body></html>")
}

func (h *Handlers) HandleDynamicsDisconnect(c *echo.Context) error {
	h.Auth.Disconnect(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// HandleDynamicsSession attempts a silent session restore.
func (h *Handlers) HandleDynamicsSession(c *echo.Context) error {
	restored, err := h.Auth.CheckExistingSession(c.Request().Context())
	if err != nil {
		return h.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"restored": restored})
}

// HandleDynamicsTest verifies the connection with a WhoAmI round trip.
func (h *Handlers) HandleDynamicsTest(c *echo.Context) error {
	who, err := h.Tester.WhoAmI(c.Request().Context())
	if err != nil {
		return h.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":        true,
		"userId":         who.UserID,
		"organizationId": who.OrganizationID,
	})
}
