// Package handlers contains the JSON API handler logic split by domain.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/config"
	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
	"github.com/leadsuccess/dynamics-bridge/internal/db"
	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
	"github.com/leadsuccess/dynamics-bridge/internal/transfer"
	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

// Error codes returned in the JSON error envelope.
const (
	CodeMissingConfiguration    = "MissingConfiguration"
	CodeInvalidConfiguration    = "InvalidConfiguration"
	CodeNotAuthenticated        = "NotAuthenticated"
	CodeTokenExpired            = "TokenExpired"
	CodeAuthenticationCancelled = "AuthenticationCancelled"
	CodeAuthInProgress          = "AuthenticationInProgress"
	CodeDuplicateLead           = "DuplicateLead"
	CodeLeadCreationFailed      = "LeadCreationFailed"
	CodeInvalidCredentials      = "InvalidCredentials"
	CodeInternalTransferError   = "InternalTransferError"
)

// AuthService is the slice of the token manager the handlers use.
type AuthService interface {
	Status() msauth.Status
	StartConnect(ctx context.Context) (*msauth.Handle, error)
	Disconnect(ctx context.Context)
	CheckExistingSession(ctx context.Context) (bool, error)
	Configure(cfg configstore.ClientConfiguration) error
	ClearConfiguration()
}

// Transferrer runs the lead-transfer pipeline.
type Transferrer interface {
	TransferLead(ctx context.Context, lead wce.SourceLead, attachments []transfer.AttachmentDescriptor) (*transfer.TransferResult, error)
}

// ConnectionTester verifies the CRM connection end to end.
type ConnectionTester interface {
	WhoAmI(ctx context.Context) (dynamics.WhoAmIResponse, error)
}

// AttachmentFetcher pulls attachment content from the source system when the
// client sends ids instead of inline bodies.
type AttachmentFetcher interface {
	GetAttachment(ctx context.Context, id string) (wce.Attachment, error)
}

// HistoryLister reads recent transfer history.
type HistoryLister interface {
	ListRecentTransfers(ctx context.Context, limit int) ([]db.TransferRecord, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Cfg         config.Config
	Store       *db.Store
	Sessions    *scs.SessionManager
	Configs     configstore.Store
	Auth        AuthService
	Callback    *msauth.CallbackChannel
	Transfers   Transferrer
	Tester      ConnectionTester
	Attachments AttachmentFetcher
	History     HistoryLister
	Logger      *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type ErrorBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Field       string `json:"field,omitempty"`
	DuplicateID string `json:"duplicateId,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSONError writes the uniform error envelope.
func JSONError(c *echo.Context, status int, body ErrorBody) error {
	return c.JSON(status, errorEnvelope{Error: body})
}

// ErrorBodyForStatus builds a generic envelope body for a bare HTTP status.
func ErrorBodyForStatus(status int) ErrorBody {
	switch status {
	case http.StatusNotFound:
		return ErrorBody{Code: "NotFound", Message: "resource not found"}
	case http.StatusMethodNotAllowed:
		return ErrorBody{Code: "MethodNotAllowed", Message: "method not allowed"}
	case http.StatusUnauthorized:
		return ErrorBody{Code: "Unauthorized", Message: "sign in required"}
	case http.StatusForbidden:
		return ErrorBody{Code: "Forbidden", Message: "forbidden"}
	default:
		return ErrorBody{Code: CodeInternalTransferError, Message: http.StatusText(status)}
	}
}

// WriteError maps domain errors to HTTP statuses and the error envelope.
// Unrecognized errors become a 500 without leaking internals.
func (h *Handlers) WriteError(c *echo.Context, err error) error {
	var invalidField *configstore.InvalidFieldError
	var duplicate *transfer.DuplicateLeadError
	var creation *transfer.LeadCreationError

	switch {
	case errors.As(err, &invalidField):
		return JSONError(c, http.StatusBadRequest, ErrorBody{
			Code: CodeInvalidConfiguration, Message: invalidField.Error(), Field: invalidField.Field,
		})
	case errors.Is(err, configstore.ErrMissingConfiguration), errors.Is(err, msauth.ErrNotConfigured):
		return JSONError(c, http.StatusBadRequest, ErrorBody{
			Code: CodeMissingConfiguration, Message: "dynamics connection is not configured",
		})
	case errors.Is(err, msauth.ErrTokenExpired):
		return JSONError(c, http.StatusUnauthorized, ErrorBody{
			Code: CodeTokenExpired, Message: "dynamics session expired, sign in again",
		})
	case errors.Is(err, msauth.ErrNotAuthenticated):
		return JSONError(c, http.StatusUnauthorized, ErrorBody{
			Code: CodeNotAuthenticated, Message: "not signed in to dynamics",
		})
	case errors.Is(err, msauth.ErrAuthenticationCancelled):
		return JSONError(c, http.StatusBadRequest, ErrorBody{
			Code: CodeAuthenticationCancelled, Message: "sign-in was cancelled",
		})
	case errors.Is(err, msauth.ErrAuthInProgress):
		return JSONError(c, http.StatusConflict, ErrorBody{
			Code: CodeAuthInProgress, Message: "a sign-in is already in progress",
		})
	case errors.As(err, &duplicate):
		return JSONError(c, http.StatusConflict, ErrorBody{
			Code: CodeDuplicateLead, Message: duplicate.Error(), DuplicateID: duplicate.ExistingID,
		})
	case errors.As(err, &creation):
		return JSONError(c, http.StatusBadGateway, ErrorBody{
			Code: CodeLeadCreationFailed, Message: creation.Error(),
		})
	default:
		h.logger().Error("request failed", "path", c.Request().URL.Path, "error", err)
		return JSONError(c, http.StatusInternalServerError, ErrorBody{
			Code: CodeInternalTransferError, Message: "internal error",
		})
	}
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
