package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
	"github.com/leadsuccess/dynamics-bridge/internal/transfer"
	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

func newTestContext(method, target, body string) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var envelope errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, rec.Body.String())
	}
	return envelope.Error
}

type fakeAuthService struct {
	status       msauth.Status
	startErr     error
	handle       *msauth.Handle
	configured   configstore.ClientConfiguration
	configureErr error
	disconnects  int
	cleared      int
	restored     bool
	restoreErr   error
}

func (f *fakeAuthService) Status() msauth.Status { return f.status }

func (f *fakeAuthService) StartConnect(ctx context.Context) (*msauth.Handle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.handle, nil
}

func (f *fakeAuthService) Disconnect(ctx context.Context) { f.disconnects++ }

func (f *fakeAuthService) CheckExistingSession(ctx context.Context) (bool, error) {
	return f.restored, f.restoreErr
}

func (f *fakeAuthService) Configure(cfg configstore.ClientConfiguration) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	f.configured = cfg
	return nil
}

func (f *fakeAuthService) ClearConfiguration() { f.cleared++ }

type fakeTransferrer struct {
	lead        wce.SourceLead
	attachments []transfer.AttachmentDescriptor
	result      *transfer.TransferResult
	err         error
}

func (f *fakeTransferrer) TransferLead(ctx context.Context, lead wce.SourceLead, attachments []transfer.AttachmentDescriptor) (*transfer.TransferResult, error) {
	f.lead = lead
	f.attachments = attachments
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeTester struct {
	who dynamics.WhoAmIResponse
	err error
}

func (f *fakeTester) WhoAmI(ctx context.Context) (dynamics.WhoAmIResponse, error) {
	return f.who, f.err
}

func TestWriteErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid configuration field",
			err:        &configstore.InvalidFieldError{Field: "clientId", Reason: "must be a GUID"},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidConfiguration,
		},
		{
			name:       "missing configuration",
			err:        configstore.ErrMissingConfiguration,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeMissingConfiguration,
		},
		{
			name:       "not configured sentinel",
			err:        msauth.ErrNotConfigured,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeMissingConfiguration,
		},
		{
			name:       "token expired",
			err:        msauth.ErrTokenExpired,
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeTokenExpired,
		},
		{
			name:       "not authenticated",
			err:        msauth.ErrNotAuthenticated,
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeNotAuthenticated,
		},
		{
			name:       "cancelled sign-in",
			err:        msauth.ErrAuthenticationCancelled,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeAuthenticationCancelled,
		},
		{
			name:       "sign-in already running",
			err:        msauth.ErrAuthInProgress,
			wantStatus: http.StatusConflict,
			wantCode:   CodeAuthInProgress,
		},
		{
			name:       "duplicate lead",
			err:        &transfer.DuplicateLeadError{ExistingID: "abc-123", ExistingName: "Jane Doe"},
			wantStatus: http.StatusConflict,
			wantCode:   CodeDuplicateLead,
		},
		{
			name:       "lead creation failure",
			err:        &transfer.LeadCreationError{Cause: errors.New("HTTP 500")},
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeLeadCreationFailed,
		},
		{
			name:       "unknown error",
			err:        errors.New("pg: connection refused password=hunter2"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalTransferError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, rec := newTestContext(http.MethodPost, "http://example.com/api/transfer", "")
			h := &Handlers{}
			if err := h.WriteError(c, tt.err); err != nil {
				t.Fatalf("WriteError: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeErrorBody(t, rec); got.Code != tt.wantCode {
				t.Fatalf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestWriteErrorDuplicateCarriesExistingID(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodPost, "http://example.com/api/transfer", "")
	h := &Handlers{}
	err := &transfer.DuplicateLeadError{ExistingID: "11112222-3333-4444-5555-666677778888", ExistingName: "Jane Doe"}
	if werr := h.WriteError(c, err); werr != nil {
		t.Fatalf("WriteError: %v", werr)
	}

	body := decodeErrorBody(t, rec)
	if body.DuplicateID != err.ExistingID {
		t.Fatalf("duplicateId = %q, want %q", body.DuplicateID, err.ExistingID)
	}
	if !strings.Contains(body.Message, "Jane Doe") {
		t.Fatalf("message %q does not name the existing lead", body.Message)
	}
}

func TestWriteErrorInvalidFieldNamesField(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodPut, "http://example.com/api/dynamics/config", "")
	h := &Handlers{}
	err := &configstore.InvalidFieldError{Field: "tenantId", Reason: "must be a GUID"}
	if werr := h.WriteError(c, err); werr != nil {
		t.Fatalf("WriteError: %v", werr)
	}
	if got := decodeErrorBody(t, rec); got.Field != "tenantId" {
		t.Fatalf("field = %q, want tenantId", got.Field)
	}
}

func TestWriteErrorDoesNotLeakInternals(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodPost, "http://example.com/api/transfer", "")
	h := &Handlers{}
	if err := h.WriteError(c, errors.New("dial tcp: password=secret")); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatalf("response leaked error details: %q", rec.Body.String())
	}
}

func TestErrorBodyForStatus(t *testing.T) {
	t.Parallel()

	if got := ErrorBodyForStatus(http.StatusNotFound); got.Code != "NotFound" {
		t.Fatalf("404 code = %q", got.Code)
	}
	if got := ErrorBodyForStatus(http.StatusUnauthorized); got.Code != "Unauthorized" {
		t.Fatalf("401 code = %q", got.Code)
	}
	if got := ErrorBodyForStatus(http.StatusBadGateway); got.Code != CodeInternalTransferError {
		t.Fatalf("fallback code = %q", got.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	t.Parallel()

	c, rec := newTestContext(http.MethodGet, "http://example.com/healthz", "")
	h := &Handlers{}
	if err := h.HandleHealthz(c); err != nil {
		t.Fatalf("HandleHealthz: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
