// Package transfer implements the lead-transfer pipeline: duplicate check,
// field mapping, lead creation and the attachment fallback ladder. It talks
// to the CRM through narrow interfaces so tests can substitute doubles.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leadsuccess/dynamics-bridge/internal/db"
	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
	"github.com/leadsuccess/dynamics-bridge/internal/metrics"
	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

type LeadCreator interface {
	CreateLead(ctx context.Context, fields map[string]any) (string, error)
}

type LeadFinder interface {
	FindLeadsByEmail(ctx context.Context, email string) ([]dynamics.LeadMatch, error)
}

type AnnotationCreator interface {
	CreateAnnotation(ctx context.Context, ann dynamics.Annotation) error
}

// API is the slice of the CRM client the orchestrator needs.
type API interface {
	LeadCreator
	LeadFinder
	AnnotationCreator
	DeepLink(leadID string) string
}

// SessionSource reports the current authentication state.
type SessionSource interface {
	Status() msauth.Status
}

// HistoryRecorder persists finished transfers for the operator's history
// view. Recording is best effort.
type HistoryRecorder interface {
	RecordTransfer(ctx context.Context, rec db.TransferRecord) error
}

// AttachmentSummary accounts for per-attachment outcomes of one transfer.
type AttachmentSummary struct {
	Total       int      `json:"total"`
	Transferred int      `json:"transferred"`
	Errors      []string `json:"errors"`
}

// TransferResult is the caller-facing outcome of a transfer.
type TransferResult struct {
	Success     bool              `json:"success"`
	LeadID      string            `json:"leadId,omitempty"`
	DynamicsURL string            `json:"dynamicsUrl,omitempty"`
	Message     string            `json:"message"`
	Attachments AttachmentSummary `json:"attachments"`
}

// Service sequences a transfer end to end.
type Service struct {
	api      API
	sessions SessionSource
	history  HistoryRecorder
	logger   *slog.Logger
}

func NewService(api API, sessions SessionSource, history HistoryRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, sessions: sessions, history: history, logger: logger}
}

// TransferLead runs the pipeline in strict order: session gate, duplicate
// check, mapping, creation, then attachments one at a time in input order.
// Attachment failures degrade to the errors list and never flip Success once
// the lead exists.
func (s *Service) TransferLead(ctx context.Context, lead wce.SourceLead, attachments []AttachmentDescriptor) (*TransferResult, error) {
	if st := s.sessions.Status(); st.State != msauth.StateConnected {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		switch st.State {
		case msauth.StateUnconfigured:
			return nil, msauth.ErrNotConfigured
		case msauth.StateExpired:
			return nil, msauth.ErrTokenExpired
		default:
			return nil, msauth.ErrNotAuthenticated
		}
	}

	if err := checkForDuplicate(ctx, s.api, lead, s.logger); err != nil {
		metrics.TransfersTotal.WithLabelValues("duplicate").Inc()
		return nil, err
	}

	fields := MapLead(lead, s.logger)
	leadName := wce.DisplayName(lead)

	timer := metrics.NewTransferTimer()
	leadID, err := s.api.CreateLead(ctx, fields)
	if err != nil {
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		timer.ObserveDuration()
		s.recordHistory(ctx, db.TransferRecord{
			LeadName: leadName,
			Message:  "Lead creation failed: " + err.Error(),
		})
		return nil, &LeadCreationError{Cause: err}
	}

	result := &TransferResult{
		Success:     true,
		LeadID:      leadID,
		DynamicsURL: s.api.DeepLink(leadID),
		Attachments: AttachmentSummary{
			Total:  len(attachments),
			Errors: []string{},
		},
	}

	for _, att := range attachments {
		if err := transferAttachment(ctx, s.api, leadID, att, s.logger); err != nil {
			metrics.AttachmentTransfersTotal.WithLabelValues("failed").Inc()
			result.Attachments.Errors = append(result.Attachments.Errors, fmt.Sprintf("%s: %v", att.DisplayName, err))
			continue
		}
		metrics.AttachmentTransfersTotal.WithLabelValues("transferred").Inc()
		result.Attachments.Transferred++
	}

	result.Message = buildMessage(result.Attachments)
	metrics.TransfersTotal.WithLabelValues("succeeded").Inc()
	timer.ObserveDuration()

	s.recordHistory(ctx, db.TransferRecord{
		LeadID:                 leadID,
		LeadName:               leadName,
		DynamicsURL:            result.DynamicsURL,
		Message:                result.Message,
		Success:                true,
		AttachmentsTotal:       result.Attachments.Total,
		AttachmentsTransferred: result.Attachments.Transferred,
		AttachmentErrors:       result.Attachments.Errors,
	})

	s.logger.Info("lead transferred",
		"lead_id", leadID,
		"lead_name", leadName,
		"attachments_total", result.Attachments.Total,
		"attachments_transferred", result.Attachments.Transferred)
	return result, nil
}

func (s *Service) recordHistory(ctx context.Context, rec db.TransferRecord) {
	if s.history == nil {
		return
	}
	if err := s.history.RecordTransfer(ctx, rec); err != nil {
		s.logger.Warn("could not record transfer history", "error", err)
	}
}

func buildMessage(att AttachmentSummary) string {
	switch {
	case att.Total == 0:
		return "Lead transferred successfully"
	case att.Transferred == att.Total:
		return fmt.Sprintf("Lead transferred successfully with %d attachment(s)", att.Transferred)
	default:
		return fmt.Sprintf("Lead transferred; %d of %d attachment(s) transferred", att.Transferred, att.Total)
	}
}
