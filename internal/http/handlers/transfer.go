package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/leadsuccess/dynamics-bridge/internal/db"
	"github.com/leadsuccess/dynamics-bridge/internal/transfer"
	"github.com/leadsuccess/dynamics-bridge/internal/wce"
)

type transferRequest struct {
	Lead        wce.SourceLead                  `json:"lead"`
	Attachments []transfer.AttachmentDescriptor `json:"attachments"`
}

// HandleTransferPost runs a lead transfer. Attachments may arrive with an
// inline base64 body or as bare ids to be fetched from the source system.
func (h *Handlers) HandleTransferPost(c *echo.Context) error {
	ctx := c.Request().Context()

	var req transferRequest
	if err := c.Bind(&req); err != nil {
		return JSONError(c, http.StatusBadRequest, ErrorBody{Code: CodeInternalTransferError, Message: "malformed transfer request"})
	}
	if len(req.Lead) == 0 {
		return JSONError(c, http.StatusBadRequest, ErrorBody{Code: CodeInternalTransferError, Message: "lead record is required"})
	}

	attachments, err := h.resolveAttachments(c, req.Attachments)
	if err != nil {
		return err
	}

	result, err := h.Transfers.TransferLead(ctx, req.Lead, attachments)
	if err != nil {
		return h.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// resolveAttachments fills id-only descriptors from the source system. A
// fetch failure keeps the descriptor so the pipeline accounts for it as a
// per-attachment error instead of dropping it silently.
func (h *Handlers) resolveAttachments(c *echo.Context, descriptors []transfer.AttachmentDescriptor) ([]transfer.AttachmentDescriptor, error) {
	ctx := c.Request().Context()
	out := make([]transfer.AttachmentDescriptor, 0, len(descriptors))
	for _, desc := range descriptors {
		if strings.TrimSpace(desc.Base64Body) != "" || strings.TrimSpace(desc.ID) == "" || h.Attachments == nil {
			out = append(out, desc)
			continue
		}
		att, err := h.Attachments.GetAttachment(ctx, desc.ID)
		if err != nil {
			h.logger().Warn("attachment fetch failed", "attachment_id", desc.ID, "error", err)
			if desc.DisplayName == "" {
				desc.DisplayName = wce.PlaceholderFileName(desc.ID)
			}
			out = append(out, desc)
			continue
		}
		out = append(out, transfer.AttachmentDescriptor{
			ID:          att.ID,
			DisplayName: att.FileName,
			MimeType:    att.MimeType,
			Base64Body:  att.DocumentB64,
		})
	}
	return out, nil
}

// HandleTransfersGet lists recent transfers, newest first.
func (h *Handlers) HandleTransfersGet(c *echo.Context) error {
	if h.History == nil {
		return c.JSON(http.StatusOK, map[string]any{"transfers": []any{}})
	}
	records, err := h.History.ListRecentTransfers(c.Request().Context(), h.Cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []db.TransferRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"transfers": records})
}
