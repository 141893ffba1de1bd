package transfer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
)

// maxAttachmentBytes is the CRM annotation size ceiling.
const maxAttachmentBytes = 32 << 20

// AttachmentDescriptor is the attachment-fetch subsystem's handover format.
type AttachmentDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	MimeType    string `json:"mimeType"`
	Base64Body  string `json:"base64Body"`
}

// supportedMimeTypes is the allow-list of types the CRM stores reliably:
// pdf, the common office formats, plain text, CSV and raster images.
var supportedMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain": true,
	"text/csv":   true,
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
}

var fileNameStrip = regexp.MustCompile(`[\\/:*?"<>|[:cntrl:]]`)

// preparedAttachment is an attachment after validation and MIME conversion,
// ready to submit as an annotation.
type preparedAttachment struct {
	FileName     string
	MimeType     string
	DocumentBody string
	ByteSize     int
	Converted    bool
}

// prepareAttachment validates the payload and normalizes its type. Oversized
// or malformed bodies are rejected outright; unsupported types degrade
// instead of failing.
func prepareAttachment(att AttachmentDescriptor) (preparedAttachment, error) {
	body := strings.TrimSpace(att.Base64Body)
	if body == "" {
		return preparedAttachment{}, fmt.Errorf("attachment %q has no content", att.DisplayName)
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return preparedAttachment{}, fmt.Errorf("attachment %q is not valid base64: %v", att.DisplayName, err)
	}
	if len(decoded) > maxAttachmentBytes {
		return preparedAttachment{}, fmt.Errorf("attachment %q is %d bytes, over the %d byte limit", att.DisplayName, len(decoded), maxAttachmentBytes)
	}

	name := sanitizeFileName(att.DisplayName)
	if name == "" {
		name = "attachment"
	}
	mimeType := strings.ToLower(strings.TrimSpace(att.MimeType))

	prepared := preparedAttachment{
		FileName:     name,
		MimeType:     mimeType,
		DocumentBody: body,
		ByteSize:     len(decoded),
	}

	switch {
	case supportedMimeTypes[mimeType]:
		return prepared, nil
	case isSVG(mimeType, name):
		// CRM annotation storage does not reliably preserve vector images.
		// Re-wrap the markup as a plain-text note instead.
		prepared.MimeType = "text/plain"
		prepared.FileName = replaceExtension(name, ".txt")
		prepared.DocumentBody = base64.StdEncoding.EncodeToString(decoded)
		prepared.Converted = true
		return prepared, nil
	default:
		prepared.MimeType = "application/octet-stream"
		return prepared, nil
	}
}

func isSVG(mimeType, name string) bool {
	return mimeType == "image/svg+xml" || strings.HasSuffix(strings.ToLower(name), ".svg")
}

func sanitizeFileName(name string) string {
	return strings.TrimSpace(fileNameStrip.ReplaceAllString(name, "_"))
}

func replaceExtension(name, ext string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i] + ext
	}
	return name + ext
}

// attachmentStrategy is one rung of the fallback ladder. Strategies are tried
// in order; the first success wins.
type attachmentStrategy struct {
	name string
	run  func(ctx context.Context) error
}

// transferAttachment uploads one attachment as an annotation on the lead.
// Three successively weaker strategies are tried: linked annotation,
// standalone annotation tagged [UNLINKED], and a plain-text failure note on
// the lead. An error is returned only when all three fail.
func transferAttachment(ctx context.Context, api AnnotationCreator, leadID string, att AttachmentDescriptor, logger *slog.Logger) error {
	leadID, err := normalizeLeadID(leadID)
	if err != nil {
		return err
	}

	prepared, err := prepareAttachment(att)
	if err != nil {
		return err
	}

	noteText := "Attachment transferred from LeadSuccess"
	if prepared.Converted {
		noteText = fmt.Sprintf("Vector image %q converted to plain text for transfer", att.DisplayName)
	}

	var firstErr error
	strategies := []attachmentStrategy{
		{
			name: "linked annotation",
			run: func(ctx context.Context) error {
				return api.CreateAnnotation(ctx, dynamics.Annotation{
					Subject:      prepared.FileName,
					NoteText:     noteText,
					FileName:     prepared.FileName,
					MimeType:     prepared.MimeType,
					DocumentBody: prepared.DocumentBody,
					LeadID:       leadID,
				})
			},
		},
		{
			name: "standalone annotation",
			run: func(ctx context.Context) error {
				return api.CreateAnnotation(ctx, dynamics.Annotation{
					Subject:      "[UNLINKED] " + prepared.FileName,
					NoteText:     noteText + " (could not be linked to the lead)",
					FileName:     prepared.FileName,
					MimeType:     prepared.MimeType,
					DocumentBody: prepared.DocumentBody,
				})
			},
		},
		{
			name: "failure note",
			run: func(ctx context.Context) error {
				return api.CreateAnnotation(ctx, dynamics.Annotation{
					Subject: "Attachment transfer failed: " + prepared.FileName,
					NoteText: fmt.Sprintf(
						"The attachment %q (%s, %d bytes) could not be transferred at %s. Error: %v",
						att.DisplayName, prepared.MimeType, prepared.ByteSize,
						time.Now().UTC().Format(time.RFC3339), firstErr),
					LeadID: leadID,
				})
			},
		},
	}

	for _, strategy := range strategies {
		err := strategy.run(ctx)
		if err == nil {
			if firstErr != nil {
				logger.Warn("attachment transferred via fallback", "attachment", att.DisplayName, "strategy", strategy.name, "error", firstErr)
			}
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		logger.Warn("attachment strategy failed", "attachment", att.DisplayName, "strategy", strategy.name, "error", err)
	}
	return fmt.Errorf("attachment %q failed all transfer strategies: %w", att.DisplayName, firstErr)
}

func normalizeLeadID(id string) (string, error) {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "{")
	id = strings.TrimSuffix(id, "}")
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return "", fmt.Errorf("lead id %q is not a valid guid", id)
	}
	return strings.ToLower(id), nil
}
