package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/leadsuccess/dynamics-bridge/internal/dynamics"
)

const testLeadID = "11112222-3333-4444-5555-666677778888"

type annotationRecorder struct {
	annotations []dynamics.Annotation
	// failures maps call index (0-based) to an error.
	failures map[int]error
}

func (r *annotationRecorder) CreateAnnotation(ctx context.Context, ann dynamics.Annotation) error {
	idx := len(r.annotations)
	r.annotations = append(r.annotations, ann)
	if err, ok := r.failures[idx]; ok {
		return err
	}
	return nil
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPrepareAttachmentRejectsBadBase64(t *testing.T) {
	t.Parallel()

	_, err := prepareAttachment(AttachmentDescriptor{DisplayName: "broken.pdf", MimeType: "application/pdf", Base64Body: "%%%not-base64%%%"})
	if err == nil {
		t.Fatal("expected rejection for malformed base64")
	}
}

func TestPrepareAttachmentRejectsOversize(t *testing.T) {
	t.Parallel()

	big := base64.StdEncoding.EncodeToString(make([]byte, maxAttachmentBytes+1))
	_, err := prepareAttachment(AttachmentDescriptor{DisplayName: "big.pdf", MimeType: "application/pdf", Base64Body: big})
	if err == nil {
		t.Fatal("expected rejection over the size ceiling")
	}
	if !strings.Contains(err.Error(), "limit") {
		t.Fatalf("error should mention the limit: %v", err)
	}
}

func TestPrepareAttachmentSupportedTypePassesThrough(t *testing.T) {
	t.Parallel()

	prepared, err := prepareAttachment(AttachmentDescriptor{DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf bytes")})
	if err != nil {
		t.Fatalf("prepareAttachment: %v", err)
	}
	if prepared.MimeType != "application/pdf" || prepared.FileName != "doc.pdf" || prepared.Converted {
		t.Fatalf("prepared = %+v", prepared)
	}
}

func TestPrepareAttachmentConvertsSVG(t *testing.T) {
	t.Parallel()

	prepared, err := prepareAttachment(AttachmentDescriptor{DisplayName: "logo.svg", MimeType: "image/svg+xml", Base64Body: b64("<svg/>")})
	if err != nil {
		t.Fatalf("prepareAttachment: %v", err)
	}
	if prepared.MimeType != "text/plain" {
		t.Fatalf("MimeType = %q, want text/plain", prepared.MimeType)
	}
	if prepared.FileName != "logo.txt" {
		t.Fatalf("FileName = %q, want logo.txt", prepared.FileName)
	}
	if !prepared.Converted {
		t.Fatal("Converted should be set")
	}
}

func TestPrepareAttachmentUnsupportedFallsBackToBinary(t *testing.T) {
	t.Parallel()

	prepared, err := prepareAttachment(AttachmentDescriptor{DisplayName: "weird:na/me.xyz", MimeType: "application/x-compiled-thing", Base64Body: b64("data")})
	if err != nil {
		t.Fatalf("prepareAttachment: %v", err)
	}
	if prepared.MimeType != "application/octet-stream" {
		t.Fatalf("MimeType = %q, want application/octet-stream", prepared.MimeType)
	}
	if strings.ContainsAny(prepared.FileName, `\/:`) {
		t.Fatalf("FileName not sanitized: %q", prepared.FileName)
	}
}

func TestTransferAttachmentLinkedFirst(t *testing.T) {
	t.Parallel()

	rec := &annotationRecorder{}
	err := transferAttachment(context.Background(), rec, testLeadID, AttachmentDescriptor{
		DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf"),
	}, testLogger())
	if err != nil {
		t.Fatalf("transferAttachment: %v", err)
	}
	if len(rec.annotations) != 1 {
		t.Fatalf("annotation calls = %d, want 1", len(rec.annotations))
	}
	if rec.annotations[0].LeadID != testLeadID {
		t.Fatalf("annotation not linked: %+v", rec.annotations[0])
	}
}

func TestTransferAttachmentFallsBackToStandalone(t *testing.T) {
	t.Parallel()

	rec := &annotationRecorder{failures: map[int]error{0: errors.New("bind rejected")}}
	err := transferAttachment(context.Background(), rec, testLeadID, AttachmentDescriptor{
		DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf"),
	}, testLogger())
	if err != nil {
		t.Fatalf("transferAttachment: %v", err)
	}
	if len(rec.annotations) != 2 {
		t.Fatalf("annotation calls = %d, want 2", len(rec.annotations))
	}
	standalone := rec.annotations[1]
	if standalone.LeadID != "" {
		t.Fatalf("fallback annotation must be standalone: %+v", standalone)
	}
	if !strings.HasPrefix(standalone.Subject, "[UNLINKED] ") {
		t.Fatalf("fallback subject = %q, want [UNLINKED] prefix", standalone.Subject)
	}
}

func TestTransferAttachmentFailureNoteAsLastResort(t *testing.T) {
	t.Parallel()

	rec := &annotationRecorder{failures: map[int]error{
		0: errors.New("bind rejected"),
		1: errors.New("storage unavailable"),
	}}
	err := transferAttachment(context.Background(), rec, testLeadID, AttachmentDescriptor{
		DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf"),
	}, testLogger())
	if err != nil {
		t.Fatalf("transferAttachment: %v", err)
	}
	if len(rec.annotations) != 3 {
		t.Fatalf("annotation calls = %d, want 3", len(rec.annotations))
	}
	note := rec.annotations[2]
	if note.LeadID != testLeadID {
		t.Fatalf("failure note must be on the lead: %+v", note)
	}
	if note.DocumentBody != "" {
		t.Fatalf("failure note must not carry the file body: %+v", note)
	}
	if !strings.Contains(note.NoteText, "doc.pdf") || !strings.Contains(note.NoteText, "bind rejected") {
		t.Fatalf("failure note lacks audit details: %q", note.NoteText)
	}
}

func TestTransferAttachmentAllStrategiesFail(t *testing.T) {
	t.Parallel()

	rec := &annotationRecorder{failures: map[int]error{
		0: errors.New("one"),
		1: errors.New("two"),
		2: errors.New("three"),
	}}
	err := transferAttachment(context.Background(), rec, testLeadID, AttachmentDescriptor{
		DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf"),
	}, testLogger())
	if err == nil {
		t.Fatal("expected error when every strategy fails")
	}
}

func TestTransferAttachmentRejectsBadLeadID(t *testing.T) {
	t.Parallel()

	rec := &annotationRecorder{}
	err := transferAttachment(context.Background(), rec, "not-a-guid", AttachmentDescriptor{
		DisplayName: "doc.pdf", MimeType: "application/pdf", Base64Body: b64("pdf"),
	}, testLogger())
	if err == nil {
		t.Fatal("expected error for malformed lead id")
	}
	if len(rec.annotations) != 0 {
		t.Fatalf("no annotation call expected, got %d", len(rec.annotations))
	}
}

func TestNormalizeLeadIDStripsBraces(t *testing.T) {
	t.Parallel()

	got, err := normalizeLeadID("{" + strings.ToUpper(testLeadID) + "}")
	if err != nil {
		t.Fatalf("normalizeLeadID: %v", err)
	}
	if got != testLeadID {
		t.Fatalf("normalizeLeadID = %q, want %q", got, testLeadID)
	}
}
