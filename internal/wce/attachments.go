package wce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	maxErrorBodySize = 1 << 20 // 1 MiB
)

// Attachment is a file pulled from the source system, body still base64.
type Attachment struct {
	ID          string
	FileName    string
	MimeType    string
	DocumentB64 string
}

// AttachmentClient fetches attachment metadata and content from the
// LeadSuccess WCE_AttachmentById endpoint.
type AttachmentClient struct {
	baseURL string
	http    *http.Client
}

type AttachmentClientOptions struct {
	HTTPClient *http.Client
}

func NewAttachmentClient(baseURL string) (*AttachmentClient, error) {
	return NewAttachmentClientWithOptions(baseURL, AttachmentClientOptions{})
}

func NewAttachmentClientWithOptions(baseURL string, opts AttachmentClientOptions) (*AttachmentClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("wce base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &AttachmentClient{baseURL: baseURL, http: httpClient}, nil
}

// attachmentRecord mirrors the legacy OData verbose JSON envelope. Both the
// single-object form {"d": {...}} and the result-set form
// {"d": {"results": [...]}} occur in the wild.
type attachmentRecord struct {
	FileName     string `json:"FileName"`
	MimeType     string `json:"MimeType"`
	DocumentBody string `json:"DocumentBody"`
	Body         string `json:"Body"`
}

// GetAttachment fetches one attachment by its WCE id. Missing file names and
// MIME types degrade to placeholders instead of failing the fetch.
func (c *AttachmentClient) GetAttachment(ctx context.Context, id string) (Attachment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Attachment{}, errors.New("attachment id is required")
	}

	endpoint := c.baseURL + "/WCE_AttachmentById?Id='" + url.QueryEscape(id) + "'&$format=json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Attachment{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dynamics-bridge")

	resp, err := c.http.Do(req)
	if err != nil {
		return Attachment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return Attachment{}, fmt.Errorf("wce attachment lookup failed: %s: %s", resp.Status, condense(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Attachment{}, err
	}

	rec, err := decodeAttachmentEnvelope(body)
	if err != nil {
		return Attachment{}, fmt.Errorf("wce attachment %s: %w", id, err)
	}

	content := rec.DocumentBody
	if content == "" {
		content = rec.Body
	}
	if content == "" {
		return Attachment{}, fmt.Errorf("wce attachment %s has no content", id)
	}

	att := Attachment{
		ID:          id,
		FileName:    strings.TrimSpace(rec.FileName),
		MimeType:    strings.TrimSpace(rec.MimeType),
		DocumentB64: content,
	}
	if att.FileName == "" {
		att.FileName = PlaceholderFileName(id)
	}
	if att.MimeType == "" {
		att.MimeType = "application/octet-stream"
	}
	return att, nil
}

// PlaceholderFileName names an attachment whose metadata lacked a file name.
func PlaceholderFileName(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		id = id[:8]
	}
	return "Attachment_" + id
}

func decodeAttachmentEnvelope(body []byte) (attachmentRecord, error) {
	var envelope struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return attachmentRecord{}, fmt.Errorf("malformed response: %w", err)
	}
	if len(envelope.D) == 0 {
		// Some deployments skip the verbose envelope entirely.
		envelope.D = body
	}

	var withResults struct {
		Results []attachmentRecord `json:"results"`
	}
	if err := json.Unmarshal(envelope.D, &withResults); err == nil && len(withResults.Results) > 0 {
		return withResults.Results[0], nil
	}

	var rec attachmentRecord
	if err := json.Unmarshal(envelope.D, &rec); err != nil {
		return attachmentRecord{}, fmt.Errorf("malformed response: %w", err)
	}
	if rec.DocumentBody == "" && rec.Body == "" && rec.FileName == "" {
		return attachmentRecord{}, errors.New("empty attachment record")
	}
	return rec, nil
}

func condense(body []byte) string {
	msg := strings.Join(strings.Fields(string(body)), " ")
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "…"
	}
	return msg
}
