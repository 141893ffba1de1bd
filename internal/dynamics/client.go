// Package dynamics is a thin client for the Dynamics 365 Web API (OData v4).
// It owns wire concerns only: headers, throttling retries, error shaping and
// entity id extraction. What to send lives in the transfer package.
package dynamics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	apiVersion       = "v9.2"
	defaultTimeout   = 120 * time.Second
	maxRetries       = 5
	maxErrorBodySize = 1 << 20 // 1 MiB
)

var guidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// TokenProvider hands out a currently valid bearer token. The msauth manager
// implements it.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

type Options struct {
	HTTPClient *http.Client
}

type Client struct {
	resourceURL string
	apiBase     string
	tokens      TokenProvider
	http        *http.Client
}

func New(resourceURL string, tokens TokenProvider) (*Client, error) {
	return NewWithOptions(resourceURL, tokens, Options{})
}

func NewWithOptions(resourceURL string, tokens TokenProvider, opts Options) (*Client, error) {
	resourceURL = strings.TrimRight(strings.TrimSpace(resourceURL), "/")
	if resourceURL == "" {
		return nil, errors.New("dynamics resource url is required")
	}
	if tokens == nil {
		return nil, errors.New("dynamics token provider is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		resourceURL: resourceURL,
		apiBase:     resourceURL + "/api/data/" + apiVersion,
		tokens:      tokens,
		http:        httpClient,
	}, nil
}

// LeadMatch is the projection returned by duplicate lookups.
type LeadMatch struct {
	LeadID   string `json:"leadid"`
	FullName string `json:"fullname"`
}

// Annotation is a note record, optionally bound to a lead.
type Annotation struct {
	Subject      string
	NoteText     string
	FileName     string
	MimeType     string
	DocumentBody string
	LeadID       string
}

// WhoAmIResponse identifies the caller inside the target organization.
type WhoAmIResponse struct {
	UserID         string `json:"UserId"`
	BusinessUnitID string `json:"BusinessUnitId"`
	OrganizationID string `json:"OrganizationId"`
}

// CreateLead posts a new lead and returns its id. The id is taken from the
// representation body when present, else from the OData-EntityId header.
func (c *Client) CreateLead(ctx context.Context, fields map[string]any) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}

	status, header, body, err := c.do(ctx, http.MethodPost, c.apiBase+"/leads", payload, "return=representation")
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", formatCRMError("lead creation failed", status, body)
	}

	var created struct {
		LeadID string `json:"leadid"`
	}
	if err := json.Unmarshal(body, &created); err == nil && created.LeadID != "" {
		return created.LeadID, nil
	}
	if id := guidPattern.FindString(header.Get("OData-EntityId")); id != "" {
		return strings.ToLower(id), nil
	}
	return "", errors.New("lead created but no id returned")
}

// FindLeadsByEmail returns existing leads whose primary email matches exactly.
func (c *Client) FindLeadsByEmail(ctx context.Context, email string) ([]LeadMatch, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	query := url.Values{}
	// OData string literals escape single quotes by doubling them.
	query.Set("$filter", "emailaddress1 eq '"+strings.ReplaceAll(email, "'", "''")+"'")
	query.Set("$select", "leadid,fullname")

	status, _, body, err := c.do(ctx, http.MethodGet, c.apiBase+"/leads?"+query.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, formatCRMError("lead lookup failed", status, body)
	}

	var page struct {
		Value []LeadMatch `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, err
	}
	return page.Value, nil
}

// CreateAnnotation posts a note. When ann.LeadID is set the note is bound to
// that lead, otherwise it is created standalone.
func (c *Client) CreateAnnotation(ctx context.Context, ann Annotation) error {
	fields := map[string]any{
		"subject":  ann.Subject,
		"notetext": ann.NoteText,
	}
	if ann.FileName != "" {
		fields["filename"] = ann.FileName
	}
	if ann.MimeType != "" {
		fields["mimetype"] = ann.MimeType
	}
	if ann.DocumentBody != "" {
		fields["documentbody"] = ann.DocumentBody
	}
	if ann.LeadID != "" {
		fields["objectid_lead@odata.bind"] = "/leads(" + ann.LeadID + ")"
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	status, _, body, err := c.do(ctx, http.MethodPost, c.apiBase+"/annotations", payload, "")
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return formatCRMError("annotation creation failed", status, body)
	}
	return nil
}

// WhoAmI verifies the connection end to end.
func (c *Client) WhoAmI(ctx context.Context) (WhoAmIResponse, error) {
	status, _, body, err := c.do(ctx, http.MethodGet, c.apiBase+"/WhoAmI", nil, "")
	if err != nil {
		return WhoAmIResponse{}, err
	}
	if status < 200 || status >= 300 {
		return WhoAmIResponse{}, formatCRMError("whoami failed", status, body)
	}

	var out WhoAmIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return WhoAmIResponse{}, err
	}
	return out, nil
}

// DeepLink builds the URL that opens a lead record in the Dynamics UI.
func (c *Client) DeepLink(leadID string) string {
	return c.resourceURL + "/main.aspx?etc=4&id=" + url.QueryEscape(leadID) + "&pagetype=entityrecord"
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, prefer string) (int, http.Header, []byte, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return 0, nil, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("OData-MaxVersion", "4.0")
		req.Header.Set("OData-Version", "4.0")
		req.Header.Set("User-Agent", "dynamics-bridge")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json; charset=utf-8")
		}
		if prefer != "" {
			req.Header.Set("Prefer", prefer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, nil, nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout {
			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			resp.Body.Close()
			if readErr != nil {
				return 0, nil, nil, readErr
			}
			lastErr = formatCRMError("dynamics api throttled", resp.StatusCode, body)
			if attempt == maxRetries {
				return 0, nil, nil, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = retryBackoff(attempt)
			}
			if err := sleep(ctx, wait); err != nil {
				return 0, nil, nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		resp.Body.Close()
		if readErr != nil {
			return 0, nil, nil, readErr
		}
		return resp.StatusCode, resp.Header, body, nil
	}

	if lastErr != nil {
		return 0, nil, nil, lastErr
	}
	return 0, nil, nil, errors.New("dynamics request failed")
}

func formatCRMError(prefix string, status int, body []byte) error {
	message := extractCRMErrorMessage(body)
	if message != "" {
		return fmt.Errorf("%s: HTTP %d: %s", prefix, status, message)
	}
	return fmt.Errorf("%s: HTTP %d", prefix, status)
}

func extractCRMErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := strings.TrimSpace(payload.Error.Message)
		code := strings.TrimSpace(payload.Error.Code)
		if msg != "" && code != "" {
			return code + ": " + msg
		}
		if msg != "" {
			return msg
		}
		if code != "" {
			return code
		}
	}

	msg := strings.Join(strings.Fields(string(body)), " ")
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "…"
	}
	return msg
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	wait := time.Second * time.Duration(1<<attempt)
	const max = 30 * time.Second
	if wait > max {
		wait = max
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
