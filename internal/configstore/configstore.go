// Package configstore holds the Dynamics 365 client configuration an operator
// provides through the settings surface: the Entra application (client) id,
// the directory (tenant) id, and the CRM organization URL.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	FieldClientID    = "clientId"
	FieldTenantID    = "tenantId"
	FieldResourceURL = "resourceUrl"
)

// ErrMissingConfiguration reports that no configuration has been saved yet.
// It is a distinct state from a saved-but-invalid configuration.
var ErrMissingConfiguration = errors.New("dynamics configuration is missing")

// InvalidFieldError names the offending configuration field.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ClientConfiguration is the public-client OAuth2 configuration for one CRM
// organization. All three fields must be present and valid before any auth
// operation is attempted.
type ClientConfiguration struct {
	ClientID    string `json:"clientId"`
	TenantID    string `json:"tenantId"`
	ResourceURL string `json:"resourceUrl"`
}

func (c ClientConfiguration) Normalized() ClientConfiguration {
	out := c
	out.ClientID = normalizeGUID(out.ClientID)
	out.TenantID = normalizeGUID(out.TenantID)
	out.ResourceURL = strings.TrimRight(strings.TrimSpace(out.ResourceURL), "/")
	return out
}

func (c ClientConfiguration) Complete() bool {
	c = c.Normalized()
	return c.ClientID != "" && c.TenantID != "" && c.ResourceURL != ""
}

// Validate checks each field and reports the first invalid one by name.
func (c ClientConfiguration) Validate() error {
	c = c.Normalized()
	if c.ClientID == "" {
		return &InvalidFieldError{Field: FieldClientID, Reason: "client ID is required"}
	}
	if !isGUID(c.ClientID) {
		return &InvalidFieldError{Field: FieldClientID, Reason: "client ID must be a valid GUID"}
	}
	if c.TenantID == "" {
		return &InvalidFieldError{Field: FieldTenantID, Reason: "tenant ID is required"}
	}
	if !isGUID(c.TenantID) {
		return &InvalidFieldError{Field: FieldTenantID, Reason: "tenant ID must be a valid GUID"}
	}
	if c.ResourceURL == "" {
		return &InvalidFieldError{Field: FieldResourceURL, Reason: "resource URL is required"}
	}
	parsed, err := url.Parse(c.ResourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
		return &InvalidFieldError{Field: FieldResourceURL, Reason: "resource URL must be a valid URL"}
	}
	if !strings.Contains(strings.ToLower(parsed.Hostname()), "dynamics.com") {
		return &InvalidFieldError{Field: FieldResourceURL, Reason: "resource URL must be a Dynamics 365 organization URL"}
	}
	return nil
}

// Store persists a single ClientConfiguration.
type Store interface {
	// Load returns the saved configuration. found is false when nothing has
	// been saved, which callers must treat differently from an invalid save.
	Load(ctx context.Context) (cfg ClientConfiguration, found bool, err error)
	// Save validates the candidate and persists it; on validation failure the
	// stored configuration is left unchanged.
	Save(ctx context.Context, cfg ClientConfiguration) error
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store used by tests and single-shot commands.
type MemoryStore struct {
	mu    sync.Mutex
	cfg   ClientConfiguration
	saved bool
}

func (s *MemoryStore) Load(ctx context.Context) (ClientConfiguration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.saved, nil
}

func (s *MemoryStore) Save(ctx context.Context, cfg ClientConfiguration) error {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.saved = true
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = ClientConfiguration{}
	s.saved = false
	return nil
}

func isGUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func normalizeGUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return strings.TrimSpace(s)
}
