package dynamics

import (
	"context"

	"github.com/leadsuccess/dynamics-bridge/internal/configstore"
	"github.com/leadsuccess/dynamics-bridge/internal/msauth"
)

// ConfigSource supplies the currently active client configuration.
type ConfigSource interface {
	Configuration() (configstore.ClientConfiguration, bool)
}

// Gateway fronts the Client behind the live configuration: the resource URL
// is resolved on every call, so saving a new configuration takes effect
// without a restart.
type Gateway struct {
	source ConfigSource
	tokens TokenProvider
	opts   Options
}

func NewGateway(source ConfigSource, tokens TokenProvider) *Gateway {
	return NewGatewayWithOptions(source, tokens, Options{})
}

func NewGatewayWithOptions(source ConfigSource, tokens TokenProvider, opts Options) *Gateway {
	return &Gateway{source: source, tokens: tokens, opts: opts}
}

func (g *Gateway) client() (*Client, error) {
	cfg, ok := g.source.Configuration()
	if !ok {
		return nil, msauth.ErrNotConfigured
	}
	return NewWithOptions(cfg.ResourceURL, g.tokens, g.opts)
}

func (g *Gateway) CreateLead(ctx context.Context, fields map[string]any) (string, error) {
	c, err := g.client()
	if err != nil {
		return "", err
	}
	return c.CreateLead(ctx, fields)
}

func (g *Gateway) FindLeadsByEmail(ctx context.Context, email string) ([]LeadMatch, error) {
	c, err := g.client()
	if err != nil {
		return nil, err
	}
	return c.FindLeadsByEmail(ctx, email)
}

func (g *Gateway) CreateAnnotation(ctx context.Context, ann Annotation) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	return c.CreateAnnotation(ctx, ann)
}

func (g *Gateway) WhoAmI(ctx context.Context) (WhoAmIResponse, error) {
	c, err := g.client()
	if err != nil {
		return WhoAmIResponse{}, err
	}
	return c.WhoAmI(ctx)
}

func (g *Gateway) DeepLink(leadID string) string {
	c, err := g.client()
	if err != nil {
		return ""
	}
	return c.DeepLink(leadID)
}
