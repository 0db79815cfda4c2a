package billing

import (
	"errors"

	"github.com/Zhima-Mochi/minishop-billing/internal/observability"
)

// DefaultAPIVersion is the protocol version used when none is configured.
const DefaultAPIVersion = 3

// Context is the immutable configuration shared by every orchestrator.
type Context struct {
	platform    Platform
	publicKey   string
	apiVersion  int
	packageName string
	logger      observability.Logger
}

func (c *Context) Platform() Platform           { return c.platform }
func (c *Context) PublicKey() string            { return c.publicKey }
func (c *Context) APIVersion() int              { return c.apiVersion }
func (c *Context) PackageName() string          { return c.packageName }
func (c *Context) Logger() observability.Logger { return c.logger }

// ContextBuilder assembles a Context.
type ContextBuilder struct {
	c Context
}

func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{c: Context{apiVersion: DefaultAPIVersion}}
}

func (b *ContextBuilder) Platform(p Platform) *ContextBuilder {
	b.c.platform = p
	return b
}

// PublicKey sets the base64 X.509 RSA key receipts are verified against.
func (b *ContextBuilder) PublicKey(key string) *ContextBuilder {
	b.c.publicKey = key
	return b
}

func (b *ContextBuilder) APIVersion(v int) *ContextBuilder {
	b.c.apiVersion = v
	return b
}

func (b *ContextBuilder) PackageName(name string) *ContextBuilder {
	b.c.packageName = name
	return b
}

func (b *ContextBuilder) Logger(l observability.Logger) *ContextBuilder {
	b.c.logger = l
	return b
}

// Build validates the collected values and returns a Context. The builder
// may be reused; later changes do not affect contexts already built.
func (b *ContextBuilder) Build() (*Context, error) {
	c := b.c
	if c.platform == nil {
		return nil, errors.New("billing: platform is required")
	}
	if c.packageName == "" {
		return nil, errors.New("billing: package name is required")
	}
	if c.apiVersion < DefaultAPIVersion {
		return nil, errors.New("billing: api version must be 3 or greater")
	}
	if c.logger == nil {
		c.logger = observability.NopLogger()
	}
	return &c, nil
}
