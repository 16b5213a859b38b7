package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"picoedge.com/ijpkg/internal/core/domain"
)

// EnvCredential reads the publish token from an environment variable at the
// moment it is needed. The value is never cached.
type EnvCredential struct {
	Name      string
	LookupEnv func(string) (string, bool)
}

// NewEnvCredential creates a credential source for the named variable
func NewEnvCredential(name string) *EnvCredential {
	return &EnvCredential{Name: name, LookupEnv: os.LookupEnv}
}

// Token returns the token or an AuthenticationError when it is unset or blank
func (c *EnvCredential) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lookup := c.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	token, ok := lookup(c.Name)
	if !ok || strings.TrimSpace(token) == "" {
		return "", domain.NewAuthenticationError(fmt.Sprintf("publish token not set: export %s", c.Name), nil)
	}
	return strings.TrimSpace(token), nil
}

// Describe names the credential without revealing it
func (c *EnvCredential) Describe() string {
	return "env:" + c.Name
}
