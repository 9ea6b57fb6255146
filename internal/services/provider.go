package services

import (
	"context"
)

// Provider is a dependency the service needs to be ready
type Provider interface {
	// Type returns the dependency type name
	Type() string

	// HealthCheck checks if the dependency is available
	HealthCheck(ctx context.Context) error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}
