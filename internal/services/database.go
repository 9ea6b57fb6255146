package services

import (
	"context"
)

// Pinger is implemented by the repository and event brokers
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProvider reports health through a Ping method
type PingProvider struct {
	BaseProvider
	target Pinger
}

// NewPingProvider wraps target as a Provider of the given type
func NewPingProvider(serviceType string, target Pinger) *PingProvider {
	return &PingProvider{
		BaseProvider: BaseProvider{serviceType: serviceType},
		target:       target,
	}
}

// HealthCheck pings the target
func (p *PingProvider) HealthCheck(ctx context.Context) error {
	return p.target.Ping(ctx)
}
