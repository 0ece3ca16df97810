package rag

import (
	"context"
	"sync"
)

// Factory builds a Service, typically an *Agent.
type Factory func(ctx context.Context) (Service, error)

// Provider creates the answering service on first use and keeps it. A failed
// creation is not cached, so the next call tries again.
type Provider struct {
	factory Factory

	mu      sync.Mutex
	service Service
}

func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

func (p *Provider) Get(ctx context.Context) (Service, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.service != nil {
		return p.service, nil
	}
	svc, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	p.service = svc
	return svc, nil
}

