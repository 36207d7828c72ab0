package rpc

import (
	"context"
)

// Client captures the Canopy RPC calls used by the canopy observer.
type Client interface {
	ChainHead(ctx context.Context) (uint64, error)
	Account(ctx context.Context, address string, height uint64) (*Account, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}
