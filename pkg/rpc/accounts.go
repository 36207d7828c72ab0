package rpc

import (
	"context"
	"net/http"
)

// Account represents an account returned from Canopy's RPC endpoint.
type Account struct {
	Address string `json:"address"` // Hex bytes from RPC
	Amount  uint64 `json:"amount"`  // Account balance in uCNPY
}

type heightResponse struct {
	Height uint64 `json:"height"`
}

type accountRequest struct {
	Address string `json:"address"`
	Height  uint64 `json:"height"`
}

// ChainHead returns the latest committed height.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	var resp heightResponse
	if err := c.doJSON(ctx, http.MethodPost, headPath, map[string]any{}, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// Account fetches one account at height (0 = latest). Canopy answers unknown
// addresses with a zero balance rather than an error.
func (c *HTTPClient) Account(ctx context.Context, address string, height uint64) (*Account, error) {
	var acc Account
	if err := c.doJSON(ctx, http.MethodPost, accountPath, accountRequest{Address: address, Height: height}, &acc); err != nil {
		return nil, err
	}
	if acc.Address == "" {
		acc.Address = address
	}
	return &acc, nil
}
