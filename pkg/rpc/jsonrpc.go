package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// JSONRPCError is the error object of a JSON-RPC 2.0 response.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *JSONRPCError   `json:"error"`
}

var rpcSeq atomic.Uint64

// CallJSONRPC posts a JSON-RPC 2.0 request to the endpoint root and decodes result into out.
func (c *HTTPClient) CallJSONRPC(ctx context.Context, method string, params any, out any) error {
	req := jsonRPCRequest{JSONRPC: "2.0", ID: rpcSeq.Add(1), Method: method, Params: params}
	var resp jsonRPCResponse
	if err := c.PostJSON(ctx, "", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return fmt.Errorf("jsonrpc %s: empty result", method)
	}
	return json.Unmarshal(resp.Result, out)
}
