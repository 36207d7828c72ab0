package rpc

// Canopy RPC query paths.
const (
	headPath    = "/v1/query/height"
	accountPath = "/v1/query/account"
)
