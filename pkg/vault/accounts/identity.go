package accounts

import (
	"strings"

	"github.com/augurvault/augur/pkg/vault/models"
)

// NormalizeAddress trims whitespace and lower-cases hex-addressed chains.
// Case-sensitive encodings are returned verbatim.
func NormalizeAddress(chain models.Chain, addr string) string {
	addr = strings.TrimSpace(addr)
	if chain.HexAddressed() {
		return strings.ToLower(addr)
	}
	return addr
}

func normalizeNetwork(n string) string {
	return strings.ToLower(strings.TrimSpace(n))
}

// IdentityKey is the dedup key of an account: chain, network and normalized address.
func IdentityKey(chain models.Chain, network, addr string) string {
	return string(chain) + "|" + normalizeNetwork(network) + "|" + NormalizeAddress(chain, addr)
}
