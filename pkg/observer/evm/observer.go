package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/augurvault/augur/pkg/observer"
	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const erc20ABI = `[
 {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
 {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

var erc20 abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(err)
	}
	erc20 = parsed
}

// Backend is the slice of ethclient.Client used here.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Token is an ERC-20 contract to report. Decimals of zero are read from the contract.
type Token struct {
	Contract string `yaml:"contract" json:"contract"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

type Options struct {
	ChainID int64
	Tokens  []Token
	Logger  *zap.Logger
}

type Observer struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

var _ observer.Observer = (*Observer)(nil)

// Dial connects to a JSON-RPC endpoint with ethclient.
func Dial(ctx context.Context, rawURL string, opts Options) (*Observer, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return New(client, opts), nil
}

func New(backend Backend, opts Options) *Observer {
	if opts.ChainID <= 0 {
		opts.ChainID = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Observer{backend: backend, opts: opts, logger: opts.Logger}
}

func (o *Observer) Chain() models.Chain { return models.ChainEVM }

// TokenAsset is the asset id of an ERC-20 contract.
func TokenAsset(chainID int64, contract string) string {
	return fmt.Sprintf("evm:%d:erc20:%s", chainID, strings.ToLower(contract))
}

// FetchSnapshot reads the ether balance and configured token balances, all
// pinned to the same block.
func (o *Observer) FetchSnapshot(ctx context.Context, acct models.Account) (observer.Balance, error) {
	if !common.IsHexAddress(acct.AddressOrIdentifier) {
		return observer.Balance{}, fmt.Errorf("%w: %q is not an evm address", vault.ErrValidation, acct.AddressOrIdentifier)
	}
	owner := common.HexToAddress(acct.AddressOrIdentifier)

	head, err := o.backend.BlockNumber(ctx)
	if err != nil {
		return observer.Balance{}, observer.SourceError("eth_blockNumber", err)
	}
	block := new(big.Int).SetUint64(head)

	wei, err := o.backend.BalanceAt(ctx, owner, block)
	if err != nil {
		return observer.Balance{}, observer.SourceError("eth_getBalance", err)
	}

	tokens := make([]models.TokenBalance, 0, len(o.opts.Tokens))
	for _, tok := range o.opts.Tokens {
		amount, err := o.tokenBalance(ctx, tok, owner, block)
		if err != nil {
			return observer.Balance{}, err
		}
		tokens = append(tokens, models.TokenBalance{AssetID: TokenAsset(o.opts.ChainID, tok.Contract), Amount: amount})
	}

	return observer.Balance{
		NativeBalance: observer.FromBaseUnits(wei, 18),
		TokenBalances: tokens,
		Metadata: map[string]any{
			"chain_id":     o.opts.ChainID,
			"block_number": head,
		},
	}, nil
}

func (o *Observer) tokenBalance(ctx context.Context, tok Token, owner common.Address, block *big.Int) (string, error) {
	if !common.IsHexAddress(tok.Contract) {
		return "", fmt.Errorf("%w: token contract %q", vault.ErrValidation, tok.Contract)
	}
	contract := common.HexToAddress(tok.Contract)

	decimals := tok.Decimals
	if decimals == 0 {
		out, err := o.call(ctx, contract, block, "decimals")
		if err != nil {
			return "", err
		}
		d, ok := out[0].(uint8)
		if !ok {
			return "", fmt.Errorf("decimals of %s: unexpected %T", tok.Contract, out[0])
		}
		decimals = d
	}

	out, err := o.call(ctx, contract, block, "balanceOf", owner)
	if err != nil {
		return "", err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return "", fmt.Errorf("balanceOf %s: unexpected %T", tok.Contract, out[0])
	}
	return observer.FromBaseUnits(bal, int32(decimals)), nil
}

func (o *Observer) call(ctx context.Context, contract common.Address, block *big.Int, method string, args ...any) ([]any, error) {
	data, err := erc20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := o.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, block)
	if err != nil {
		return nil, observer.SourceError("eth_call "+method, err)
	}
	out, err := erc20.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, contract.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s from %s: empty result", method, contract.Hex())
	}
	return out, nil
}
