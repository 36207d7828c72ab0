package evm

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/augurvault/augur/pkg/vault"
	"github.com/augurvault/augur/pkg/vault/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	head     uint64
	balances map[common.Address]*big.Int
	tokens   map[common.Address]*big.Int
	decimals uint8
	err      error
	blocks   []*big.Int
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.head, f.err }

func (f *fakeBackend) BalanceAt(_ context.Context, a common.Address, block *big.Int) (*big.Int, error) {
	f.blocks = append(f.blocks, block)
	if b, ok := f.balances[a]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.blocks = append(f.blocks, block)
	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, erc20.Methods["decimals"].ID):
		return erc20.Methods["decimals"].Outputs.Pack(f.decimals)
	case bytes.Equal(selector, erc20.Methods["balanceOf"].ID):
		args, err := erc20.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		bal := f.tokens[args[0].(common.Address)]
		if bal == nil {
			bal = big.NewInt(0)
		}
		return erc20.Methods["balanceOf"].Outputs.Pack(bal)
	}
	return nil, errors.New("unknown selector")
}

const (
	owner = "0xAbCdEf0000000000000000000000000000000001"
	usdc  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
)

func TestFetchSnapshot_NativeAndToken(t *testing.T) {
	oneAndHalfEth, _ := new(big.Int).SetString("1500000000000000000", 10)
	be := &fakeBackend{
		head:     19_000_000,
		balances: map[common.Address]*big.Int{common.HexToAddress(owner): oneAndHalfEth},
		tokens:   map[common.Address]*big.Int{common.HexToAddress(owner): big.NewInt(123_450_000)},
		decimals: 6,
	}
	o := New(be, Options{ChainID: 1, Tokens: []Token{{Contract: usdc, Symbol: "USDC"}}, Logger: zaptest.NewLogger(t)})

	bal, err := o.FetchSnapshot(context.Background(), models.Account{AccountID: "a", AddressOrIdentifier: owner})
	require.NoError(t, err)
	assert.Equal(t, "1.500000000000000000", bal.NativeBalance)
	require.Len(t, bal.TokenBalances, 1)
	assert.Equal(t, "evm:1:erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", bal.TokenBalances[0].AssetID)
	assert.Equal(t, "123.450000", bal.TokenBalances[0].Amount)
	assert.Equal(t, uint64(19_000_000), bal.Metadata["block_number"])

	for _, b := range be.blocks {
		assert.Equal(t, uint64(19_000_000), b.Uint64())
	}
}

func TestFetchSnapshot_ConfiguredDecimalsSkipCall(t *testing.T) {
	be := &fakeBackend{head: 1, tokens: map[common.Address]*big.Int{common.HexToAddress(owner): big.NewInt(5)}}
	o := New(be, Options{Tokens: []Token{{Contract: usdc, Decimals: 2}}})

	bal, err := o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: owner})
	require.NoError(t, err)
	assert.Equal(t, "0.05", bal.TokenBalances[0].Amount)
	assert.Len(t, be.blocks, 2)
}

func TestFetchSnapshot_Errors(t *testing.T) {
	o := New(&fakeBackend{}, Options{})
	_, err := o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: "not-an-address"})
	assert.ErrorIs(t, err, vault.ErrValidation)

	o = New(&fakeBackend{err: errors.New("503")}, Options{})
	_, err = o.FetchSnapshot(context.Background(), models.Account{AddressOrIdentifier: owner})
	assert.ErrorIs(t, err, vault.ErrSourceUnavailable)
}
