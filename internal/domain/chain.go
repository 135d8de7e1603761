package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// Chain identifies a supported network by its short code. The short code is
// also the chain identifier Bubblemaps expects.
type Chain string

const (
	ChainETH       Chain = "eth"
	ChainBSC       Chain = "bsc"
	ChainFantom    Chain = "ftm"
	ChainAvalanche Chain = "avax"
	ChainCronos    Chain = "cro"
	ChainArbitrum  Chain = "arbi"
	ChainPolygon   Chain = "poly"
	ChainBase      Chain = "base"
	ChainSolana    Chain = "sol"
	ChainSonic     Chain = "sonic"
)

type chainInfo struct {
	platform string // CoinGecko asset platform id
	fullName string
	evm      bool
}

var chains = map[Chain]chainInfo{
	ChainETH:       {platform: "ethereum", fullName: "Ethereum", evm: true},
	ChainBSC:       {platform: "binance-smart-chain", fullName: "BNB Smart Chain", evm: true},
	ChainFantom:    {platform: "fantom", fullName: "Fantom", evm: true},
	ChainAvalanche: {platform: "avalanche", fullName: "Avalanche", evm: true},
	ChainCronos:    {platform: "cronos", fullName: "Cronos", evm: true},
	ChainArbitrum:  {platform: "arbitrum-one", fullName: "Arbitrum", evm: true},
	ChainPolygon:   {platform: "polygon-pos", fullName: "Polygon", evm: true},
	ChainBase:      {platform: "base", fullName: "Base", evm: true},
	ChainSolana:    {platform: "solana", fullName: "Solana"},
	ChainSonic:     {platform: "sonic", fullName: "Sonic", evm: true},
}

// Chains returns every supported chain in a stable order.
func Chains() []Chain {
	return []Chain{
		ChainETH, ChainBSC, ChainFantom, ChainAvalanche, ChainCronos,
		ChainArbitrum, ChainPolygon, ChainBase, ChainSolana, ChainSonic,
	}
}

// ParseChain validates user input against the supported chains. Matching is
// case-insensitive.
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := chains[c]; !ok {
		return "", &ValidationError{Field: "chain", Msg: fmt.Sprintf("%q is not a supported chain", s)}
	}
	return c, nil
}

// Platform returns the CoinGecko asset platform id for the chain.
func (c Chain) Platform() string {
	return chains[c].platform
}

// FullName returns a human readable chain name.
func (c Chain) FullName() string {
	if info, ok := chains[c]; ok {
		return info.fullName
	}
	return string(c)
}

// IsEVM reports whether addresses on the chain are 20-byte hex addresses.
func (c Chain) IsEVM() bool {
	return chains[c].evm
}

func (c Chain) String() string {
	return string(c)
}

// ValidateAddress checks that address is well formed for the chain.
func (c Chain) ValidateAddress(address string) error {
	if _, ok := chains[c]; !ok {
		return &ValidationError{Field: "chain", Msg: fmt.Sprintf("%q is not a supported chain", string(c))}
	}
	if c.IsEVM() {
		if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
			return &ValidationError{Field: "address", Msg: fmt.Sprintf("%q is not a valid %s address", address, c.FullName())}
		}
		return nil
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return &ValidationError{Field: "address", Msg: fmt.Sprintf("%q is not a valid %s address", address, c.FullName())}
	}
	return nil
}

// LooksLikeAddress reports whether s is shaped like a contract address on any
// supported chain family rather than a ticker symbol.
func LooksLikeAddress(s string) bool {
	if strings.HasPrefix(s, "0x") {
		return common.IsHexAddress(s)
	}
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	return err == nil && len(raw) == 32
}
