package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Chain is a network donors can send funds from.
type Chain struct {
	ID           int    `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	NativeSymbol string `yaml:"native_symbol" json:"nativeSymbol"`
	ExplorerURL  string `yaml:"explorer_url,omitempty" json:"explorerUrl,omitempty"`
}

type networksFile struct {
	Chains []Chain `yaml:"chains"`
}

// DefaultChains is the production list of supported networks.
func DefaultChains() []Chain {
	return []Chain{
		{ID: 137, Name: "Polygon", NativeSymbol: "POL", ExplorerURL: "https://polygonscan.com"},
		{ID: 1, Name: "Ethereum", NativeSymbol: "ETH", ExplorerURL: "https://etherscan.io"},
		{ID: 42161, Name: "Arbitrum One", NativeSymbol: "ETH", ExplorerURL: "https://arbiscan.io"},
		{ID: 43114, Name: "Avalanche", NativeSymbol: "AVAX", ExplorerURL: "https://snowtrace.io"},
		{ID: 10, Name: "OP Mainnet", NativeSymbol: "ETH", ExplorerURL: "https://optimistic.etherscan.io"},
		{ID: 8453, Name: "Base", NativeSymbol: "ETH", ExplorerURL: "https://basescan.org"},
		{ID: 59144, Name: "Linea", NativeSymbol: "ETH", ExplorerURL: "https://lineascan.build"},
		{ID: 42220, Name: "Celo", NativeSymbol: "CELO", ExplorerURL: "https://celoscan.io"},
		{ID: 5000, Name: "Mantle", NativeSymbol: "MNT", ExplorerURL: "https://mantlescan.xyz"},
		{ID: 1284, Name: "Moonbeam", NativeSymbol: "GLMR", ExplorerURL: "https://moonscan.io"},
		{ID: 250, Name: "Fantom", NativeSymbol: "FTM", ExplorerURL: "https://ftmscan.com"},
		{ID: 534352, Name: "Scroll", NativeSymbol: "ETH", ExplorerURL: "https://scrollscan.com"},
		{ID: 2222, Name: "Kava", NativeSymbol: "KAVA", ExplorerURL: "https://kavascan.com"},
		{ID: 314, Name: "Filecoin", NativeSymbol: "FIL", ExplorerURL: "https://filfox.info"},
		{ID: 81457, Name: "Blast", NativeSymbol: "ETH", ExplorerURL: "https://blastscan.io"},
		{ID: 252, Name: "Fraxtal", NativeSymbol: "frxETH", ExplorerURL: "https://fraxscan.com"},
		{ID: 13371, Name: "Immutable zkEVM", NativeSymbol: "IMX", ExplorerURL: "https://explorer.immutable.com"},
		{ID: 1101, Name: "Polygon zkEVM", NativeSymbol: "ETH", ExplorerURL: "https://zkevm.polygonscan.com"},
		{ID: 100, Name: "Gnosis", NativeSymbol: "xDAI", ExplorerURL: "https://gnosisscan.io"},
		{ID: 324, Name: "ZKsync Era", NativeSymbol: "ETH", ExplorerURL: "https://era.zksync.network"},
		{ID: 56, Name: "BNB Smart Chain", NativeSymbol: "BNB", ExplorerURL: "https://bscscan.com"},
	}
}

// LoadChains returns the chains listed in path, or DefaultChains when path
// is empty.
func LoadChains(path string) ([]Chain, error) {
	if path == "" {
		return DefaultChains(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks file: %w", err)
	}

	var nf networksFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return nil, fmt.Errorf("parse networks file: %w", err)
	}

	seen := make(map[int]bool, len(nf.Chains))
	for _, ch := range nf.Chains {
		if ch.ID <= 0 || ch.Name == "" {
			return nil, fmt.Errorf("parse networks file: chain %q has no id or name", ch.Name)
		}
		if seen[ch.ID] {
			return nil, fmt.Errorf("parse networks file: duplicate chain id %d", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nf.Chains, nil
}

// ChainByID looks up a supported chain.
func (c *Config) ChainByID(id int) (Chain, bool) {
	for _, ch := range c.Chains {
		if ch.ID == id {
			return ch, true
		}
	}
	return Chain{}, false
}
