package bot

import (
	"fmt"
	"strings"

	"github.com/FranksOps/bubblescope/internal/domain"
)

const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandMap   = "bm"
	CommandInfo  = "bi"
)

func helpText() string {
	chains := make([]string, 0, len(domain.Chains()))
	for _, c := range domain.Chains() {
		chains = append(chains, string(c))
	}
	return "🚀 Welcome to the Bubble Bot!\n\n" +
		"/bm <address>/<chain> - holder bubble map\n" +
		"/bi <symbol or address>/<chain> - token card with market data\n\n" +
		"Examples:\n/bm 0xdac17f958d2ee523a2206206994597c13d831ec7/eth\n/bi usdt/eth\n\n" +
		"Chains: " + strings.Join(chains, ", ")
}

// parseTarget splits "<token>/<chain>" and validates the chain.
func parseTarget(args, usage string) (string, domain.Chain, error) {
	token, chainArg, ok := strings.Cut(strings.TrimSpace(args), "/")
	token = strings.TrimSpace(token)
	if !ok || token == "" || strings.TrimSpace(chainArg) == "" {
		return "", "", &domain.ValidationError{Field: "args", Msg: "Please use the format " + usage}
	}
	chain, err := domain.ParseChain(chainArg)
	if err != nil {
		return "", "", err
	}
	return token, chain, nil
}

// parseAddressTarget is parseTarget for commands that only take addresses.
func parseAddressTarget(args string) (string, domain.Chain, error) {
	address, chain, err := parseTarget(args, "/bm <address>/<chain>")
	if err != nil {
		return "", "", err
	}
	if err := chain.ValidateAddress(address); err != nil {
		return "", "", err
	}
	return address, chain, nil
}

func normalizeSymbol(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return "", &domain.ValidationError{Field: "symbol", Msg: fmt.Sprintf("%q is not a token symbol", s)}
	}
	return s, nil
}
