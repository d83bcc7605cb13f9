package rules

import "github.com/opensource-web3/kestrel/internal/domain"

// BuiltinRules returns the override rules shipped with the service. They
// cover exposure the model does not price directly: raw transaction value
// and pool depth. All are escalation-only and apply to every chain. The
// repository is seeded with these on first boot; operators can disable or
// replace them afterwards.
func BuiltinRules() []*domain.OverrideRule {
	return []*domain.OverrideRule{
		{
			ID:          "builtin-whale-value",
			Name:        "Whale value routing",
			Description: "Transfers of 100 ETH or more always use the private mempool.",
			Version:     "builtin",
			Expression:  "value_eth >= 100.0",
			EscalateTo:  domain.ProtectionPrivate,
			Enabled:     true,
		},
		{
			ID:          "builtin-wide-slippage",
			Name:        "Wide slippage tolerance",
			Description: "Slippage tolerance of 3% or more invites sandwiching; hold for timelock execution.",
			Version:     "builtin",
			Expression:  "slippage_tolerance >= 3.0",
			EscalateTo:  domain.ProtectionTimelock,
			Enabled:     true,
		},
		{
			ID:          "builtin-thin-pool",
			Name:        "Thin pool impact",
			Description: "A 10+ ETH trade into a shallow pool moves price enough to invite a backrun.",
			Version:     "builtin",
			Expression:  "value_eth >= 10.0 && liquidity_depth < 50000.0",
			EscalateTo:  domain.ProtectionTimelock,
			Enabled:     true,
		},
	}
}
