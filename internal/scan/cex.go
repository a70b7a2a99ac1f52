package scan

// Funding origin tagging.
//
// A deployer whose first inbound transfer comes straight out of a
// centralized exchange withdrawal is only weakly linked to its funder:
// the hot wallet fans out to millions of unrelated customers, so sibling
// analysis against it is meaningless and the cluster stage skips it. A
// deployer funded by a private wallet inherits that wallet's history
// instead, which is where serial operations show up.
//
// The addresses below are exchange hot wallets drawn from public
// explorer labels. In production this would be a continuously maintained
// table of tagged addresses; this is a representative set covering the
// venues that dominate SOL withdrawal volume.
var knownExchangeWallets = map[string]string{
	"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9": "Binance",
	"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM": "Binance",
	"2AQdpHJ2JpcEgPiATUXjQxA8QmafFegfQwSLWSprPicm": "Coinbase",
	"H8sMJSCQxfKiFTCfDR3DUMLPwcRbM61LGFJ8N4dK3WjS": "Coinbase",
	"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5": "Kraken",
	"AC5RDfQFmDS1deWZos921JfqscXdByf8BKHs5ACWjtW2": "Bybit",
	"5VCwKtCXgCJ6kit5FybXjvriW3xELsFDhYrPSqtJNmcD": "OKX",
	"u6PJ8DtQuPFnfmwNbPrDdhvnsGF4ufFjSbiZbBFjvbpb": "Gate.io",
	"BmFdpraQhkiDQE6SnfG5omcA1VwzqfXrwtNYBwWTymy6": "KuCoin",
	"ASTyfSima4LLAdDgoFGkgqoKowG1LZFDr9fAQrg7iaJZ": "MEXC",
	"GJRs4FwHtemZ5ZE9x3FNvJ8TMwitKTh21yxdRPqn7npE": "Crypto.com",
}

// IsKnownExchange returns the exchange name behind a tagged hot wallet.
func IsKnownExchange(addr string) (string, bool) {
	name, ok := knownExchangeWallets[addr]
	return name, ok
}
