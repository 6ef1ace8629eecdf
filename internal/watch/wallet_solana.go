package watch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/internal/solrpc"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

const (
	solRecentSignatureLimit = 20
	solSlotLookback         = 1000
	solLamportsPerSOL       = 1_000_000_000
	solDustLamports         = 1000 // |delta| > 1e-6 SOL
)

var knownDexMarkers = []string{"jupiter", "orca", "raydium", "serum"}

// SolanaTracker implements WalletTracker for Solana. A single instance
// is long-lived and process-wide, mirroring EVMTracker's lifecycle.
type SolanaTracker struct {
	client      *solrpc.Client
	concurrency int
	txSeen      *Cache[string, struct{}]
}

func NewSolanaTracker(client *solrpc.Client, concurrency int) *SolanaTracker {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &SolanaTracker{
		client:      client,
		concurrency: concurrency,
		txSeen:      NewCache[string, struct{}](16, 50000, 24*time.Hour, 30*time.Minute),
	}
}

func (t *SolanaTracker) Chain() string { return "solana" }

func (t *SolanaTracker) GetWalletData(ctx context.Context, wallets []string) (map[string]model.WalletSnapshot, error) {
	if len(wallets) == 0 {
		return nil, nil
	}
	currentSlot, err := t.client.Slot(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]model.WalletSnapshot, len(wallets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, t.concurrency)

	for _, wallet := range wallets {
		wallet := wallet
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			snap, err := t.pollWallet(ctx, wallet, currentSlot)
			if err != nil {
				utils.Warn("solana wallet tracker: poll failed", utils.Target(wallet), utils.Err(err))
				return
			}
			mu.Lock()
			results[wallet] = snap
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results, nil
}

func (t *SolanaTracker) pollWallet(ctx context.Context, wallet string, currentSlot uint64) (model.WalletSnapshot, error) {
	pub, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	balance, err := t.client.Balance(ctx, pub)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	sigs, err := t.client.RecentSignatures(ctx, pub, solRecentSignatureLimit)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	var events []model.TxEvent
	for _, sig := range sigs {
		if currentSlot > solSlotLookback && sig.Slot < currentSlot-solSlotLookback {
			continue
		}
		key := "solana:" + sig.Signature.String()
		if t.txSeen.Seen(key) {
			continue
		}
		tx, err := t.client.GetTransaction(ctx, sig.Signature)
		if err != nil {
			utils.Warn("solana wallet tracker: get transaction failed", utils.Target(wallet), utils.Err(err))
			continue
		}
		events = append(events, classifySolanaTx(pub, sig.Signature.String(), tx)...)
	}

	balFloat := float64(balance) / solLamportsPerSOL
	return model.WalletSnapshot{
		Chain:        "solana",
		Balance:      balFloat,
		Transactions: events,
		LastUpdated:  time.Now(),
	}, nil
}

func classifySolanaTx(wallet solana.PublicKey, sig string, tx *solrpc.Transaction) []model.TxEvent {
	walletIdx := -1
	for i, key := range tx.AccountKeys {
		if key.Equals(wallet) {
			walletIdx = i
			break
		}
	}
	if walletIdx < 0 || walletIdx >= len(tx.PreBalances) || walletIdx >= len(tx.PostBalances) {
		return nil
	}

	solDelta := int64(tx.PostBalances[walletIdx]) - int64(tx.PreBalances[walletIdx])
	if walletIdx == 0 {
		solDelta += int64(tx.Fee)
	}

	tokenDeltas := solanaTokenDeltas(wallet, tx)

	var events []model.TxEvent
	switch {
	case len(tokenDeltas) == 2 && tx.Success:
		events = append(events, tokenTradeEvent(sig, tx.Slot, tokenDeltas, solDelta, tx.LogMessages))
	default:
		for mint, delta := range tokenDeltas {
			events = append(events, nftOrTokenTransferEvent(sig, tx.Slot, mint, delta))
		}
	}

	if isMarketplaceTrade(tx.LogMessages) {
		// direction follows the SOL delta sign, not the log text: SOL
		// left the wallet to pay for the NFT on a buy, arrived on a sell.
		direction := "sell"
		if solDelta < 0 {
			direction = "buy"
		}
		events = append(events, model.TxEvent{
			Kind: model.ConditionNftTrade, Chain: "solana", Hash: sig, BlockNumber: tx.Slot,
			Fields: map[string]interface{}{
				"direction":      direction,
				"price_lamports": solDelta,
			},
		})
	}

	if solDelta != 0 && abs64(solDelta) > solDustLamports {
		kind := model.ConditionNativeIn
		if solDelta < 0 {
			kind = model.ConditionNativeOut
		}
		events = append(events, model.TxEvent{
			Kind: kind, Chain: "solana", Hash: sig, BlockNumber: tx.Slot,
			Fields: map[string]interface{}{"lamports": solDelta, "sol": float64(solDelta) / solLamportsPerSOL},
		})
	}

	return events
}

type mintDelta struct {
	delta    float64
	decimals uint8
}

func solanaTokenDeltas(wallet solana.PublicKey, tx *solrpc.Transaction) map[string]mintDelta {
	pre := make(map[string]float64)
	decimals := make(map[string]uint8)
	for _, tb := range tx.PreTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(wallet) || tb.UiTokenAmount == nil {
			continue
		}
		mint := tb.Mint.String()
		if tb.UiTokenAmount.UiAmount != nil {
			pre[mint] = *tb.UiTokenAmount.UiAmount
		}
		decimals[mint] = tb.UiTokenAmount.Decimals
	}

	out := make(map[string]mintDelta)
	for _, tb := range tx.PostTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(wallet) || tb.UiTokenAmount == nil {
			continue
		}
		mint := tb.Mint.String()
		var post float64
		if tb.UiTokenAmount.UiAmount != nil {
			post = *tb.UiTokenAmount.UiAmount
		}
		out[mint] = mintDelta{delta: post - pre[mint], decimals: tb.UiTokenAmount.Decimals}
		delete(pre, mint)
	}
	for mint, amt := range pre {
		out[mint] = mintDelta{delta: -amt, decimals: decimals[mint]}
	}
	return out
}

func tokenTradeEvent(sig string, slot uint64, deltas map[string]mintDelta, solDelta int64, logs []string) model.TxEvent {
	var fromMint, toMint string
	for mint, d := range deltas {
		if d.delta < 0 {
			fromMint = mint
		} else if d.delta > 0 {
			toMint = mint
		}
	}
	side := "unknown"
	if solDelta < 0 {
		side = "buy"
	} else if solDelta > 0 {
		side = "sell"
	}
	dex := inferDex(logs)
	return model.TxEvent{
		Kind: model.ConditionTokenTrade, Chain: "solana", Hash: sig, BlockNumber: slot,
		Fields: map[string]interface{}{
			"side": side, "from_mint": fromMint, "to_mint": toMint, "dex": dex,
		},
	}
}

func nftOrTokenTransferEvent(sig string, slot uint64, mint string, d mintDelta) model.TxEvent {
	in := d.delta > 0
	kind := model.ConditionTokenOut
	if in {
		kind = model.ConditionTokenIn
	}
	if d.decimals == 0 && (d.delta == 1 || d.delta == -1) {
		kind = model.ConditionNftOut
		if in {
			kind = model.ConditionNftIn
		}
	}
	return model.TxEvent{
		Kind: kind, Chain: "solana", Hash: sig, BlockNumber: slot,
		Fields: map[string]interface{}{"mint": mint, "amount": d.delta},
	}
}

func inferDex(logs []string) string {
	for _, line := range logs {
		lower := strings.ToLower(line)
		for _, marker := range knownDexMarkers {
			if strings.Contains(lower, marker) {
				return marker
			}
		}
	}
	return "Unknown"
}

// isMarketplaceTrade reports whether the transaction's program logs show
// a marketplace buy/sell instruction. Direction itself comes from the SOL
// delta sign, not this text, since a log can mention both legs of a swap.
func isMarketplaceTrade(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, "Instruction: Sell") || strings.Contains(line, "Instruction: Buy") {
			return true
		}
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
