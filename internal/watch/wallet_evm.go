package watch

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/svyatogor45/marketmonitor/internal/config"
	"github.com/svyatogor45/marketmonitor/internal/evmrpc"
	"github.com/svyatogor45/marketmonitor/internal/model"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

var (
	uint256Type, _      = abi.NewType("uint256", "", nil)
	uint256ArrayType, _ = abi.NewType("uint256[]", "", nil)
	uint256PairArgs     = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
	uint256ArraysArgs   = abi.Arguments{{Type: uint256ArrayType}, {Type: uint256ArrayType}}
)

func decodeUint256Pair(data []byte) (*big.Int, *big.Int, error) {
	vals, err := uint256PairArgs.Unpack(data)
	if err != nil || len(vals) != 2 {
		return nil, nil, fmt.Errorf("evm wallet tracker: decode uint256 pair: %w", err)
	}
	a, _ := vals[0].(*big.Int)
	b, _ := vals[1].(*big.Int)
	return a, b, nil
}

func decodeUint256Arrays(data []byte) ([]*big.Int, []*big.Int, error) {
	vals, err := uint256ArraysArgs.Unpack(data)
	if err != nil || len(vals) != 2 {
		return nil, nil, fmt.Errorf("evm wallet tracker: decode uint256 arrays: %w", err)
	}
	a, _ := vals[0].([]*big.Int)
	b, _ := vals[1].([]*big.Int)
	return a, b, nil
}

// EVMTracker implements WalletTracker for one EVM chain (Ethereum, BSC,
// or Base — one ChainDescriptor, one tracker instance each, mirroring
// the teacher's single exchange.Exchange implementation type backing
// several concrete exchanges via distinct config per instance).
type EVMTracker struct {
	chain           config.ChainConfig
	client          *evmrpc.Client
	coldStartBlocks int64
	concurrency     int

	lastSeenBlock *Cache[string, uint64]
	lastBalance   *Cache[string, *big.Int]
	txSeen        *Cache[string, struct{}]
}

// NewEVMTracker builds a tracker for chain, backed by client.
func NewEVMTracker(chain config.ChainConfig, client *evmrpc.Client, coldStartBlocks int64, concurrency int) *EVMTracker {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &EVMTracker{
		chain:           chain,
		client:          client,
		coldStartBlocks: coldStartBlocks,
		concurrency:     concurrency,
		lastSeenBlock:   NewCache[string, uint64](8, 4000, 0, 0),
		lastBalance:     NewCache[string, *big.Int](8, 4000, 0, 0),
		txSeen:          NewCache[string, struct{}](16, 50000, 24*time.Hour, 30*time.Minute),
	}
}

func (t *EVMTracker) Chain() string { return t.chain.Name }

// GetWalletData polls every wallet for balance and log activity since
// its last-seen block, fanning wallets out with bounded parallelism
// (width t.concurrency) per the wallet watcher's ≤10-per-chain contract.
func (t *EVMTracker) GetWalletData(ctx context.Context, wallets []string) (map[string]model.WalletSnapshot, error) {
	if len(wallets) == 0 {
		return nil, nil
	}
	currentBlock, err := t.client.BlockNumber(ctx)
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
			snap, err := t.pollWallet(ctx, wallet, currentBlock)
			if err != nil {
				utils.Warn("evm wallet tracker: poll failed", utils.Target(wallet), utils.String("chain", t.chain.Name), utils.Err(err))
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

func (t *EVMTracker) pollWallet(ctx context.Context, wallet string, currentBlock uint64) (model.WalletSnapshot, error) {
	addr := common.HexToAddress(wallet)

	balance, err := t.client.NativeBalance(ctx, addr)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	var nativeDelta *big.Int
	if cached, ok := t.lastBalance.Get(wallet); ok {
		nativeDelta = new(big.Int).Sub(balance, cached)
	}
	t.lastBalance.Set(wallet, new(big.Int).Set(balance))

	fromBlock, ok := t.lastSeenBlock.Get(wallet)
	if !ok {
		if currentBlock > uint64(t.coldStartBlocks) {
			fromBlock = currentBlock - uint64(t.coldStartBlocks)
		}
	} else if currentBlock > uint64(t.coldStartBlocks) && fromBlock < currentBlock-uint64(t.coldStartBlocks) {
		utils.Warn("evm watcher: cold-start window may have missed blocks",
			utils.Target(wallet), utils.String("chain", t.chain.Name))
	}
	t.lastSeenBlock.Set(wallet, currentBlock)

	logs, err := t.fetchLogs(ctx, fromBlock, currentBlock)
	if err != nil {
		return model.WalletSnapshot{}, err
	}

	events := t.classify(ctx, addr, logs, nativeDelta)

	balFloat, _ := new(big.Float).SetInt(balance).Float64()
	return model.WalletSnapshot{
		Chain:        t.chain.Name,
		Balance:      balFloat,
		Transactions: events,
		LastUpdated:  time.Now(),
	}, nil
}

type evmLogs struct {
	erc20   []types.Log
	single  []types.Log
	batch   []types.Log
}

func (t *EVMTracker) fetchLogs(ctx context.Context, fromBlock, toBlock uint64) (evmLogs, error) {
	var out evmLogs
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fetch := func(topic common.Hash, dst *[]types.Log) {
		defer wg.Done()
		logs, err := t.client.FilterLogs(ctx, fromBlock, toBlock, topic)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		*dst = logs
	}

	wg.Add(3)
	go fetch(evmrpc.TopicERC20Transfer, &out.erc20)
	go fetch(evmrpc.TopicERC1155TransferSingle, &out.single)
	go fetch(evmrpc.TopicERC1155TransferBatch, &out.batch)
	wg.Wait()

	if firstErr != nil && len(out.erc20) == 0 && len(out.single) == 0 && len(out.batch) == 0 {
		return out, firstErr
	}
	return out, nil
}

// txGroup collects every log touching wallet within one transaction, so
// a token transfer and its paired native-balance move can be coalesced
// into a single token_trade/nft_trade event.
type txGroup struct {
	hash        common.Hash
	blockNumber uint64
	erc20       []types.Log
	nft         []nftLeg
}

type nftLeg struct {
	log     types.Log
	tokenID *big.Int
	amount  *big.Int
}

func (t *EVMTracker) classify(ctx context.Context, wallet common.Address, logs evmLogs, nativeDelta *big.Int) []model.TxEvent {
	groups := make(map[common.Hash]*txGroup)
	group := func(lg types.Log) *txGroup {
		g, ok := groups[lg.TxHash]
		if !ok {
			g = &txGroup{hash: lg.TxHash, blockNumber: lg.BlockNumber}
			groups[lg.TxHash] = g
		}
		return g
	}

	for _, lg := range logs.erc20 {
		if len(lg.Topics) < 3 {
			continue
		}
		from := common.BytesToAddress(lg.Topics[1].Bytes()[12:])
		to := common.BytesToAddress(lg.Topics[2].Bytes()[12:])
		if from != wallet && to != wallet {
			continue
		}
		group(lg).erc20 = append(group(lg).erc20, lg)
	}
	for _, lg := range logs.single {
		if len(lg.Topics) < 4 {
			continue
		}
		from := common.BytesToAddress(lg.Topics[2].Bytes()[12:])
		to := common.BytesToAddress(lg.Topics[3].Bytes()[12:])
		if from != wallet && to != wallet {
			continue
		}
		id, amount, err := decodeUint256Pair(lg.Data)
		if err != nil {
			continue
		}
		group(lg).nft = append(group(lg).nft, nftLeg{log: lg, tokenID: id, amount: amount})
	}
	for _, lg := range logs.batch {
		if len(lg.Topics) < 4 {
			continue
		}
		from := common.BytesToAddress(lg.Topics[2].Bytes()[12:])
		to := common.BytesToAddress(lg.Topics[3].Bytes()[12:])
		if from != wallet && to != wallet {
			continue
		}
		ids, amounts, err := decodeUint256Arrays(lg.Data)
		if err != nil {
			continue
		}
		for i := range ids {
			leg := nftLeg{log: lg, tokenID: ids[i]}
			if i < len(amounts) {
				leg.amount = amounts[i]
			}
			group(lg).nft = append(group(lg).nft, leg)
		}
	}

	var events []model.TxEvent
	for hash, g := range groups {
		key := t.chain.Name + ":" + hash.Hex()
		if t.txSeen.Seen(key) {
			continue
		}
		events = append(events, t.classifyGroup(ctx, wallet, g, nativeDelta)...)
	}
	return events
}

// erc20Leg is an ERC-20 transfer touching the wallet, kept around after
// the per-log event is emitted so a same-tx NFT leg can be priced against
// it (an NFT bought or sold for a token rather than the chain's native
// currency).
type erc20Leg struct {
	contract string
	symbol   string
	amount   float64
}

func (t *EVMTracker) classifyGroup(ctx context.Context, wallet common.Address, g *txGroup, nativeDelta *big.Int) []model.TxEvent {
	var events []model.TxEvent

	// tokenIn/tokenOut mirror the Python tracker's token_in/token_out:
	// the last ERC-20 leg seen moving into, respectively out of, the
	// wallet within this transaction. An NFT leg pairs against whichever
	// one prices it.
	var tokenIn, tokenOut *erc20Leg

	var tokenTransferUsed bool
	for _, lg := range g.erc20 {
		from := common.BytesToAddress(lg.Topics[1].Bytes()[12:])
		out := from == wallet
		value := new(big.Int).SetBytes(lg.Data)
		if len(lg.Topics) == 4 {
			value = new(big.Int).SetBytes(lg.Topics[3].Bytes())
		}

		meta, _ := t.client.TokenMetadataFor(ctx, lg.Address)
		isNFT := len(lg.Topics) == 4 || (meta.Decimals == 0 && value.Cmp(big.NewInt(1)) == 0)

		amountFloat, _ := new(big.Float).SetInt(value).Float64()

		if !isNFT {
			leg := &erc20Leg{contract: lg.Address.Hex(), symbol: meta.Symbol, amount: amountFloat}
			if out {
				tokenOut = leg
			} else {
				tokenIn = leg
			}
		}

		if !isNFT && !tokenTransferUsed && nativeDelta != nil && nativeDelta.Sign() != 0 {
			// Opposite-direction native+token move in the same tx: buy if
			// native went out and token came in, sell otherwise.
			nativeOut := nativeDelta.Sign() < 0
			if nativeOut == out {
				// same direction: not a trade pairing, fall through to standalone event
			} else {
				tokenTransferUsed = true
				side := "buy"
				if out {
					side = "sell"
				}
				events = append(events, model.TxEvent{
					Kind: model.ConditionTokenTrade, Chain: t.chain.Name,
					Hash: g.hash.Hex(), BlockNumber: g.blockNumber,
					Fields: map[string]interface{}{
						"side": side, "token": meta.Symbol, "amount": amountFloat,
						"contract": lg.Address.Hex(),
					},
				})
				continue
			}
		}

		kind := model.ConditionTokenIn
		if out {
			kind = model.ConditionTokenOut
		}
		if isNFT {
			kind = model.ConditionNftIn
			if out {
				kind = model.ConditionNftOut
			}
		}
		events = append(events, model.TxEvent{
			Kind: kind, Chain: t.chain.Name, Hash: g.hash.Hex(), BlockNumber: g.blockNumber,
			Fields: map[string]interface{}{
				"contract": lg.Address.Hex(), "symbol": meta.Symbol, "amount": amountFloat,
			},
		})
	}

	for _, leg := range g.nft {
		from := common.BytesToAddress(leg.log.Topics[2].Bytes()[12:])
		to := common.BytesToAddress(leg.log.Topics[3].Bytes()[12:])
		in := to == wallet
		kind := model.ConditionNftOut
		if in {
			kind = model.ConditionNftIn
		}

		amount := 0.0
		if leg.amount != nil {
			amount, _ = new(big.Float).SetInt(leg.amount).Float64()
		}
		tokenID := ""
		if leg.tokenID != nil {
			tokenID = leg.tokenID.String()
		}

		if nativeDelta != nil && nativeDelta.Sign() != 0 {
			nativeOut := nativeDelta.Sign() < 0
			direction := "sell"
			if in {
				direction = "buy"
			}
			if nativeOut == in {
				events = append(events, model.TxEvent{
					Kind: model.ConditionNftTrade, Chain: t.chain.Name,
					Hash: g.hash.Hex(), BlockNumber: g.blockNumber,
					Fields: map[string]interface{}{
						"collection": leg.log.Address.Hex(), "token_id": tokenID,
						"amount": amount, "direction": direction,
					},
				})
				continue
			}
		}

		// No native-currency pairing: check for an ERC-20 counterparty
		// leg instead (e.g. an NFT bought or sold for WETH).
		var priceLeg *erc20Leg
		if in {
			priceLeg = tokenOut
		} else {
			priceLeg = tokenIn
		}
		if priceLeg != nil {
			direction := "sell"
			counterparty := to.Hex()
			if in {
				direction = "buy"
				counterparty = from.Hex()
			}
			events = append(events, model.TxEvent{
				Kind: model.ConditionNftTrade, Chain: t.chain.Name,
				Hash: g.hash.Hex(), BlockNumber: g.blockNumber,
				Fields: map[string]interface{}{
					"collection": leg.log.Address.Hex(), "token_id": tokenID,
					"amount": amount, "direction": direction,
					"counterparty":       counterparty,
					"price_token":        priceLeg.contract,
					"price_token_symbol": priceLeg.symbol,
					"price_token_amount": priceLeg.amount,
				},
			})
			continue
		}

		events = append(events, model.TxEvent{
			Kind: kind, Chain: t.chain.Name, Hash: g.hash.Hex(), BlockNumber: g.blockNumber,
			Fields: map[string]interface{}{
				"collection": leg.log.Address.Hex(), "token_id": tokenID, "amount": amount,
			},
		})
	}

	return events
}
