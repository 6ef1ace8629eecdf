// Package evmrpc wraps go-ethereum's ethclient for the EVM wallet
// tracker: balance reads, block height, log scans for the three
// transfer topics, and cached ERC-20/721/1155 metadata reads. Grounded
// on the AgentMesh-Net indexer's chain watcher (ethclient.DialContext,
// ethereum.FilterQuery, inline ABI JSON) generalized from event
// subscription to per-tick polling, since the Wallet Watcher's contract
// is "fetch logs in [from, to] on a timer," not "stream forever."
package evmrpc

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/svyatogor45/marketmonitor/internal/errs"
	"github.com/svyatogor45/marketmonitor/pkg/retry"
)

// Transfer topic signatures the Wallet Watcher scans for. ERC-721's
// Transfer event shares ERC-20's topic; disambiguation is by decimals
// of the emitting contract, done by the caller via TokenMetadata.
var (
	TopicERC20Transfer       = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	TopicERC1155TransferSingle = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")
	TopicERC1155TransferBatch  = common.HexToHash("0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb")
)

const erc20MetadataABIJSON = `[
  {"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// TokenMetadata is a cached contract name/symbol/decimals triple.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Client is a long-lived, process-wide JSON-RPC client for one chain.
type Client struct {
	chainName string
	eth       *ethclient.Client
	abi       abi.ABI

	metaMu    sync.RWMutex
	metaCache map[common.Address]TokenMetadata
}

// Dial connects to rpcURL for the named chain. The connection is kept
// open for the process lifetime; callers never redial per tick.
func Dial(ctx context.Context, chainName, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errs.Wrap(errs.TransientNetwork, err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(erc20MetadataABIJSON))
	if err != nil {
		return nil, err
	}
	return &Client{
		chainName: chainName,
		eth:       eth,
		abi:       parsedABI,
		metaCache: make(map[common.Address]TokenMetadata),
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// BlockNumber returns the current head block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := retry.Do(ctx, func() error {
		var err error
		n, err = c.eth.BlockNumber(ctx)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		return nil
	}, retry.NetworkConfig())
	return n, err
}

// NativeBalance returns the wallet's native-coin balance in wei.
func (c *Client) NativeBalance(ctx context.Context, wallet common.Address) (*big.Int, error) {
	var bal *big.Int
	err := retry.Do(ctx, func() error {
		var err error
		bal, err = c.eth.BalanceAt(ctx, wallet, nil)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		return nil
	}, retry.NetworkConfig())
	return bal, err
}

// FilterLogs fetches logs for a single topic in [fromBlock, toBlock],
// filtered to no particular address (every ERC-20/721/1155 contract is
// in scope). Callers filter by indexed from/to matching the wallet
// themselves, since go-ethereum's FilterQuery only ANDs topics, it
// doesn't match "this address appears in topic[1] OR topic[2]".
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, topic common.Hash) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{{topic}},
	}
	var logs []types.Log
	err := retry.Do(ctx, func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		if err != nil {
			return errs.Wrap(errs.TransientNetwork, err)
		}
		return nil
	}, retry.NetworkConfig())
	return logs, err
}

// TokenMetadataFor reads name/symbol/decimals for contract, memoized
// for the process lifetime (contract metadata never changes).
func (c *Client) TokenMetadataFor(ctx context.Context, contract common.Address) (TokenMetadata, error) {
	c.metaMu.RLock()
	if meta, ok := c.metaCache[contract]; ok {
		c.metaMu.RUnlock()
		return meta, nil
	}
	c.metaMu.RUnlock()

	meta, err := c.readTokenMetadata(ctx, contract)
	if err != nil {
		return TokenMetadata{}, err
	}

	c.metaMu.Lock()
	c.metaCache[contract] = meta
	c.metaMu.Unlock()
	return meta, nil
}

func (c *Client) readTokenMetadata(ctx context.Context, contract common.Address) (TokenMetadata, error) {
	call := func(method string) ([]byte, error) {
		data, err := c.abi.Pack(method)
		if err != nil {
			return nil, err
		}
		msg := ethereum.CallMsg{To: &contract, Data: data}
		return c.eth.CallContract(ctx, msg, nil)
	}

	var meta TokenMetadata

	if out, err := call("name"); err == nil {
		if vals, err := c.abi.Unpack("name", out); err == nil && len(vals) == 1 {
			meta.Name, _ = vals[0].(string)
		}
	}
	if out, err := call("symbol"); err == nil {
		if vals, err := c.abi.Unpack("symbol", out); err == nil && len(vals) == 1 {
			meta.Symbol, _ = vals[0].(string)
		}
	}
	if out, err := call("decimals"); err == nil {
		if vals, err := c.abi.Unpack("decimals", out); err == nil && len(vals) == 1 {
			if d, ok := vals[0].(uint8); ok {
				meta.Decimals = d
			}
		}
	}
	return meta, nil
}
