package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EthBackend is the slice of ethclient.Client the adapter uses.
// *ethclient.Client satisfies it.
type EthBackend interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ EthBackend = (*ethclient.Client)(nil)

// EthClient adapts a go-ethereum backend to the Client interface.
type EthClient struct {
	backend EthBackend
}

func NewEthClient(backend EthBackend) *EthClient {
	return &EthClient{backend: backend}
}

// DialEth connects an RPC endpoint and wraps it.
func DialEth(ctx context.Context, rawURL string) (*EthClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing ledger endpoint")
	}
	return NewEthClient(c), nil
}

func (c *EthClient) GetLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	eq := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{q.Address},
		Topics:    q.Topics,
	}
	raw, err := c.backend.FilterLogs(ctx, eq)
	if err != nil {
		return nil, errors.Wrap(err, "fetching logs")
	}
	out := make([]Log, 0, len(raw))
	for _, l := range raw {
		out = append(out, Log{
			TxHash:      l.TxHash,
			BlockHash:   l.BlockHash,
			BlockNumber: l.BlockNumber,
			Index:       l.Index,
			Topics:      l.Topics,
			Data:        l.Data,
			Removed:     l.Removed,
		})
	}
	return out, nil
}

func (c *EthClient) GetBlock(ctx context.Context, number uint64) (*BlockInfo, error) {
	hdr, err := c.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, errors.Wrapf(err, "fetching header %d", number)
	}
	return &BlockInfo{
		Number:     hdr.Number.Uint64(),
		Hash:       hdr.Hash(),
		ParentHash: hdr.ParentHash,
		Timestamp:  hdr.Time,
	}, nil
}

func (c *EthClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "fetching head block number")
	}
	return n, nil
}
