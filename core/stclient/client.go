// Package stclient is the SDK entry point: it wires a ledger client, a
// state store and the sync engine behind one validated facade.
package stclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/strataoptions/sdk-go/core/greeks"
	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/logging"
	"github.com/strataoptions/sdk-go/core/store"
	syncengine "github.com/strataoptions/sdk-go/core/sync"
	"github.com/strataoptions/sdk-go/core/tokenid"
	"github.com/strataoptions/sdk-go/core/types"
)

// ErrNoLedger is returned by sync-layer operations on a client built
// without WithLedger. Pure valuation needs no ledger.
var ErrNoLedger = errors.New("no ledger configured; sync operations need WithLedger")

type Client struct {
	Ledger ledger.Client
	Store  store.KV `validate:"required"`

	engine  *syncengine.Engine
	syncCfg syncengine.Config
	logger  *zap.Logger
}

type Option func(*Client)

// NewClient builds a client. The store defaults to in-memory, which
// callers replace with a durable one for anything beyond tests. Without
// a ledger the client still decodes and values positions; the sync-layer
// operations return ErrNoLedger.
func NewClient(options ...Option) (*Client, error) {
	c := &Client{logger: logging.Logger}
	for _, option := range options {
		option(c)
	}
	if c.Store == nil {
		c.Store = store.NewMemory()
	}

	if err := c.Validate(); err != nil {
		return nil, errors.WithStack(err)
	}

	if c.Ledger != nil {
		c.syncCfg.Ledger = c.Ledger
		c.syncCfg.Store = c.Store
		engine, err := syncengine.NewEngine(c.syncCfg)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		c.engine = engine
	}
	return c, nil
}

func (c *Client) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func WithLedger(l ledger.Client) Option {
	return func(c *Client) {
		c.Ledger = l
	}
}

func WithStore(kv store.KV) Option {
	return func(c *Client) {
		c.Store = kv
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		logging.SetLogger(logger)
	}
}

// WithSyncConfig overrides scan tuning. Ledger and Store fields on the
// passed config are ignored; the client's own are used.
func WithSyncConfig(cfg syncengine.Config) Option {
	return func(c *Client) {
		c.syncCfg = cfg
	}
}

// SyncAccount scans the scope up to the chain head. See
// sync.Engine.SyncAccount.
func (c *Client) SyncAccount(ctx context.Context, scope types.Scope, progress types.ProgressFunc) (*types.Summary, error) {
	if c.engine == nil {
		return nil, errors.WithStack(ErrNoLedger)
	}
	return c.engine.SyncAccount(ctx, scope, progress)
}

// TrackedPositions lists the scope's open positions.
func (c *Client) TrackedPositions(ctx context.Context, scope types.Scope) ([]*syncengine.TrackedPosition, error) {
	if c.engine == nil {
		return nil, errors.WithStack(ErrNoLedger)
	}
	return c.engine.TrackedPositions(ctx, scope)
}

// RegisterPending records an optimistic open or close ahead of its log.
func (c *Client) RegisterPending(ctx context.Context, scope types.Scope, rec types.PendingPosition) error {
	if c.engine == nil {
		return errors.WithStack(ErrNoLedger)
	}
	return c.engine.RegisterPending(ctx, scope, rec)
}

// ConfirmPending folds a pending record into the tracked set.
func (c *Client) ConfirmPending(ctx context.Context, scope types.Scope, txRef common.Hash) error {
	if c.engine == nil {
		return errors.WithStack(ErrNoLedger)
	}
	return c.engine.ConfirmPending(ctx, scope, txRef)
}

// FailPending discards a pending record.
func (c *Client) FailPending(ctx context.Context, scope types.Scope, txRef common.Hash) error {
	if c.engine == nil {
		return errors.WithStack(ErrNoLedger)
	}
	return c.engine.FailPending(ctx, scope, txRef)
}

// DecodePosition opens an identifier (decimal or 0x-hex) into its pool
// context and legs.
func (c *Client) DecodePosition(id string) (types.PoolContext, []types.Leg, error) {
	parsed, err := tokenid.ParseID(id)
	if err != nil {
		return types.PoolContext{}, nil, err
	}
	return tokenid.Decode(parsed)
}

// PositionGreeks decodes an identifier and evaluates its value, delta and
// dollar-gamma at the given tick.
func (c *Client) PositionGreeks(id *uint256.Int, snap types.PositionSnapshot, currentTick int32) (greeks.PositionGreeks, error) {
	poolCtx, legs, err := tokenid.Decode(id)
	if err != nil {
		return greeks.PositionGreeks{}, err
	}
	return greeks.Compute(poolCtx, legs, snap, currentTick)
}

// TrackedPositionGreeks evaluates one tracked position by its stored
// identifier and snapshot.
func (c *Client) TrackedPositionGreeks(p *syncengine.TrackedPosition, currentTick int32) (greeks.PositionGreeks, error) {
	id, err := tokenid.ParseID(p.ID)
	if err != nil {
		return greeks.PositionGreeks{}, err
	}
	return c.PositionGreeks(id, types.PositionSnapshot{
		Size:     p.Size,
		MintTick: p.MintTick,
	}, currentTick)
}
