// Package sync reconstructs per-account position state from the ledger's
// event log. It is the sole mutator of tracked positions, checkpoints,
// pending records and chunk statistics, all through the store boundary;
// balances come purely from events, never from a live state read.
package sync

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/strataoptions/sdk-go/core/ledger"
	"github.com/strataoptions/sdk-go/core/store"
)

const (
	// DefaultMaxBlockRange bounds one log-fetch window.
	DefaultMaxBlockRange uint64 = 2000
	// DefaultSafetyDepth is how many blocks below the last checkpoint a
	// reorg recovery will search for a common ancestor.
	DefaultSafetyDepth uint64 = 64
	// DefaultPendingTimeout is how long an unconfirmed pending record
	// survives before the staleness sweep removes it.
	DefaultPendingTimeout = 15 * time.Minute
)

// Config wires an Engine. Ledger and Store are required; the rest
// defaults.
type Config struct {
	Ledger ledger.Client `validate:"required"`
	Store  store.KV      `validate:"required"`

	// DeployBlock is the pool's deployment block, the floor for any scan.
	DeployBlock uint64

	// MaxBlockRange caps one log-fetch window. Providers enforce their own
	// range limits; set this at or below the provider's.
	MaxBlockRange uint64 `validate:"gt=0"`

	// SafetyDepth bounds reorg recovery. A fork deeper than this is
	// unrecoverable for the scope.
	SafetyDepth uint64 `validate:"gt=0"`

	// PendingTimeout ages out unconfirmed pending records.
	PendingTimeout time.Duration `validate:"gt=0"`
}

func (c *Config) applyDefaults() {
	if c.MaxBlockRange == 0 {
		c.MaxBlockRange = DefaultMaxBlockRange
	}
	if c.SafetyDepth == 0 {
		c.SafetyDepth = DefaultSafetyDepth
	}
	if c.PendingTimeout == 0 {
		c.PendingTimeout = DefaultPendingTimeout
	}
}

func (c *Config) validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid sync config")
	}
	return nil
}
