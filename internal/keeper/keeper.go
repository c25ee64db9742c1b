// Package keeper drives periodic harvests and reward claims from a stream of
// block heads.
package keeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yield-adapter-lab/internal/domain"
	"yield-adapter-lab/internal/observability"
)

// Keeper errors
var (
	ErrNoSource     = errors.New("keeper has no head source")
	ErrSourceClosed = errors.New("head source closed")
)

// Keeper actions, used as metric and status labels.
const (
	ActionHarvest = "harvest"
	ActionClaim   = "claim"
)

// Harvester is the vault surface the keeper calls.
type Harvester interface {
	Report(ctx context.Context, caller common.Address) (*domain.HarvestReport, error)
	Claim(ctx context.Context, caller common.Address) error
}

// Target is one adapter the keeper maintains.
type Target struct {
	Name   string
	Vault  Harvester
	Caller common.Address // keeper address of the adapter
}

// Options contains configuration for creating a Keeper.
type Options struct {
	Source  HeadSource
	Targets []Target

	// HarvestEveryBlocks and ClaimEveryBlocks count heads, not block numbers.
	// Zero disables the action. Defaults: harvest every head, never claim.
	HarvestEveryBlocks uint64
	ClaimEveryBlocks   uint64

	Logger *zap.Logger
}

// Keeper calls Report and Claim on its targets at a fixed head cadence.
type Keeper struct {
	source       HeadSource
	targets      []Target
	harvestEvery uint64
	claimEvery   uint64
	logger       *zap.Logger

	mu     sync.RWMutex
	status Status
}

// Status is a point-in-time view of the keeper.
type Status struct {
	Running   bool                    `json:"running"`
	Started   time.Time               `json:"started,omitempty"`
	HeadsSeen uint64                  `json:"heads_seen"`
	LastBlock uint64                  `json:"last_block"`
	Harvests  int                     `json:"harvests"`
	Claims    int                     `json:"claims"`
	Errors    int                     `json:"errors"`
	Targets   map[string]TargetStatus `json:"targets"`
}

// TargetStatus is the per-target part of Status.
type TargetStatus struct {
	LastReportBlock uint64 `json:"last_report_block,omitempty"`
	LastTotalAssets string `json:"last_total_assets,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// New creates a keeper.
func New(opts Options) *Keeper {
	harvestEvery := opts.HarvestEveryBlocks
	if harvestEvery == 0 && opts.ClaimEveryBlocks == 0 {
		harvestEvery = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	targets := make(map[string]TargetStatus, len(opts.Targets))
	for _, t := range opts.Targets {
		targets[t.Name] = TargetStatus{}
	}

	return &Keeper{
		source:       opts.Source,
		targets:      append([]Target(nil), opts.Targets...),
		harvestEvery: harvestEvery,
		claimEvery:   opts.ClaimEveryBlocks,
		logger:       logger,
		status:       Status{Targets: targets},
	}
}

// Run processes heads until ctx is cancelled.
// A failed harvest or claim is logged and counted; it never stops the loop.
// Returns ctx.Err() on cancellation and ErrSourceClosed if the source ends first.
func (k *Keeper) Run(ctx context.Context) error {
	if k.source == nil {
		return ErrNoSource
	}

	heads, err := k.source.SubscribeHeads(ctx)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.status.Running = true
	k.status.Started = time.Now()
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		k.status.Running = false
		k.mu.Unlock()
	}()

	k.logger.Info("keeper started",
		zap.Int("targets", len(k.targets)),
		zap.Uint64("harvest_every", k.harvestEvery),
		zap.Uint64("claim_every", k.claimEvery),
	)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper stopping")
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSourceClosed
			}
			k.onHead(ctx, head)
		}
	}
}

func (k *Keeper) onHead(ctx context.Context, head domain.Head) {
	k.mu.Lock()
	k.status.HeadsSeen++
	k.status.LastBlock = head.Number
	n := k.status.HeadsSeen
	k.mu.Unlock()
	observability.RecordKeeperHead(head.Number)

	for _, t := range k.targets {
		if k.claimEvery > 0 && n%k.claimEvery == 0 {
			k.claim(ctx, t, head)
		}
		if k.harvestEvery > 0 && n%k.harvestEvery == 0 {
			k.harvest(ctx, t, head)
		}
	}
}

func (k *Keeper) harvest(ctx context.Context, t Target, head domain.Head) {
	report, err := t.Vault.Report(ctx, t.Caller)
	if report == nil {
		k.fail(t, ActionHarvest, head, err)
		return
	}

	k.mu.Lock()
	k.status.Harvests++
	ts := k.status.Targets[t.Name]
	ts.LastReportBlock = report.BlockNumber
	ts.LastTotalAssets = report.TotalAssets.String()
	ts.LastError = ""
	k.status.Targets[t.Name] = ts
	k.mu.Unlock()

	if err != nil {
		// Report succeeded but was not persisted.
		k.fail(t, ActionHarvest, head, err)
	}
}

func (k *Keeper) claim(ctx context.Context, t Target, head domain.Head) {
	if err := t.Vault.Claim(ctx, t.Caller); err != nil {
		k.fail(t, ActionClaim, head, err)
		return
	}
	k.mu.Lock()
	k.status.Claims++
	k.mu.Unlock()
}

func (k *Keeper) fail(t Target, action string, head domain.Head, err error) {
	k.mu.Lock()
	k.status.Errors++
	ts := k.status.Targets[t.Name]
	ts.LastError = err.Error()
	k.status.Targets[t.Name] = ts
	k.mu.Unlock()

	observability.RecordKeeperError(t.Name, action)
	k.logger.Warn("keeper action failed",
		zap.String("adapter", t.Name),
		zap.String("action", action),
		zap.Uint64("block", head.Number),
		zap.Error(err),
	)
}

// Status returns a copy of the current status.
func (k *Keeper) Status() Status {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s := k.status
	s.Targets = make(map[string]TargetStatus, len(k.status.Targets))
	for name, ts := range k.status.Targets {
		s.Targets[name] = ts
	}
	return s
}
