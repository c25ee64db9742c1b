package keeper

import (
	"context"
	"errors"
	"time"

	"yield-adapter-lab/internal/chain"
	"yield-adapter-lab/internal/domain"
)

// HeadSource yields new block heads until ctx is cancelled or the source
// fails, then closes the channel.
type HeadSource interface {
	SubscribeHeads(ctx context.Context) (<-chan domain.Head, error)
}

// ErrInvalidInterval is returned for a non-positive tick interval.
var ErrInvalidInterval = errors.New("tick interval must be positive")

// SimulatedSource mines blocks in an Env on a wall-clock ticker.
type SimulatedSource struct {
	env           *chain.Env
	interval      time.Duration
	blocksPerTick uint64
}

// NewSimulatedSource mines blocksPerTick blocks (at least one) every interval.
func NewSimulatedSource(env *chain.Env, interval time.Duration, blocksPerTick uint64) (*SimulatedSource, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if blocksPerTick == 0 {
		blocksPerTick = 1
	}
	return &SimulatedSource{env: env, interval: interval, blocksPerTick: blocksPerTick}, nil
}

// SubscribeHeads starts the ticker. One head is sent per tick; a tick is
// dropped if the consumer is still busy with the previous head.
func (s *SimulatedSource) SubscribeHeads(ctx context.Context) (<-chan domain.Head, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := make(chan domain.Head, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				block := s.env.Mine(s.blocksPerTick)
				head := domain.Head{Number: block, Timestamp: s.env.Timestamp()}
				select {
				case ch <- head:
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}()
	return ch, nil
}

// FollowSource advances an Env by one block per upstream head, so a live
// head stream can drive simulated vaults. Forwarded heads carry the Env's
// block number and timestamp; the upstream hash is kept.
type FollowSource struct {
	env      *chain.Env
	upstream HeadSource
}

// NewFollowSource wraps upstream.
func NewFollowSource(env *chain.Env, upstream HeadSource) *FollowSource {
	return &FollowSource{env: env, upstream: upstream}
}

// SubscribeHeads subscribes upstream and forwards every head after mining.
func (s *FollowSource) SubscribeHeads(ctx context.Context) (<-chan domain.Head, error) {
	in, err := s.upstream.SubscribeHeads(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.Head)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-in:
				if !ok {
					return
				}
				block := s.env.Mine(1)
				head := domain.Head{Number: block, Hash: h.Hash, Timestamp: s.env.Timestamp()}
				select {
				case out <- head:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
