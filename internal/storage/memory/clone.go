package memory

import (
	"math/big"

	"yield-adapter-lab/internal/domain"
)

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneReport(r *domain.HarvestReport) *domain.HarvestReport {
	c := *r
	c.IdleDeployed = cloneInt(r.IdleDeployed)
	c.Staked = cloneInt(r.Staked)
	c.TotalAssets = cloneInt(r.TotalAssets)
	c.PrevTotal = cloneInt(r.PrevTotal)
	c.Profit = cloneInt(r.Profit)
	c.Loss = cloneInt(r.Loss)
	if r.Rewards != nil {
		c.Rewards = make([]domain.RewardAmount, len(r.Rewards))
		for i, rw := range r.Rewards {
			c.Rewards[i] = domain.RewardAmount{Token: rw.Token, Amount: cloneInt(rw.Amount)}
		}
	}
	return &c
}

func cloneOperation(op *domain.OperationRecord) *domain.OperationRecord {
	c := *op
	if op.Token != nil {
		token := *op.Token
		c.Token = &token
	}
	c.Amount = cloneInt(op.Amount)
	return &c
}

func cloneSnapshot(s *domain.StakeSnapshot) *domain.StakeSnapshot {
	c := *s
	c.Staked = cloneInt(s.Staked)
	c.Idle = cloneInt(s.Idle)
	return &c
}
