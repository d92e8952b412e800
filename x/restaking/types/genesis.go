package types

import (
	"fmt"

	"cosmossdk.io/math"
)

// GenesisState is the full vault ledger
type GenesisState struct {
	Params      Params               `json:"params"`
	Vault       VaultState           `json:"vault"`
	Positions   []DelegationPosition `json:"positions"`
	Tickets     []UndelegationTicket `json:"tickets"`
	Epochs      []WithdrawalEpoch    `json:"epochs"`
	Withdrawals []PendingWithdrawal  `json:"withdrawals"`
}

// DefaultGenesis returns an empty vault with epoch 1 open
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params:      DefaultParams(),
		Vault:       NewVaultState(),
		Positions:   []DelegationPosition{},
		Tickets:     []UndelegationTicket{},
		Epochs:      []WithdrawalEpoch{NewWithdrawalEpoch(1)},
		Withdrawals: []PendingWithdrawal{},
	}
}

// Validate checks the ledger aggregates against its records
func (gs GenesisState) Validate() error {
	if err := gs.Params.Validate(); err != nil {
		return err
	}
	v := gs.Vault

	delegated := math.ZeroInt()
	seenPos := make(map[string]bool)
	for _, p := range gs.Positions {
		key := p.Adapter + "/" + p.Target
		if p.Adapter == "" || p.Target == "" || seenPos[key] {
			return fmt.Errorf("invalid or duplicate position %s", key)
		}
		if !p.Amount.IsPositive() {
			return fmt.Errorf("position %s must be positive", key)
		}
		seenPos[key] = true
		delegated = delegated.Add(p.Amount)
	}
	if !delegated.Equal(v.TotalDelegated) {
		return fmt.Errorf("total delegated %s != sum of positions %s", v.TotalDelegated, delegated)
	}

	inFlight := math.ZeroInt()
	for _, t := range gs.Tickets {
		if t.ID == 0 || t.ID >= v.NextTicketID {
			return fmt.Errorf("ticket id %d out of range", t.ID)
		}
		inFlight = inFlight.Add(t.Remaining)
	}
	if !inFlight.Equal(v.InFlight) {
		return fmt.Errorf("in flight %s != sum of tickets %s", v.InFlight, inFlight)
	}

	epochs := make(map[uint64]WithdrawalEpoch)
	for _, e := range gs.Epochs {
		if e.ID == 0 || e.ID > v.CurrentEpoch {
			return fmt.Errorf("epoch %d out of range", e.ID)
		}
		if (e.ID == v.CurrentEpoch) != (e.Status == EpochStatusOpen) {
			return fmt.Errorf("epoch %d has status %s, current epoch is %d", e.ID, e.Status, v.CurrentEpoch)
		}
		epochs[e.ID] = e
	}
	if _, ok := epochs[v.CurrentEpoch]; !ok {
		return fmt.Errorf("current epoch %d missing", v.CurrentEpoch)
	}

	owed := math.ZeroInt()
	owedByEpoch := make(map[uint64]math.Int)
	for _, w := range gs.Withdrawals {
		if _, ok := epochs[w.Epoch]; !ok {
			return fmt.Errorf("withdrawal %d references unknown epoch %d", w.ID, w.Epoch)
		}
		if w.ID == 0 || w.ID >= v.NextWithdrawalID {
			return fmt.Errorf("withdrawal id %d out of range", w.ID)
		}
		owed = owed.Add(w.OwedAssets)
		if prev, ok := owedByEpoch[w.Epoch]; ok {
			owedByEpoch[w.Epoch] = prev.Add(w.OwedAssets)
		} else {
			owedByEpoch[w.Epoch] = w.OwedAssets
		}
	}
	if !owed.Equal(v.PendingObligations) {
		return fmt.Errorf("pending obligations %s != sum of withdrawals %s", v.PendingObligations, owed)
	}
	for id, sum := range owedByEpoch {
		e := epochs[id]
		if e.Status != EpochStatusOpen && e.ReservedAssets.LT(sum) {
			return fmt.Errorf("epoch %d reserves %s for %s owed", id, e.ReservedAssets, sum)
		}
	}
	if v.RedeemReserved.Add(v.PartiallyClaimed).GT(v.FreeBalance) {
		return fmt.Errorf("earmarked %s exceeds free balance %s", v.RedeemReserved.Add(v.PartiallyClaimed), v.FreeBalance)
	}
	return nil
}
