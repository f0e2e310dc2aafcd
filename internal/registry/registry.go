// Package registry holds the accounts known to one run and their
// in-memory capacity figures. Reservations are process-local: the
// ledger remains the source of truth for persisted usage.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// ErrCapacityExceeded is returned when a reservation would push an
// account's usage past its total capacity.
var ErrCapacityExceeded = errors.New("account capacity exceeded")

// Registry is the per-run account table. Not safe for concurrent use;
// one orchestrator run owns it exclusively.
type Registry struct {
	accounts map[string]*models.Account
	order    []string
}

// New builds a registry from the loaded accounts, ordered by ID.
func New(accounts []models.Account) *Registry {
	r := &Registry{accounts: make(map[string]*models.Account, len(accounts))}
	for i := range accounts {
		a := accounts[i]
		r.accounts[a.ID] = &a
		r.order = append(r.order, a.ID)
	}
	sort.Strings(r.order)
	return r
}

// SeedUsage overwrites each account's used bytes from the ledger's
// per-account sums. Unknown account IDs in the usage map are ignored;
// their entries still live in the ledger but cannot receive new files.
func (r *Registry) SeedUsage(usage map[string]int64) {
	for id, used := range usage {
		if a, ok := r.accounts[id]; ok {
			a.UsedBytes = used
		}
	}
}

// Accounts returns the accounts in stable ID order.
func (r *Registry) Accounts() []*models.Account {
	out := make([]*models.Account, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.accounts[id])
	}
	return out
}

// Get returns the account with the given ID.
func (r *Registry) Get(id string) (*models.Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("unknown account %q", id)
	}
	return a, nil
}

// Available returns the free space of the account.
func (r *Registry) Available(id string) (int64, error) {
	a, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return a.FreeBytes(), nil
}

// Reserve adjusts the account's in-memory usage so later allocations in
// the same run see the reduced availability. Never persisted directly.
func (r *Registry) Reserve(id string, bytes int64) error {
	a, err := r.Get(id)
	if err != nil {
		return err
	}
	if a.UsedBytes+bytes > a.TotalBytes {
		return fmt.Errorf("%w: %s needs %d more bytes than available", ErrCapacityExceeded, id, a.UsedBytes+bytes-a.TotalBytes)
	}
	a.UsedBytes += bytes
	return nil
}

// Release undoes a reservation, clamping at zero.
func (r *Registry) Release(id string, bytes int64) {
	if a, ok := r.accounts[id]; ok {
		a.UsedBytes -= bytes
		if a.UsedBytes < 0 {
			a.UsedBytes = 0
		}
	}
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int { return len(r.accounts) }
