// Package alloc decides which account receives which file for a
// transfer request. Selection is best-fit-by-maximum-remaining: the
// account with the most free space that still fits, ties broken by
// lowest account ID so repeated runs allocate identically.
package alloc

import (
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/registry"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// ErrNoAccountFits is returned when the registry is non-empty but no
// single account can hold the unit being placed.
var ErrNoAccountFits = errors.New("no account has enough free space")

// Allocator picks destination accounts against the per-run registry.
type Allocator struct {
	registry *registry.Registry
}

// New returns an allocator over the given registry.
func New(r *registry.Registry) *Allocator {
	return &Allocator{registry: r}
}

// pick returns the ID of the account with the greatest free space that
// is at least size, or ErrNoAccountFits.
func (a *Allocator) pick(size int64) (string, error) {
	var best *models.Account
	// Accounts() is ID-ordered, and the strict > keeps the lowest ID on
	// ties.
	for _, acct := range a.registry.Accounts() {
		if acct.FreeBytes() < size {
			continue
		}
		if best == nil || acct.FreeBytes() > best.FreeBytes() {
			best = acct
		}
	}
	if best == nil {
		return "", fmt.Errorf("%w for %d bytes", ErrNoAccountFits, size)
	}
	return best.ID, nil
}

// Allocate produces the placement for a transfer request and reserves
// the chosen capacity so the next request in this run sees updated
// availability. On any failure no reservation is left behind.
func (a *Allocator) Allocate(req models.TransferRequest) (*models.AllocationDecision, error) {
	switch req.Mode {
	case models.ModeFile, models.ModeDirUnit:
		return a.allocateUnit(req)
	case models.ModeDirSplit:
		return a.allocateSplit(req)
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", req.Mode)
	}
}

// allocateUnit places the whole request on one account.
func (a *Allocator) allocateUnit(req models.TransferRequest) (*models.AllocationDecision, error) {
	id, err := a.pick(req.TotalSize)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Reserve(id, req.TotalSize); err != nil {
		return nil, err
	}

	decision := &models.AllocationDecision{}
	for _, f := range sortedFiles(req.Files) {
		decision.Placements = append(decision.Placements, models.FilePlacement{
			AccountID: id,
			RelPath:   f.RelPath,
			Path:      path.Join(req.Dest, f.RelPath),
			Size:      f.Size,
		})
	}
	return decision, nil
}

// allocateSplit places every file independently, walking the source in
// deterministic path order. A failure midway releases everything
// reserved so far.
func (a *Allocator) allocateSplit(req models.TransferRequest) (*models.AllocationDecision, error) {
	decision := &models.AllocationDecision{}
	reserved := make(map[string]int64)

	for _, f := range sortedFiles(req.Files) {
		id, err := a.pick(f.Size)
		if err == nil {
			err = a.registry.Reserve(id, f.Size)
		}
		if err != nil {
			for acct, bytes := range reserved {
				a.registry.Release(acct, bytes)
			}
			return nil, fmt.Errorf("allocating %s: %w", f.RelPath, err)
		}
		reserved[id] += f.Size
		decision.Placements = append(decision.Placements, models.FilePlacement{
			AccountID: id,
			RelPath:   f.RelPath,
			Path:      path.Join(req.Dest, f.RelPath),
			Size:      f.Size,
		})
	}
	return decision, nil
}

func sortedFiles(files []models.SourceFile) []models.SourceFile {
	out := make([]models.SourceFile, len(files))
	copy(out, files)
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out
}
