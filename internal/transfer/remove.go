package transfer

import (
	"context"
	"fmt"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/db"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/executor"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// Remove deletes a logical path (and any descendants) from the remote
// accounts and the ledger. Delete commands come straight from ledger
// lookups; only entries whose commands succeeded are removed, so the
// ledger keeps matching remote reality on partial failure.
func (o *Orchestrator) Remove(ctx context.Context, logicalPath string) (*Report, error) {
	report := &Report{State: StatePlanning, DryRun: o.DryRun}

	logicalPath = db.NormalizePath(logicalPath)
	targets, err := o.Ledger.List(logicalPath)
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	if len(targets) == 0 {
		report.State = StateFailed
		return report, db.ErrNotFound
	}

	report.State = StateGenerating
	report.Commands = o.Generator.Delete(logicalPath, targets)

	if o.DryRun {
		report.State = StateDone
		return report, nil
	}

	entries, err := o.Ledger.List("")
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	req := models.TransferRequest{Source: logicalPath, Dest: logicalPath}
	stamp, err := o.Backups.Snapshot(req, report.Commands, entries)
	if err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("failed to write snapshot: %v", err)
	}
	report.Snapshot = stamp

	o.execute(ctx, report, func(cmd models.Command, _ *executor.Result) error {
		return o.commitRemove(report, cmd)
	})

	// Once every file is gone, drop the remaining directory entries of
	// the subtree in one recorded mutation.
	if report.State == StateDone {
		if err := o.Ledger.Remove(logicalPath); err != nil && err != db.ErrNotFound {
			return report, err
		}
	}
	return report, nil
}

// commitRemove deletes the ledger entries for one successful delete
// command.
func (o *Orchestrator) commitRemove(report *Report, cmd models.Command) error {
	for _, p := range cmd.Files {
		if err := o.Ledger.Remove(p.Path); err != nil && err != db.ErrNotFound {
			return fmt.Errorf("failed to remove %s from ledger: %v", p.Path, err)
		}
		report.Removed = append(report.Removed, p.Path)
	}
	return nil
}

// List renders the merged virtual tree below prefix. Never mutates and
// never snapshots.
func (o *Orchestrator) List(prefix string) ([]models.LedgerEntry, error) {
	return o.Ledger.List(prefix)
}
