// Package transfer orchestrates one logical operation end to end:
// plan, allocate, generate, execute, commit. It is the only entry
// point the CLI calls into the engine.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/alloc"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/backup"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/db"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/executor"
	"github.com/chmdznr/multi-sa-gdrive-sync/internal/rclone"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// State is the orchestrator's position in one operation.
type State string

const (
	StatePlanning          State = "planning"
	StateGenerating        State = "generating"
	StateAwaitingExecution State = "awaiting-execution"
	StateCommitting        State = "committing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// CommandFailure pairs a failed command with its error.
type CommandFailure struct {
	Command models.Command
	Err     error
}

// Report is the outcome of one operation. Partial failures are not an
// error: the ledger reflects exactly what transferred, and the failed
// subset is listed here.
type Report struct {
	State     State
	Snapshot  string
	Commands  []models.Command
	Committed []models.LedgerEntry
	Removed   []string
	Skipped   []models.SourceFile
	Failed    []CommandFailure
	DryRun    bool
}

// Orchestrator owns the ledger for the duration of one run.
// Single-writer: concurrent invocations are unsupported and fail fast
// on the ledger lock.
type Orchestrator struct {
	Ledger    *db.Ledger
	Allocator *alloc.Allocator
	Generator *rclone.Generator
	Backups   *backup.Manager
	// Executors is keyed by account ID: backends like the S3 uploader
	// are bound to one account's endpoint and credentials, so a
	// command must run on its own account's executor.
	Executors map[string]executor.Executor
	DryRun    bool
}

// Upload plans and performs one upload request. Files whose
// destination already exists in the ledger at the same size are
// skipped. When no single account holds a directory request, the
// orchestrator falls back to per-file split allocation.
func (o *Orchestrator) Upload(ctx context.Context, req models.TransferRequest) (*Report, error) {
	report := &Report{State: StatePlanning, DryRun: o.DryRun}

	filtered, skipped, err := o.dedup(req)
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	report.Skipped = skipped
	if len(filtered.Files) == 0 {
		report.State = StateDone
		return report, nil
	}

	report.State = StateGenerating
	decision, err := o.Allocator.Allocate(filtered)
	if err != nil && errors.Is(err, alloc.ErrNoAccountFits) && filtered.Mode == models.ModeDirUnit {
		log.Printf("no single account fits %d bytes, splitting %s across accounts", filtered.TotalSize, filtered.Source)
		filtered.Mode = models.ModeDirSplit
		decision, err = o.Allocator.Allocate(filtered)
	}
	if err != nil {
		report.State = StateFailed
		return report, err
	}

	report.Commands = o.Generator.Copy(filtered.Source, filtered.Dest, decision)

	if o.DryRun {
		report.State = StateDone
		return report, nil
	}

	entries, err := o.Ledger.List("")
	if err != nil {
		report.State = StateFailed
		return report, err
	}
	stamp, err := o.Backups.Snapshot(req, report.Commands, entries)
	if err != nil {
		report.State = StateFailed
		return report, fmt.Errorf("failed to write snapshot: %v", err)
	}
	report.Snapshot = stamp

	o.execute(ctx, report, func(cmd models.Command, res *executor.Result) error {
		return o.commitUpload(report, cmd, res)
	})
	return report, nil
}

// dedup drops files already present in the ledger at their destination
// with an identical size.
func (o *Orchestrator) dedup(req models.TransferRequest) (models.TransferRequest, []models.SourceFile, error) {
	var skipped []models.SourceFile
	kept := req.Files[:0:0]
	total := int64(0)
	for _, f := range req.Files {
		dest := path.Join(req.Dest, f.RelPath)
		existing, err := o.Ledger.Resolve(dest)
		if err == nil && existing.Kind == models.KindFile && existing.Size == f.Size {
			skipped = append(skipped, f)
			continue
		}
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return req, nil, err
		}
		kept = append(kept, f)
		total += f.Size
	}
	req.Files = kept
	req.TotalSize = total
	return req, skipped, nil
}

// execute runs the commands sequentially in generated order, then
// commits each success through commit. Errors from individual commands
// are collected, never fatal to the batch.
func (o *Orchestrator) execute(ctx context.Context, report *Report, commit func(models.Command, *executor.Result) error) {
	report.State = StateAwaitingExecution
	for _, cmd := range report.Commands {
		exec, ok := o.executorFor(cmd)
		if !ok {
			report.Failed = append(report.Failed, CommandFailure{Command: cmd, Err: fmt.Errorf("no executor for account %s", cmd.AccountID)})
			continue
		}
		res, err := exec.Run(ctx, cmd)
		if err != nil {
			report.Failed = append(report.Failed, CommandFailure{Command: cmd, Err: err})
			continue
		}

		report.State = StateCommitting
		if err := commit(cmd, res); err != nil {
			report.Failed = append(report.Failed, CommandFailure{Command: cmd, Err: err})
		}
		report.State = StateAwaitingExecution
	}

	if len(report.Failed) == 0 {
		report.State = StateDone
	} else {
		report.State = StateFailed
	}
}

func (o *Orchestrator) executorFor(cmd models.Command) (executor.Executor, bool) {
	exec, ok := o.Executors[cmd.AccountID]
	return exec, ok
}

// commitUpload writes ledger entries for what one command actually
// transferred, as confirmed by the executor.
func (o *Orchestrator) commitUpload(report *Report, cmd models.Command, res *executor.Result) error {
	sizes := make(map[string]models.FilePlacement, len(cmd.Files))
	for _, p := range cmd.Files {
		sizes[p.Path] = p
	}
	for _, obj := range res.Uploaded {
		entry := models.LedgerEntry{
			Path:      obj.Path,
			AccountID: cmd.AccountID,
			RemoteID:  obj.RemoteID,
			Size:      obj.Size,
			Kind:      models.KindFile,
		}
		if p, ok := sizes[obj.Path]; ok && obj.Size == 0 {
			entry.Size = p.Size
		}
		if err := o.Ledger.Put(entry, false); err != nil {
			return fmt.Errorf("failed to commit %s: %v", obj.Path, err)
		}
		report.Committed = append(report.Committed, entry)
	}
	return nil
}
