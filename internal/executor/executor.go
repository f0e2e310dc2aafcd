// Package executor runs generated commands against the outside world.
// It is the only part of the system allowed to block on external I/O.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// Result reports what one command actually transferred. Remote IDs and
// confirmed sizes feed the ledger commit.
type Result struct {
	Uploaded []models.UploadedObject
}

// Executor runs one command at a time and reports per-command success
// or failure. Commands run sequentially in generated order.
type Executor interface {
	Run(ctx context.Context, cmd models.Command) (*Result, error)
}

// CommandError is a per-command execution failure. It is non-fatal to
// the batch: the orchestrator commits the successes and surfaces the
// failed subset.
type CommandError struct {
	AccountID string
	Args      []string
	Err       error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed on account %s (rclone %s): %v", e.AccountID, strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
