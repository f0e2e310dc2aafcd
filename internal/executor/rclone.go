package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	forgeexec "github.com/input-output-hk/catalyst-forge-libs/executor"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/rclone"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// Rclone executes commands by shelling out to the rclone binary. The
// include file each command references is written immediately before
// the run.
type Rclone struct {
	Bin        string
	IncludeDir string
	Retries    int
	RetryDelay time.Duration
}

// NewRclone returns an rclone executor with the tool's usual retry
// posture.
func NewRclone(bin, includeDir string) *Rclone {
	if bin == "" {
		bin = "rclone"
	}
	return &Rclone{
		Bin:        bin,
		IncludeDir: includeDir,
		Retries:    2,
		RetryDelay: 5 * time.Second,
	}
}

// Run writes the command's include file and invokes rclone, streaming
// its output to the console. On success the placements are confirmed
// at their planned sizes; rclone reports no per-object identifiers, so
// the remote path doubles as the remote ID.
func (r *Rclone) Run(ctx context.Context, cmd models.Command) (*Result, error) {
	if err := r.writeIncludeFile(cmd); err != nil {
		return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: err}
	}

	_, err := forgeexec.New(r.Bin, cmd.Args...).Execute(ctx,
		forgeexec.WithConsoleRedirect(true),
		forgeexec.WithCapture(false, true, false),
		forgeexec.WithRetry(r.Retries, r.RetryDelay),
	)
	if err != nil {
		return nil, &CommandError{AccountID: cmd.AccountID, Args: cmd.Args, Err: err}
	}

	result := &Result{}
	for _, p := range cmd.Files {
		result.Uploaded = append(result.Uploaded, models.UploadedObject{
			Path:     p.Path,
			RemoteID: rclone.RemoteName(cmd.AccountID) + ":" + p.Path,
			Size:     p.Size,
		})
	}
	return result, nil
}

func (r *Rclone) writeIncludeFile(cmd models.Command) error {
	if len(cmd.IncludeLines) == 0 {
		return nil
	}
	if err := os.MkdirAll(r.IncludeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create include dir: %v", err)
	}
	path := filepath.Join(r.IncludeDir, fmt.Sprintf("include_%s.txt", cmd.AccountID))
	content := strings.Join(cmd.IncludeLines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write include file: %v", err)
	}
	return nil
}

// ClearIncludeDir empties the include-file directory before a run so a
// stale filter can never widen a transfer.
func ClearIncludeDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear include dir: %v", err)
	}
	return os.MkdirAll(dir, 0o755)
}
