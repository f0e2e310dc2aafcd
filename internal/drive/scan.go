package drive

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	forgeexec "github.com/input-output-hk/catalyst-forge-libs/executor"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// SourceID extracts the Drive folder ID from an id=<driveID> source
// argument, or returns false for local sources.
func SourceID(source string) (string, bool) {
	if strings.HasPrefix(source, "id=") && len(source) > 3 {
		return source[3:], true
	}
	return "", false
}

// Scanner enumerates a Drive-side source through the master remote.
type Scanner struct {
	Bin          string
	MasterRemote string
}

// NewScanner returns a scanner using the given rclone binary and
// master remote name.
func NewScanner(bin, masterRemote string) *Scanner {
	if bin == "" {
		bin = "rclone"
	}
	return &Scanner{Bin: bin, MasterRemote: masterRemote}
}

// Scan lists a Drive folder recursively and builds a transfer request
// for its contents, in deterministic path order. With asFolder set and
// a credential file available, the folder's own name is appended to
// the destination.
func (s *Scanner) Scan(ctx context.Context, driveID, dest string, asFolder bool, credentialFile string) (*models.TransferRequest, error) {
	if asFolder {
		name, err := FolderName(ctx, credentialFile, driveID)
		if err != nil {
			return nil, err
		}
		dest = path.Join(dest, name)
	}

	// --max-depth caps recursion; deep shortcut chains otherwise loop.
	remote := fmt.Sprintf("%s,root_folder_id=%s:", s.MasterRemote, driveID)
	result, err := forgeexec.New(s.Bin, "ls", "--fast-list", "--max-depth=15", remote).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drive source %s: %v", driveID, err)
	}

	files, err := ParseLs(result.Stdout)
	if err != nil {
		return nil, err
	}

	req := &models.TransferRequest{
		Source: remote,
		Dest:   dest,
		Mode:   models.ModeDirUnit,
		Files:  files,
	}
	for _, f := range files {
		req.TotalSize += f.Size
	}
	return req, nil
}

// ParseLs parses `rclone ls` output: one "<size> <path>" pair per
// line. Malformed lines are skipped rather than failing the scan.
func ParseLs(out string) ([]models.SourceFile, error) {
	var files []models.SourceFile
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) < 2 {
			continue
		}
		size, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		files = append(files, models.SourceFile{
			RelPath: strings.TrimSpace(fields[1]),
			Size:    size,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}
