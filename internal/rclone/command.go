// Package rclone translates allocation decisions into structured
// rclone invocations. It builds argument vectors and include-file
// contents only; nothing here touches the network or spawns processes.
package rclone

import (
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// driveFlags are passed to every Drive-backed invocation. Matches the
// tuning the tool has always used for service-account transfers.
var driveFlags = []string{
	"--drive-scope", "drive",
	"--drive-allow-import-name-change",
	"--drive-acknowledge-abuse",
	"--drive-keep-revision-forever",
	"--drive-upload-cutoff", "5G",
	"--drive-chunk-size", "256M",
	"--drive-use-trash=false",
	"--drive-disable-http2",
}

// Generator builds rclone commands for a fixed include-file directory.
// A generator with the same configuration is a pure function of its
// inputs: identical decisions yield identical command sequences.
type Generator struct {
	includeDir string
	creds      map[string]string
}

// NewGenerator returns a generator writing include references under
// includeDir. creds maps account ID to its service-account file.
func NewGenerator(includeDir string, creds map[string]string) *Generator {
	return &Generator{includeDir: includeDir, creds: creds}
}

// RemoteName returns the ledger's remote-location label for an
// account, following the g<account> naming convention. It is a
// recorded identifier only; generated argv uses connection-string
// remotes instead, since --config /dev/null defines no named remotes.
func RemoteName(accountID string) string {
	return "g" + accountID
}

// remoteSpec builds a config-less connection-string remote for the
// account, so every command is self-contained and never depends on a
// remote section existing in a config file.
func (g *Generator) remoteSpec(accountID string) string {
	return ":drive,service_account_file=" + g.creds[accountID] + ":"
}

// IncludePath returns the deterministic include-file location for an
// account. The executor writes the file right before running.
func (g *Generator) IncludePath(accountID string) string {
	return filepath.Join(g.includeDir, fmt.Sprintf("include_%s.txt", accountID))
}

// Copy groups the decision's placements per account and emits one copy
// command per group, in ascending account order.
func (g *Generator) Copy(source string, dest string, decision *models.AllocationDecision) []models.Command {
	groups := groupByAccount(decision.Placements)

	var commands []models.Command
	for _, accountID := range sortedKeys(groups) {
		placements := groups[accountID]
		cmd := models.Command{
			AccountID:    accountID,
			Op:           models.OpCopy,
			Source:       source,
			Files:        placements,
			IncludeLines: includeLines(placements, func(p models.FilePlacement) string { return p.RelPath }),
		}
		cmd.Args = append(cmd.Args, "copy", "--config", "/dev/null")
		cmd.Args = append(cmd.Args, driveFlags...)
		cmd.Args = append(cmd.Args,
			"--ignore-existing",
			"--no-check-dest",
			"--size-only",
			"--progress",
			"--include-from", g.IncludePath(accountID),
			source,
			g.remoteSpec(accountID)+dest,
		)
		commands = append(commands, cmd)
	}
	return commands
}

// Delete emits one delete command per owning account for the entries
// being removed under prefix. Include lines are relative to the prefix
// so the remote root and the filter agree.
func (g *Generator) Delete(prefix string, entries []models.LedgerEntry) []models.Command {
	// Removing a single file anchors the remote root at its parent so
	// the include line is the basename.
	root := prefix
	if len(entries) == 1 && entries[0].Kind == models.KindFile && entries[0].Path == prefix {
		root = path.Dir(prefix)
		if root == "." {
			root = ""
		}
	}

	perAccount := make(map[string][]models.FilePlacement)
	for _, e := range entries {
		if e.Kind != models.KindFile {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
		perAccount[e.AccountID] = append(perAccount[e.AccountID], models.FilePlacement{
			AccountID: e.AccountID,
			RelPath:   rel,
			Path:      e.Path,
			Size:      e.Size,
		})
	}

	var commands []models.Command
	for _, accountID := range sortedKeys(perAccount) {
		placements := perAccount[accountID]
		cmd := models.Command{
			AccountID:    accountID,
			Op:           models.OpDelete,
			Files:        placements,
			IncludeLines: includeLines(placements, func(p models.FilePlacement) string { return p.RelPath }),
		}
		cmd.Args = append(cmd.Args, "delete", "--config", "/dev/null")
		cmd.Args = append(cmd.Args, driveFlags...)
		cmd.Args = append(cmd.Args,
			"--include-from", g.IncludePath(accountID),
			g.remoteSpec(accountID)+root,
		)
		commands = append(commands, cmd)
	}
	return commands
}

func groupByAccount(placements []models.FilePlacement) map[string][]models.FilePlacement {
	groups := make(map[string][]models.FilePlacement)
	for _, p := range placements {
		groups[p.AccountID] = append(groups[p.AccountID], p)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func includeLines(placements []models.FilePlacement, rel func(models.FilePlacement) string) []string {
	lines := make([]string, 0, len(placements))
	for _, p := range placements {
		lines = append(lines, "/"+EscapeFilter(rel(p)))
	}
	sort.Strings(lines)
	return lines
}

// EscapeFilter escapes rclone filter metacharacters so a literal path
// matches exactly one object.
func EscapeFilter(p string) string {
	var b strings.Builder
	for _, r := range p {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
