package models

import "time"

// EntryKind distinguishes file and directory ledger entries.
type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// LedgerEntry is one row of the merged virtual tree: a logical path and
// the physical (account, remote object) location that backs it.
type LedgerEntry struct {
	Path      string
	AccountID string
	RemoteID  string
	Size      int64
	Kind      EntryKind
	ModTime   time.Time
}

// TransferMode selects how a source is mapped onto accounts.
type TransferMode string

const (
	// ModeFile uploads a single file to one account.
	ModeFile TransferMode = "file"
	// ModeDirUnit uploads a directory to a single account as one unit.
	ModeDirUnit TransferMode = "dir-unit"
	// ModeDirSplit allocates each file of a directory independently, so
	// one logical subtree may span several accounts.
	ModeDirSplit TransferMode = "dir-split"
)

// SourceFile is one file discovered under a transfer source.
type SourceFile struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// TransferRequest describes one upload: where the bytes come from,
// where they land in the virtual tree, and how they may be split.
type TransferRequest struct {
	Source    string
	Dest      string
	Mode      TransferMode
	TotalSize int64
	Files     []SourceFile
}
