package main

import (
	"fmt"
	"strings"

	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/utils"
)

// printTree renders ledger entries as an indented tree. Entries arrive
// sorted by path, so each one prints at its own depth relative to the
// prefix. Files show their size and owning account; directories just
// their name.
func printTree(entries []models.LedgerEntry, prefix string) {
	for _, e := range entries {
		rel := e.Path
		if prefix != "" {
			rel = strings.TrimPrefix(strings.TrimPrefix(e.Path, prefix), "/")
			if rel == "" {
				continue
			}
		}
		depth := strings.Count(rel, "/")
		name := rel
		if i := strings.LastIndex(rel, "/"); i >= 0 {
			name = rel[i+1:]
		}
		indent := strings.Repeat(" ", depth)
		if e.Kind == models.KindDir {
			fmt.Printf("%s- %s\n", indent, name)
		} else {
			fmt.Printf("%s- %s (%s, %s)\n", indent, name, utils.FormatSize(e.Size), e.AccountID)
		}
	}
}
