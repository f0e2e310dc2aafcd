// Package scanner builds transfer requests by walking local sources.
// It only ever reads the filesystem.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/chmdznr/multi-sa-gdrive-sync/internal/db"
	"github.com/chmdznr/multi-sa-gdrive-sync/pkg/models"
)

// Scan walks the source and returns a request targeting dest. For a
// directory source the caller chooses between unit and split mode
// later; Scan always records every file with its size so the total is
// known before allocation. With asFolder set, a directory source nests
// under its own basename at the destination.
func Scan(source, dest string, asFolder bool) (*models.TransferRequest, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %v", source, err)
	}

	dest = db.NormalizePath(dest)

	if !info.IsDir() {
		req := &models.TransferRequest{
			Source:    source,
			Dest:      dest,
			Mode:      models.ModeFile,
			TotalSize: info.Size(),
			Files: []models.SourceFile{{
				RelPath: filepath.Base(source),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}},
		}
		return req, nil
	}

	if asFolder {
		dest = path.Join(dest, filepath.Base(filepath.Clean(source)))
	}

	req := &models.TransferRequest{
		Source: source,
		Dest:   dest,
		Mode:   models.ModeDirUnit,
	}
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		req.Files = append(req.Files, models.SourceFile{
			RelPath: filepath.ToSlash(rel),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		req.TotalSize += fi.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %v", source, err)
	}

	// WalkDir is already lexical, but the allocation contract depends on
	// the order, so sort explicitly.
	sort.Slice(req.Files, func(i, j int) bool { return req.Files[i].RelPath < req.Files[j].RelPath })
	return req, nil
}
