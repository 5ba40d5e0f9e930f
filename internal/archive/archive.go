// Package archive packs and unpacks a task's output paths into a
// gzipped tar keyed by hash, the artifact written to
// <cache>/outputs/<hash>.tar.gz. Adapted from the tar-writer pipeline in
// cacheitem (tar.Writer -> compressor -> buffered file), substituting
// gzip for zstd (spec mandates a gzipped archive specifically) and
// collapsing the two-pass symlink/directory restore into a single
// depth-first tar walk, since outputs here are ordinary files and
// directories rather than an arbitrary cross-platform symlink graph.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
)

// zeroTime is written into every header so archives created from
// identical content are byte-identical regardless of wall-clock time.
var zeroTime = time.Unix(0, 0)

// Entry is one file to add to an archive: root is the absolute filesystem
// root outputs are resolved against, and relPath is the workspace- or
// project-relative path recorded in the archive (always forward-slash).
type Entry struct {
	Root    string
	RelPath string
}

// Pack writes every entry into a new gzipped tar at destPath. Directory
// entries are expanded into their file members (recursively) rather than
// stored as a single directory header; an entry whose root+relPath no
// longer exists is logged and skipped rather than failing the whole
// archive, since a task's declared outputs are a superset of what it
// might actually produce on a given run.
func Pack(destPath string, entries []Entry, logger hclog.Logger) error {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("archive: creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-archive-*")
	if err != nil {
		return fmt.Errorf("archive: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	files, err := expandEntries(entries, logger)
	if err != nil {
		tw.Close()
		gz.Close()
		tmp.Close()
		return err
	}

	for _, f := range files {
		if err := addFile(tw, f); err != nil {
			tw.Close()
			gz.Close()
			tmp.Close()
			return fmt.Errorf("archive: adding %q: %w", f.relInArchive, err)
		}
	}

	if err := tw.Close(); err != nil {
		gz.Close()
		tmp.Close()
		return fmt.Errorf("archive: closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: closing gzip writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("archive: renaming into place: %w", err)
	}
	return nil
}

type resolvedFile struct {
	absPath      string
	relInArchive string // always forward-slash
	info         fs.FileInfo
}

// expandEntries walks every entry, descending into directories (a
// directory output is logged with a warning and stored as its file
// members), and returns the files in sorted archive-path order so Pack's
// output is deterministic.
func expandEntries(entries []Entry, logger hclog.Logger) ([]resolvedFile, error) {
	var files []resolvedFile
	for _, e := range entries {
		abs := filepath.Join(e.Root, filepath.FromSlash(e.RelPath))
		info, err := os.Lstat(abs)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn("output path does not exist, skipping", "path", e.RelPath)
				continue
			}
			return nil, fmt.Errorf("archive: stat %q: %w", e.RelPath, err)
		}

		if !info.IsDir() {
			files = append(files, resolvedFile{absPath: abs, relInArchive: filepath.ToSlash(e.RelPath), info: info})
			continue
		}

		logger.Warn("output is a directory, archiving its files individually", "path", e.RelPath)
		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, relErr := filepath.Rel(e.Root, path)
			if relErr != nil {
				return relErr
			}
			fi, infoErr := d.Info()
			if infoErr != nil {
				return infoErr
			}
			files = append(files, resolvedFile{absPath: path, relInArchive: filepath.ToSlash(rel), info: fi})
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("archive: walking directory output %q: %w", e.RelPath, walkErr)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].relInArchive < files[j].relInArchive })
	return files, nil
}

func addFile(tw *tar.Writer, f resolvedFile) error {
	var link string
	if f.info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(f.absPath)
		if err != nil {
			return err
		}
		link = target
	}

	header, err := tar.FileInfoHeader(f.info, link)
	if err != nil {
		return err
	}
	header.Name = f.relInArchive
	header.Uid = 0
	header.Gid = 0
	header.Uname = ""
	header.Gname = ""
	header.AccessTime = zeroTime
	header.ModTime = zeroTime
	header.ChangeTime = zeroTime

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if f.info.Mode().IsRegular() && f.info.Size() > 0 {
		src, err := os.Open(f.absPath)
		if err != nil {
			return err
		}
		defer src.Close()
		if _, err := io.Copy(tw, src); err != nil {
			return err
		}
	}
	return nil
}
