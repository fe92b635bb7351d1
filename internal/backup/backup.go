// Package backup archives the bookshelf data directory.
package backup

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bookshelf/internal/config"
	"bookshelf/internal/logging"
	"bookshelf/internal/services"
)

// Checkpointer flushes the database WAL so a file copy is complete.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Result describes a written archive.
type Result struct {
	Path  string
	Files int
	Bytes int64
}

// ArchiveName returns the file name used for a backup taken at now.
func ArchiveName(now time.Time) string {
	return fmt.Sprintf("bookshelf-backup-%s.zip", now.UTC().Format("2006-01-02T15-04-05"))
}

// Create checkpoints the library and zips the data directory into dest. The
// models and logs directories and lock files are left out. A failed
// checkpoint is logged and the backup continues with what is on disk.
func Create(ctx context.Context, cfg *config.Config, db Checkpointer, dest string, now time.Time, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, "backup")
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return Result{}, services.Wrap(services.ErrValidation, "backup", "create", "destination is required", nil)
	}
	dest, err := config.ExpandPath(dest)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "backup", "create", "resolve destination", err)
	}
	info, err := os.Stat(dest)
	if err != nil || !info.IsDir() {
		return Result{}, services.Wrap(services.ErrNotFound, "backup", "create",
			fmt.Sprintf("destination %s does not exist", dest), nil)
	}
	if err := checkWritable(dest); err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "backup", "create",
			fmt.Sprintf("cannot write to destination %s", dest), err)
	}

	if db != nil {
		if err := db.Checkpoint(ctx); err != nil {
			logging.WarnWithContext(logger, "wal checkpoint failed", "backup_checkpoint_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "backup may miss the most recent writes"),
			)
		}
	}

	target := filepath.Join(dest, ArchiveName(now))
	tmp, err := os.CreateTemp(dest, ".bookshelf-backup-*.zip")
	if err != nil {
		return Result{}, fmt.Errorf("create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	result, err := writeArchive(ctx, tmp, cfg)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close archive: %w", closeErr)
	}
	if err != nil {
		return Result{}, err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return Result{}, fmt.Errorf("finalize archive: %w", err)
	}
	result.Path = target

	logger.Info("backup created",
		logging.String("path", target),
		logging.Int("files", result.Files),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

func checkWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}

func writeArchive(ctx context.Context, w io.Writer, cfg *config.Config) (Result, error) {
	root := cfg.Paths.DataDir
	skipDirs := map[string]bool{
		filepath.Join(root, "models"):           true,
		filepath.Join(root, "logs"):             true,
		filepath.Clean(cfg.Paths.LogDir):        true,
		filepath.Clean(cfg.Inference.ModelsDir): true,
	}

	zw := zip.NewWriter(w)
	var result Result
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && skipDirs[filepath.Clean(path)] {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || skipFile(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		n, err := addFile(zw, path, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		result.Files++
		result.Bytes += n
		return nil
	})
	if err != nil {
		_ = zw.Close()
		return Result{}, fmt.Errorf("archive data directory: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Result{}, fmt.Errorf("finish archive: %w", err)
	}
	return result, nil
}

func skipFile(name string) bool {
	return strings.HasSuffix(name, ".lock") ||
		strings.HasSuffix(name, ".pid") ||
		strings.HasPrefix(name, ".bookshelf-backup-")
}

func addFile(zw *zip.Writer, path, name string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, err
	}
	header.Name = name
	header.Method = zip.Deflate
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	return io.Copy(dst, file)
}
