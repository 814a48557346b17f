package database

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

const backupStampLayout = "20060102_150405"

var backupName = regexp.MustCompile(`^(\d{8}_\d{6})_`)

func (d *Database) backupDir() string {
	return filepath.Join(filepath.Dir(d.path), "backups")
}

// Backup writes a zipped snapshot of the sqlite database next to it.
// Postgres deployments are expected to be backed up by the server.
func (d *Database) Backup(ctx context.Context) error {
	if d.driver != DriverSQLite {
		d.logger.Debug("skipping backup, not a sqlite database")
		return nil
	}

	dir := d.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	snapshot := filepath.Join(dir, fmt.Sprintf("%s_meterit.db", time.Now().Format(backupStampLayout)))
	if _, err := d.write.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("vacuuming database into '%s': %w", snapshot, err)
	}
	defer func() {
		if err := os.Remove(snapshot); err != nil {
			d.logger.Warn("could not remove uncompressed backup", slog.Any("error", err))
		}
	}()

	zipPath := snapshot + ".zip"
	if err := zipFile(zipPath, snapshot, filepath.Base(d.path)); err != nil {
		return err
	}

	d.logger.Info("database backup complete", slog.String("filename", zipPath))
	return nil
}

func zipFile(zipPath, src, entryName string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer out.Close()

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open database backup for compression: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("get file info: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("create zip header: %w", err)
	}
	header.Name = entryName
	header.Method = zip.Deflate

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip file entry: %w", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("write database to zip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip file: %w", err)
	}
	return out.Close()
}

func (d *Database) PurgeBackups(ctx context.Context, retentionDays int) error {
	if d.driver != DriverSQLite || retentionDays < 1 {
		return nil
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	files, err := os.ReadDir(d.backupDir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read backup directory: %w", err)
	}

	for _, file := range files {
		match := backupName.FindStringSubmatch(file.Name())
		if match == nil {
			continue
		}
		t, err := time.ParseInLocation(backupStampLayout, match[1], time.Local)
		if err != nil || time.Since(t) <= retention {
			continue
		}
		p := filepath.Join(d.backupDir(), file.Name())
		d.logger.Debug("deleting old backup", slog.String("path", p))
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove old backup '%s': %w", p, err)
		}
	}
	return nil
}
