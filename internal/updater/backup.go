package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/version"
)

const (
	backupName  = "arducam-node.bak"
	sidecarName = "backup.json"
)

// backupInfo is the sidecar record describing the stored binary.
type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupStore keeps one copy of the previous binary plus a sidecar
// describing it, under the user cache directory. Saving replaces any
// earlier backup.
type backupStore struct {
	dir    string
	logger *slog.Logger
}

func openBackupStore(logger *slog.Logger) (*backupStore, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	dir := filepath.Join(cache, "arducam-node", "backup")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &backupStore{dir: dir, logger: logger}, nil
}

// stored returns the sidecar record when both it and the binary copy
// are present on disk.
func (b *backupStore) stored() (backupInfo, bool) {
	data, err := os.ReadFile(filepath.Join(b.dir, sidecarName))
	if err != nil {
		return backupInfo{}, false
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		b.logger.Warn("Corrupt backup sidecar", "error", err)
		return backupInfo{}, false
	}
	if _, err := os.Stat(filepath.Join(b.dir, backupName)); err != nil {
		return backupInfo{}, false
	}
	return info, true
}

// save copies the binary at execPath into the store and writes the
// sidecar after it, so a crash mid-copy never leaves a sidecar that
// points at a torn backup.
func (b *backupStore) save(execPath string) error {
	src, err := os.Open(execPath)
	if err != nil {
		return fmt.Errorf("open binary: %w", err)
	}
	defer src.Close()

	if err := writeSwap(filepath.Join(b.dir, backupName), src, 0o755); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}

	info := backupInfo{
		Version:   version.Version,
		CreatedAt: time.Now().UTC(),
		ExecPath:  execPath,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, sidecarName), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	b.logger.Info("Backup saved", "version", info.Version, "dir", b.dir)
	return nil
}

// restore puts the stored binary back at its recorded path.
func (b *backupStore) restore() error {
	info, ok := b.stored()
	if !ok {
		return ErrNoBackup
	}

	src, err := os.Open(filepath.Join(b.dir, backupName))
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer src.Close()

	if err := writeSwap(info.ExecPath, src, 0o755); err != nil {
		return fmt.Errorf("restore binary: %w", err)
	}

	b.logger.Info("Backup restored", "version", info.Version)
	return nil
}

// writeSwap streams src into a temp file next to dst and renames it
// into place. Truncating a binary the daemon still runs fails with
// ETXTBSY; a rename swaps the inode and never shows a partial write.
func writeSwap(dst string, src io.Reader, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".swap-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, werr := io.Copy(tmp, src)
	if werr == nil {
		werr = tmp.Chmod(mode)
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmpPath, dst)
	}
	if werr != nil {
		os.Remove(tmpPath)
		return werr
	}
	return nil
}
