// Package updater stages binary updates for field nodes from GitHub
// releases. Staging replaces the executable on disk; the running
// process keeps the old image until the unit restarts.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/version"
)

var (
	// ErrNoRelease means the repository has no published releases.
	ErrNoRelease = errors.New("no release found")
	// ErrNoUpdate means the node already runs the latest version.
	ErrNoUpdate = errors.New("no update available")
	// ErrNoBackup means rollback was requested without a stored backup.
	ErrNoBackup = errors.New("no backup available")
	// ErrReadOnly means the installed binary cannot be replaced in place.
	ErrReadOnly = errors.New("binary location is not writable")
)

// Options configure the updater.
type Options struct {
	// Repository is the GitHub slug releases are fetched from.
	Repository string
	// Prerelease widens the check to prerelease versions.
	Prerelease bool
}

// Release describes the newest published version relative to the
// running binary.
type Release struct {
	Current     string
	Latest      string
	Notes       string
	URL         string
	PublishedAt time.Time
	AssetBytes  int
	// Newer is true when Latest should replace Current. Dev builds
	// always count as outdated.
	Newer bool

	handle *selfupdate.Release
}

// Status reports the local update state: the running version plus the
// stored backup, if any.
type Status struct {
	CurrentVersion string
	BackupVersion  string
	BackupAt       time.Time
}

// Updater checks GitHub for newer node binaries and stages them over
// the installed executable, keeping one backup for rollback.
type Updater struct {
	slug    string
	source  selfupdate.Repository
	sdk     *selfupdate.Updater
	backups *backupStore
	logger  *slog.Logger
}

// New builds an updater for the given repository slug. Construction
// works on read-only installs; staging fails there with ErrReadOnly.
func New(opts Options) (*Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("updater: github source: %w", err)
	}
	sdk, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("updater: %w", err)
	}

	logger := logging.GetLogger("updater")
	backups, err := openBackupStore(logger)
	if err != nil {
		logger.Warn("Backups unavailable, rollback disabled", "error", err)
		backups = nil
	}

	return &Updater{
		slug:    opts.Repository,
		source:  selfupdate.ParseSlug(opts.Repository),
		sdk:     sdk,
		backups: backups,
		logger:  logger,
	}, nil
}

// Check queries the repository for its latest release and compares it
// against the running version. Nothing is downloaded.
func (u *Updater) Check(ctx context.Context) (*Release, error) {
	rel, found, err := u.sdk.DetectLatest(ctx, u.source)
	if err != nil {
		return nil, fmt.Errorf("updater: check %s: %w", u.slug, err)
	}
	if !found {
		return nil, fmt.Errorf("updater: %s: %w", u.slug, ErrNoRelease)
	}

	current := version.Version
	return &Release{
		Current:     current,
		Latest:      rel.Version(),
		Notes:       rel.ReleaseNotes,
		URL:         rel.URL,
		PublishedAt: rel.PublishedAt,
		AssetBytes:  rel.AssetByteSize,
		Newer:       version.IsDev() || rel.GreaterThan(current),
		handle:      rel,
	}, nil
}

// Apply stages rel over the installed binary, backing the current one
// up first. A nil rel runs Check internally. A failed staging attempt
// puts the backup straight back so the node never keeps a half-written
// binary.
func (u *Updater) Apply(ctx context.Context, rel *Release) error {
	if rel == nil {
		checked, err := u.Check(ctx)
		if err != nil {
			return err
		}
		rel = checked
	}
	if !rel.Newer {
		return ErrNoUpdate
	}

	exe, err := installedBinary()
	if err != nil {
		return err
	}
	if err := u.backup(exe); err != nil {
		return err
	}

	if err := u.sdk.UpdateTo(ctx, rel.handle, exe); err != nil {
		u.undoStaging()
		return fmt.Errorf("updater: stage %s: %w", rel.Latest, err)
	}
	u.logger.Info("Update staged, restart required to take effect",
		"version", rel.Latest)
	return nil
}

// ApplyDevBuild stages the newest asset of the rolling dev release,
// skipping the version comparison.
func (u *Updater) ApplyDevBuild(ctx context.Context) error {
	exe, err := installedBinary()
	if err != nil {
		return err
	}
	if err := u.backup(exe); err != nil {
		return err
	}

	asset := fmt.Sprintf("arducam-node_linux_%s.tar.gz", runtime.GOARCH)
	url := fmt.Sprintf("https://github.com/%s/releases/download/dev/%s", u.slug, asset)
	u.logger.Info("Downloading dev build", "url", url)

	if err := selfupdate.UpdateTo(ctx, url, asset, exe); err != nil {
		u.undoStaging()
		return fmt.Errorf("updater: stage dev build: %w", err)
	}
	u.logger.Info("Dev build staged, restart required to take effect")
	return nil
}

// Rollback restores the backed up binary over the installed one.
func (u *Updater) Rollback() error {
	if u.backups == nil {
		return ErrNoBackup
	}
	return u.backups.restore()
}

// Status reports the running version and the stored backup.
func (u *Updater) Status() Status {
	st := Status{CurrentVersion: version.Version}
	if u.backups != nil {
		if info, ok := u.backups.stored(); ok {
			st.BackupVersion = info.Version
			st.BackupAt = info.CreatedAt
		}
	}
	return st
}

func (u *Updater) backup(exe string) error {
	if u.backups == nil {
		u.logger.Warn("No backup store, staging without rollback cover")
		return nil
	}
	if err := u.backups.save(exe); err != nil {
		return fmt.Errorf("updater: backup: %w", err)
	}
	return nil
}

func (u *Updater) undoStaging() {
	if u.backups == nil {
		return
	}
	if err := u.backups.restore(); err != nil {
		if !errors.Is(err, ErrNoBackup) {
			u.logger.Error("Automatic rollback failed", "error", err)
		}
		return
	}
	u.logger.Info("Automatic rollback completed")
}

// installedBinary resolves the executable path and verifies its
// directory accepts writes, which staging needs for the temp file.
func installedBinary() (string, error) {
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return "", fmt.Errorf("updater: resolve executable: %w", err)
	}
	dir := filepath.Dir(exe)
	probe := filepath.Join(dir, ".arducam-node.update-probe")
	f, err := os.Create(probe)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrReadOnly, dir)
	}
	f.Close()
	os.Remove(probe)
	return exe, nil
}
