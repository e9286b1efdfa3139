// Package browser provisions isolated browser sessions and drives the
// portal's interactive login flow. Everything here blocks the calling
// goroutine; concurrency is the dispatcher's job.
package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/google/uuid"
)

const profileDirPrefix = "profile-"

// Session is a ready-to-drive browser plus the filesystem state backing it.
// Close must run on every exit path, success or failure, so profile
// directories do not accumulate across attempts.
type Session struct {
	Browser *rod.Browser

	launcher   *launcher.Launcher
	profileDir string
	logger     *slog.Logger
}

// Close tears the session down: CDP connection, browser process, profile
// directory.
func (s *Session) Close() {
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			s.logger.Debug("browser close reported error", "error", err)
		}
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
	if s.profileDir != "" {
		if err := os.RemoveAll(s.profileDir); err != nil {
			s.logger.Warn("failed to remove profile directory", "dir", s.profileDir, "error", err)
		}
	}
}

// Provisioner builds isolated browser sessions. Each call gets a uniquely
// named profile directory, so concurrent sessions can never collide on
// on-disk browser state ("profile already in use" class of failures).
type Provisioner struct {
	// BaseDir is where per-attempt profile directories are created.
	BaseDir string
	// BinaryOverride skips candidate-path discovery when set.
	BinaryOverride string
	// Headless controls the browser's display mode; containers always want true.
	Headless bool
	// Containerized enables the conservative container flag set.
	Containerized bool
	Logger        *slog.Logger
}

// Provision launches a browser with a fresh profile and connects to it.
// The returned session owns the profile directory and the process.
func (p *Provisioner) Provision() (*Session, error) {
	bin, err := p.resolveBinary()
	if err != nil {
		return nil, err
	}

	dir := p.profilePath()
	// A leftover directory at this path would make the browser refuse the
	// profile; the name is unique but the pre-clean costs nothing.
	_ = os.RemoveAll(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, domain.WrapError(domain.KindProvisioning, "failed to create profile directory", err)
	}

	l := launcher.New().
		Bin(bin).
		Headless(p.Headless).
		UserDataDir(dir)

	if p.Containerized {
		l = p.applyContainerFlags(l)
	}

	controlURL, err := l.Launch()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, domain.WrapError(domain.KindProvisioning, "failed to launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		_ = os.RemoveAll(dir)
		return nil, domain.WrapError(domain.KindProvisioning, "failed to connect to browser", err)
	}

	p.Logger.Debug("browser session provisioned", "bin", bin, "profile_dir", dir)

	return &Session{
		Browser:    b,
		launcher:   l,
		profileDir: dir,
		logger:     p.Logger,
	}, nil
}

// applyContainerFlags is the stability-first set for containerized runs:
// background subsystems off, shared memory avoided, renderer memory capped.
// Deliberately no single-process or zygote tweaks; those trade stability for
// startup time and fall over under memory pressure.
func (p *Provisioner) applyContainerFlags(l *launcher.Launcher) *launcher.Launcher {
	return l.
		NoSandbox(true).
		Set(flags.Flag("disable-background-networking")).
		Set(flags.Flag("disable-default-apps")).
		Set(flags.Flag("disable-extensions")).
		Set(flags.Flag("disable-sync")).
		Set(flags.Flag("disable-translate")).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("metrics-recording-only")).
		Set(flags.Flag("mute-audio")).
		Set(flags.Flag("no-first-run")).
		Set(flags.Flag("js-flags"), "--max-old-space-size=256")
}

// profilePath generates a directory name that cannot collide across
// concurrent sessions or across processes: nanosecond timestamp + pid +
// random suffix.
func (p *Provisioner) profilePath() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	name := fmt.Sprintf("%s%d-%d-%s", profileDirPrefix, time.Now().UnixNano(), os.Getpid(), suffix)
	return filepath.Join(p.BaseDir, name)
}

func (p *Provisioner) resolveBinary() (string, error) {
	if p.BinaryOverride != "" {
		if _, err := os.Stat(p.BinaryOverride); err != nil {
			return "", domain.WrapError(domain.KindProvisioning,
				"configured browser binary not found", err)
		}
		return p.BinaryOverride, nil
	}

	for _, candidate := range CandidateBinaries(runtime.GOOS) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", domain.NewError(domain.KindProvisioning, "no browser binary found on this host")
}

// CandidateBinaries is the ordered search list per platform: preferred
// binaries first, fallbacks after. Expressed as data so heterogeneous hosts
// (developer desktop vs. container image) need no per-platform code paths.
func CandidateBinaries(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"/usr/bin/google-chrome-stable",
			"/usr/bin/google-chrome",
			"/usr/bin/chromium-browser",
			"/usr/bin/chromium",
			"/snap/bin/chromium",
			"/usr/lib/chromium/chromium",
		}
	}
}

// RunningInContainer reports whether the process looks containerized, used
// to pick the conservative flag set by default.
func RunningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return os.Getenv("VAULT_IN_CONTAINER") == "true"
}

// SweepStale removes leftover profile directories older than maxAge from the
// base directory. Crashed attempts cannot clean up after themselves; this
// runs at startup so their disk usage does not grow without bound.
func (p *Provisioner) SweepStale(maxAge time.Duration) {
	entries, err := os.ReadDir(p.BaseDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), profileDirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(p.BaseDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			p.Logger.Warn("failed to sweep stale profile directory", "dir", dir, "error", err)
		} else {
			p.Logger.Debug("swept stale profile directory", "dir", dir)
		}
	}
}
