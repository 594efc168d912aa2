package paths

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
)

// Layout names every location an update run touches, relative to Root
type Layout struct {
	Root           string   // installation root, e.g. /home/pi
	LegacyDir      string   // directly-editable legacy installation
	Preserve       []string // user data inside LegacyDir, relative paths
	PackagedDir    string   // packaged, versioned installation
	Executable     string   // packaged executable inside PackagedDir
	AssetsDir      string   // sub-path of PackagedDir holding launcher and marker
	LauncherScript string   // top-level launcher script
	BackupDir      string   // transient backup staging area
}

func init() {
	// The root default must follow $HOME as it is at call time.
	homedir.DisableCache = true
}

// DefaultLayout returns the stock device layout rooted at root. An empty
// root resolves to the current user's home directory at call time.
func DefaultLayout(root string) (Layout, error) {
	if root == "" {
		home, err := homedir.Dir()
		if err != nil {
			return Layout{}, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		root = home
	}
	return Layout{
		Root:           root,
		LegacyDir:      "easycut-smartbench",
		Preserve:       []string{"src/jobCache", "src/sb_values"},
		PackagedDir:    "easycut",
		Executable:     "main.exe",
		AssetsDir:      "assets",
		LauncherScript: "start_easycut.sh",
		BackupDir:      "backup",
	}, nil
}

func (l Layout) join(elem ...string) string {
	return filepath.Join(append([]string{l.Root}, elem...)...)
}

// LegacyPath is the absolute legacy installation directory
func (l Layout) LegacyPath() string { return l.join(l.LegacyDir) }

// PackagedPath is the absolute packaged installation directory
func (l Layout) PackagedPath() string { return l.join(l.PackagedDir) }

// ExecutablePath is the absolute path of the packaged executable
func (l Layout) ExecutablePath() string { return l.join(l.PackagedDir, l.Executable) }

// AssetsPath is the absolute assets directory inside the packaged installation
func (l Layout) AssetsPath() string { return l.join(l.PackagedDir, l.AssetsDir) }

// LauncherPath is the absolute top-level launcher script
func (l Layout) LauncherPath() string { return l.join(l.LauncherScript) }

// BackupPath is the absolute backup staging directory
func (l Layout) BackupPath() string { return l.join(l.BackupDir) }

// PreservePaths returns the absolute legacy paths holding user data
func (l Layout) PreservePaths() []string {
	out := make([]string, 0, len(l.Preserve))
	for _, p := range l.Preserve {
		out = append(out, filepath.Join(l.LegacyPath(), Denormalize(p)))
	}
	return out
}

// BasicRequirements are the files without which the device cannot start the
// packaged application.
func (l Layout) BasicRequirements() []string {
	return []string{l.ExecutablePath(), l.LauncherPath()}
}

// Validate rejects layouts whose names would escape Root or collide
func (l Layout) Validate() error {
	if l.Root == "" {
		return errors.New("layout root is empty")
	}
	named := map[string]string{
		"legacy_dir":      l.LegacyDir,
		"packaged_dir":    l.PackagedDir,
		"executable":      l.Executable,
		"launcher_script": l.LauncherScript,
		"backup_dir":      l.BackupDir,
	}
	for key, name := range named {
		if name == "" || name == "." || strings.Contains(Normalize(name), "..") || filepath.IsAbs(name) {
			return fmt.Errorf("invalid %s %q", key, name)
		}
	}
	// Everything is staged under its basename, so basenames must not collide.
	staged := map[string]string{strings.ToLower(filepath.Base(l.Executable)): "executable"}
	for _, p := range l.Preserve {
		if p == "" || strings.HasPrefix(Normalize(p), "..") || filepath.IsAbs(p) {
			return fmt.Errorf("invalid preserve path %q", p)
		}
		base := strings.ToLower(filepath.Base(Denormalize(p)))
		if prev, ok := staged[base]; ok {
			return fmt.Errorf("preserve path %q shares its name with %s", p, prev)
		}
		staged[base] = fmt.Sprintf("preserve path %q", p)
	}
	if CleanLower(l.BackupDir) == CleanLower(l.PackagedDir) || CleanLower(l.BackupDir) == CleanLower(l.LegacyDir) {
		return fmt.Errorf("backup_dir %q must differ from the installation directories", l.BackupDir)
	}
	return nil
}

// Normalize converts a path to use forward slashes
func Normalize(p string) string {
	return strings.ReplaceAll(filepath.Clean(p), string(filepath.Separator), "/")
}

// Denormalize converts a path from forward slashes to platform-specific separators
func Denormalize(p string) string {
	return strings.ReplaceAll(p, "/", string(filepath.Separator))
}

// CleanLower returns a cleaned, lowercase path for case-insensitive comparison
func CleanLower(p string) string {
	return strings.ToLower(filepath.Clean(p))
}

// FindActual finds the on-disk spelling of targetPath when only the case differs.
// FAT-formatted media and files copied from them often disagree on case.
func FindActual(targetPath string) (string, error) {
	if _, err := os.Lstat(targetPath); err == nil {
		return targetPath, nil
	}

	dir := filepath.Dir(targetPath)
	filename := filepath.Base(targetPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return targetPath, err
	}

	for _, entry := range entries {
		if strings.EqualFold(entry.Name(), filename) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return targetPath, fs.ErrNotExist
}

// Within resolves target and ensures it stays inside base
func Within(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}
	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s", target)
	}
	return absTarget, nil
}

// Exists reports whether path exists (any type)
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsDir reports whether path is an existing directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsHidden reports dotfiles and the volume metadata folders removable media carry
func IsHidden(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(name) {
	case "system volume information", "$recycle.bin", "lost+found":
		return true
	}
	return false
}

// Kind classifies filesystem errors for the operation log
type Kind int

const (
	KindOther Kind = iota
	KindNotFound
	KindPermission
)

// Classify reports whether err is a not-found, permission, or other failure
func Classify(err error) Kind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	default:
		return KindOther
	}
}

// Describe renders err the way the summary prints it
func Describe(err error) string {
	switch Classify(err) {
	case KindNotFound:
		return "not found"
	case KindPermission:
		return "permission denied"
	default:
		return err.Error()
	}
}

// CopyFile copies src to dst preserving mode and modification time
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// CopyTree recursively copies the directory src to dst. Existing files in dst
// are overwritten; symlinks are recreated rather than followed.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, fi.Mode().Perm()|0700)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		default:
			return CopyFile(path, target)
		}
	})
}

// Copy copies src to dst, recursing for directories
func Copy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return CopyTree(src, dst)
	}
	return CopyFile(src, dst)
}

// Move relocates src to dst, replacing anything already at dst. When a plain
// rename is not possible (different filesystems) it copies and removes src.
func Move(src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := Copy(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}
