package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	ForwardSuffix = "_fwd.dat"
	AdjointSuffix = "_adj.dat"
)

// Persister is implemented by memoize.Memoizer
type Persister interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

/*
Manager stores the forward and adjoint evaluation caches of a session as a pair of files
<BaseDir>/<base>_fwd.dat and <BaseDir>/<base>_adj.dat. Both files are written to temporary
names first and renamed in place only after both images are complete. A failed rename puts
the previous forward image back, so only a crash between the two renames can leave a new
forward image next to an old adjoint image.
*/
type Manager struct {
	BaseDir string
}

func NewManager(baseDir string) (mgr *Manager, err error) {
	if baseDir == "" {
		baseDir = "."
	}
	if err = os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create checkpoint directory: %w", err)
	}
	return &Manager{BaseDir: baseDir}, nil
}

func (mgr *Manager) Paths(base string) (fwd, adj string) {
	fwd = filepath.Join(mgr.BaseDir, base+ForwardSuffix)
	adj = filepath.Join(mgr.BaseDir, base+AdjointSuffix)
	return
}

func checkBase(base string) error {
	if base == "" {
		return fmt.Errorf("checkpoint base name cannot be empty")
	}
	if strings.ContainsRune(base, os.PathSeparator) {
		return fmt.Errorf("checkpoint base name %q contains a path separator", base)
	}
	return nil
}

func (mgr *Manager) Save(base string, fwd, adj Persister) (err error) {
	var (
		fwdTmp, adjTmp string
	)
	if err = checkBase(base); err != nil {
		return
	}
	fwdPath, adjPath := mgr.Paths(base)
	if fwdTmp, err = mgr.writeTemp(fwd); err != nil {
		return fmt.Errorf("unable to write forward checkpoint: %w", err)
	}
	if adjTmp, err = mgr.writeTemp(adj); err != nil {
		_ = os.Remove(fwdTmp)
		return fmt.Errorf("unable to write adjoint checkpoint: %w", err)
	}
	// The previous forward image stays aside until the adjoint image is in place
	var fwdPrev string
	if _, statErr := os.Stat(fwdPath); statErr == nil {
		if fwdPrev, err = mgr.reserveTemp(); err == nil {
			err = os.Rename(fwdPath, fwdPrev)
		}
		if err != nil {
			removeAll(fwdPrev, fwdTmp, adjTmp)
			return fmt.Errorf("unable to set aside forward checkpoint: %w", err)
		}
	}
	if err = os.Rename(fwdTmp, fwdPath); err != nil {
		removeAll(fwdTmp, adjTmp)
		restore(fwdPrev, fwdPath)
		return fmt.Errorf("unable to rename forward checkpoint: %w", err)
	}
	if err = os.Rename(adjTmp, adjPath); err != nil {
		removeAll(adjTmp)
		restore(fwdPrev, fwdPath)
		return fmt.Errorf("unable to rename adjoint checkpoint: %w", err)
	}
	removeAll(fwdPrev)
	return
}

// reserveTemp returns an unused temporary name in the checkpoint directory
func (mgr *Manager) reserveTemp() (name string, err error) {
	var (
		file *os.File
	)
	if file, err = os.CreateTemp(mgr.BaseDir, ".checkpoint-*.tmp"); err != nil {
		return
	}
	name = file.Name()
	return name, file.Close()
}

// restore puts the previous image back at path, or removes path when there was none
func restore(prev, path string) {
	if prev == "" {
		_ = os.Remove(path)
		return
	}
	_ = os.Rename(prev, path)
}

func removeAll(names ...string) {
	for _, name := range names {
		if name != "" {
			_ = os.Remove(name)
		}
	}
}

func (mgr *Manager) writeTemp(p Persister) (name string, err error) {
	var (
		file *os.File
	)
	if file, err = os.CreateTemp(mgr.BaseDir, ".checkpoint-*.tmp"); err != nil {
		return
	}
	name = file.Name()
	defer func() {
		err = errors.Join(err, file.Close())
		if err != nil {
			_ = os.Remove(name)
			name = ""
		}
	}()
	w := bufio.NewWriter(file)
	if err = p.Save(w); err != nil {
		return
	}
	err = w.Flush()
	return
}

// Load restores both caches. A populated cache fails with types.ErrCheckpointConflict.
func (mgr *Manager) Load(base string, fwd, adj Persister) (err error) {
	if err = checkBase(base); err != nil {
		return
	}
	fwdPath, adjPath := mgr.Paths(base)
	for _, path := range []string{fwdPath, adjPath} {
		if _, err = os.Stat(path); err != nil {
			return fmt.Errorf("checkpoint %q is incomplete: %w", base, err)
		}
	}
	if err = readFile(fwdPath, fwd); err != nil {
		return fmt.Errorf("unable to load forward checkpoint %s: %w", fwdPath, err)
	}
	if err = readFile(adjPath, adj); err != nil {
		return fmt.Errorf("unable to load adjoint checkpoint %s: %w", adjPath, err)
	}
	return
}

func readFile(path string, p Persister) (err error) {
	var (
		file *os.File
	)
	if file, err = os.Open(path); err != nil {
		return
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	err = p.Load(bufio.NewReader(file))
	return
}

// List reports the base names that have both checkpoint files present
func (mgr *Manager) List() (bases []string, err error) {
	var (
		entries []os.DirEntry
		names   = make(map[string]bool)
	)
	if entries, err = os.ReadDir(mgr.BaseDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			names[entry.Name()] = true
		}
	}
	for name := range names {
		base, ok := strings.CutSuffix(name, ForwardSuffix)
		if !ok || base == "" {
			continue
		}
		if names[base+AdjointSuffix] {
			bases = append(bases, base)
		}
	}
	sort.Strings(bases)
	return
}

func (mgr *Manager) Delete(base string) (err error) {
	if err = checkBase(base); err != nil {
		return
	}
	fwdPath, adjPath := mgr.Paths(base)
	for _, path := range []string{fwdPath, adjPath} {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return
}
