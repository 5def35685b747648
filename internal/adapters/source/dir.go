package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/okian/minocc/internal/domain/model"
)

const (
	countsPrefix = "counts_"
	countsExt    = ".yaml"
	xzExt        = ".xz"
	countsGlob   = "*/" + countsPrefix + "*{" + countsExt + "," + countsExt + xzExt + "}"
)

// countsFile is the on-disk shape of one context's spike counts.
type countsFile struct {
	Duration time.Duration `yaml:"duration"`
	Counts   []int         `yaml:"counts"`
}

// Dir reads <root>/<session>/counts_<epoch>_<trialtype>.yaml files. A file
// may also be stored xz-compressed with an extra .xz suffix; the plain file
// wins when both exist. Trial types must not contain an underscore, since
// Discover splits the file name at the last one; WriteFile refuses such keys.
type Dir struct {
	root string
}

// NewDir returns a source rooted at root, which must be a directory.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("source dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source dir: %s is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// FilePath returns where the uncompressed counts of key live under root.
func FilePath(root string, key model.Key) string {
	return filepath.Join(root, key.Session, countsPrefix+key.Context()+countsExt)
}

func (d *Dir) Counts(ctx context.Context, key model.Key) (model.Counts, error) {
	if err := ctx.Err(); err != nil {
		return model.Counts{}, err
	}
	raw, err := readCounts(FilePath(d.root, key))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Counts{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return model.Counts{}, fmt.Errorf("read counts %s: %w", key, err)
	}

	var f countsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return model.Counts{}, fmt.Errorf("decode counts %s: %w", key, err)
	}
	return model.Counts{PerNeuron: f.Counts, Duration: f.Duration}, nil
}

func readCounts(plain string) ([]byte, error) {
	raw, err := os.ReadFile(plain)
	if !errors.Is(err, fs.ErrNotExist) {
		return raw, err
	}

	f, err := os.Open(plain + xzExt)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	return io.ReadAll(r)
}

func (d *Dir) Close() error { return nil }

// Discover lists the contexts that have a counts file under the root, in
// session, epoch, trial type order. The trial type is the part of the file
// name after the last underscore.
func (d *Dir) Discover(ctx context.Context) ([]model.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(os.DirFS(d.root), countsGlob)
	if err != nil {
		return nil, fmt.Errorf("discover counts: %w", err)
	}

	seen := make(map[model.Key]struct{}, len(matches))
	keys := make([]model.Key, 0, len(matches))
	for _, m := range matches {
		key, ok := parseCountsPath(m)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	sortKeys(keys)
	return keys, nil
}

// parseCountsPath turns "<session>/counts_<epoch>_<trialtype>.yaml[.xz]"
// back into its key.
func parseCountsPath(p string) (model.Key, bool) {
	session, name := path.Split(p)
	session = strings.TrimSuffix(session, "/")
	name = strings.TrimSuffix(name, xzExt)
	name = strings.TrimSuffix(name, countsExt)
	name = strings.TrimPrefix(name, countsPrefix)

	i := strings.LastIndex(name, "_")
	if session == "" || i <= 0 || i == len(name)-1 {
		return model.Key{}, false
	}
	return model.Key{Session: session, Epoch: name[:i], TrialType: name[i+1:]}, true
}

// WriteFile stores c as the counts file of key under root, creating the
// session directory as needed.
func WriteFile(root string, key model.Key, c model.Counts) error {
	file, raw, err := encodeCounts(root, key, c)
	if err != nil {
		return err
	}
	return os.WriteFile(file, raw, 0o644)
}

// WriteCompressedFile is WriteFile with xz compression.
func WriteCompressedFile(root string, key model.Key, c model.Counts) (err error) {
	file, raw, err := encodeCounts(root, key, c)
	if err != nil {
		return err
	}

	f, err := os.Create(file + xzExt)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := xz.NewWriter(f)
	if err != nil {
		return fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("compress counts %s: %w", key, err)
	}
	return w.Close()
}

func encodeCounts(root string, key model.Key, c model.Counts) (string, []byte, error) {
	if strings.Contains(key.TrialType, "_") || key.Session == "" || key.Epoch == "" || key.TrialType == "" {
		return "", nil, fmt.Errorf("%w: %s", ErrUnnamableKey, key)
	}
	file := FilePath(root, key)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", nil, fmt.Errorf("create session dir: %w", err)
	}
	raw, err := yaml.Marshal(countsFile{Duration: c.Duration, Counts: c.PerNeuron})
	if err != nil {
		return "", nil, fmt.Errorf("encode counts %s: %w", key, err)
	}
	return file, raw, nil
}
