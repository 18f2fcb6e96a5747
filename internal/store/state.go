package store

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/c2h5oh/datasize"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/neuralfield/internal/fsutil"
	"github.com/banshee-data/neuralfield/internal/timeutil"
)

// ErrNotFound is returned when no persisted state or parameter record matches.
var ErrNotFound = errors.New("not found")

const (
	stateExt       = ".state.gz"
	timestampStyle = "20060102_150405"
)

// Store reads and writes persisted run outputs under one directory.
type Store struct {
	dir   string
	fs    fsutil.FileSystem
	clock timeutil.Clock
}

// New returns a Store rooted at dir.
func New(dir string, fsys fsutil.FileSystem, clock timeutil.Clock) *Store {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{dir: dir, fs: fsys, clock: clock}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// stateRecord is the gob payload of one final-state file.
type stateRecord struct {
	Name          string
	SavedUnixNano int64
	Values        []float64
}

// Slug turns a field name into a file-name prefix: "Sequence Memory"
// becomes "sequence_memory".
func Slug(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "state"
	}
	return out
}

// serializeState compresses a state record using gob encoding and gzip compression.
func serializeState(rec stateRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(rec); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeState decompresses and decodes a gob+gzip state blob.
func deserializeState(blob []byte) (stateRecord, error) {
	if len(blob) == 0 {
		return stateRecord{}, fmt.Errorf("empty state blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return stateRecord{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var rec stateRecord
	if err := gob.NewDecoder(gz).Decode(&rec); err != nil {
		return stateRecord{}, fmt.Errorf("failed to decode state: %w", err)
	}
	return rec, nil
}

// SaveFinalState writes row under a file named after name and the current
// time, and returns the path written. The row is copied.
func (s *Store) SaveFinalState(row []float64, name string) (string, error) {
	if len(row) == 0 {
		return "", fmt.Errorf("state %q is empty", name)
	}
	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	now := s.clock.Now()
	blob, err := serializeState(stateRecord{
		Name:          name,
		SavedUnixNano: now.UnixNano(),
		Values:        append([]float64(nil), row...),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode state %q: %w", name, err)
	}

	base := Slug(name) + "_" + now.Format(timestampStyle)
	path := filepath.Join(s.dir, base+stateExt)
	for n := 2; s.fs.Exists(path); n++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d%s", base, n, stateExt))
	}
	if err := s.fs.WriteFile(path, blob, 0644); err != nil {
		return "", fmt.Errorf("failed to write state %q: %w", path, err)
	}
	log.Printf("[store] Saved final state: name=%q values=%d file=%s (%s)", name, len(row), path, datasize.ByteSize(len(blob)).HumanReadable())
	return path, nil
}

// LoadFinalState loads the named state file, relative to the store
// directory. With an empty file name it loads the most recently modified
// state of any field. The values are returned as a 1 x Nx row vector.
func (s *Store) LoadFinalState(file string) (*mat.Dense, error) {
	if file == "" {
		paths, err := s.statesByRecency("*" + stateExt)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no saved state in %s: %w", s.dir, ErrNotFound)
		}
		rec, err := s.read(paths[0])
		if err != nil {
			return nil, err
		}
		return rowVector(rec.Values), nil
	}

	path := file
	if !filepath.IsAbs(path) {
		if !filepath.IsLocal(file) {
			return nil, fmt.Errorf("state file %q escapes %s", file, s.dir)
		}
		path = filepath.Join(s.dir, file)
	}
	rec, err := s.read(path)
	if err != nil {
		return nil, err
	}
	return rowVector(rec.Values), nil
}

// LoadLatestState loads the most recently modified state saved for name.
func (s *Store) LoadLatestState(name string) (*mat.Dense, error) {
	paths, err := s.statesByRecency(Slug(name) + "_*" + stateExt)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		rec, err := s.read(p)
		if err != nil {
			return nil, err
		}
		// slugs can collide across names
		if rec.Name == name {
			log.Printf("[store] Loaded final state: name=%q file=%s", name, p)
			return rowVector(rec.Values), nil
		}
	}
	return nil, fmt.Errorf("no saved state for %q in %s: %w", name, s.dir, ErrNotFound)
}

func (s *Store) read(path string) (stateRecord, error) {
	blob, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return stateRecord{}, fmt.Errorf("state %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return stateRecord{}, fmt.Errorf("failed to read state %s: %w", path, err)
	}
	rec, err := deserializeState(blob)
	if err != nil {
		return stateRecord{}, fmt.Errorf("state %s: %w", path, err)
	}
	if len(rec.Values) == 0 {
		return stateRecord{}, fmt.Errorf("state %s has no values", path)
	}
	return rec, nil
}

// statesByRecency globs pattern inside the store directory and orders the
// matches newest first. Equal modification times fall back to the name,
// whose timestamp suffix sorts chronologically.
func (s *Store) statesByRecency(pattern string) ([]string, error) {
	paths, err := s.fs.Glob(filepath.Join(s.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	mod := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		info, err := s.fs.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		mod[p] = info.ModTime()
	}
	sort.SliceStable(paths, func(i, j int) bool {
		ti, tj := mod[paths[i]], mod[paths[j]]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return paths[i] > paths[j]
	})
	return paths, nil
}

// rowVector reshapes a flat array into a 1 x n matrix.
func rowVector(values []float64) *mat.Dense {
	return mat.NewDense(1, len(values), values)
}
