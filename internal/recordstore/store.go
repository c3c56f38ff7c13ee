// Package recordstore provides durable, namespaced persistence for the
// flight recorder: one JSON file per record under a fixed set of
// namespace directories.
package recordstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
)

// Namespace identifies one of the fixed storage subdirectories.
type Namespace string

const (
	NamespaceSessions        Namespace = "sessions"
	NamespaceLayers          Namespace = "layers"
	NamespaceAudit           Namespace = "audit"
	NamespacePerformance     Namespace = "performance"
	NamespaceReplay          Namespace = "replay"
	NamespaceTraces          Namespace = "traces"
	NamespaceLineage         Namespace = "lineage"
	NamespaceTransformations Namespace = "transformations"
	NamespaceIndexes         Namespace = "indexes"
)

// Namespaces lists every namespace the store owns.
var Namespaces = []Namespace{
	NamespaceSessions,
	NamespaceLayers,
	NamespaceAudit,
	NamespacePerformance,
	NamespaceReplay,
	NamespaceTraces,
	NamespaceLineage,
	NamespaceTransformations,
	NamespaceIndexes,
}

// Store is a file-backed record store rooted at a single directory.
// Writes are atomic (temp file + rename) so a reader never observes a
// partially written record.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates a Store rooted at root. Call EnsureNamespaces before writing.
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// NamespacePath returns the directory backing a namespace.
func (s *Store) NamespacePath(ns Namespace) string {
	return filepath.Join(s.root, string(ns))
}

// EnsureNamespaces idempotently creates every namespace directory.
// Safe to call concurrently and repeatedly.
func (s *Store) EnsureNamespaces() error {
	for _, ns := range Namespaces {
		if err := os.MkdirAll(s.NamespacePath(ns), 0o755); err != nil {
			return domain.ErrStorageIO("ensure_namespaces", err).WithEntity(string(ns))
		}
	}
	return nil
}

// WriteRecord serializes record as JSON and writes it as a new file under
// ns, returning the path written. The filename is hint + ".json"; the hint
// is expected to already be unique (category prefix + generated id +
// timestamp).
func (s *Store) WriteRecord(ns Namespace, hint string, record any) (string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", domain.ErrInvalid("record is not serializable").WithOp("write_record").WithCause(err)
	}

	dir := s.NamespacePath(ns)
	target := filepath.Join(dir, sanitizeFilename(hint)+".json")

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", domain.ErrStorageIO("write_record", err).WithEntity(target)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", domain.ErrStorageIO("write_record", err).WithEntity(target)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", domain.ErrStorageIO("write_record", err).WithEntity(target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", domain.ErrStorageIO("write_record", err).WithEntity(target)
	}

	return target, nil
}

// ReadRecord deserializes the record at path into out.
// Returns a NotFound error for missing files and a Corrupt error for
// unparsable ones.
func (s *Store) ReadRecord(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ErrRecordNotFound(path)
		}
		return domain.ErrStorageIO("read_record", err).WithEntity(path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.ErrCorrupt(path, err)
	}
	return nil
}

// ListRecords returns the paths of records under ns whose base filename
// matches predicate, sorted by name. A nil predicate matches everything.
// Temp files from in-flight writes are never listed.
func (s *Store) ListRecords(ns Namespace, predicate func(name string) bool) ([]string, error) {
	dir := s.NamespacePath(ns)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.ErrStorageIO("list_records", err).WithEntity(dir)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if predicate != nil && !predicate(name) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// HasPrefix returns a ListRecords predicate matching a filename prefix.
func HasPrefix(prefix string) func(string) bool {
	return func(name string) bool {
		return strings.HasPrefix(name, prefix)
	}
}

// sanitizeFilename keeps hints filesystem-safe without losing uniqueness.
func sanitizeFilename(hint string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, hint)
}
