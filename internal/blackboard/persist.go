package blackboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// currentSnapshotVersion is the schema version written to persisted
// snapshot files.
const currentSnapshotVersion = 1

// entryDoc is the on-disk representation of an Entry.
type entryDoc struct {
	Value          any       `json:"value"`
	CreatedAt      time.Time `json:"created_at"`
	LastModifiedAt time.Time `json:"last_modified_at"`
	LastModifiedBy string    `json:"last_modified_by"`
	Version        uint64    `json:"version"`
}

// document is the on-disk representation of a Blackboard:
// {version, namespaces: {name: {key: entry}}}.
type document struct {
	Version    int                           `json:"version"`
	Namespaces map[string]map[string]entryDoc `json:"namespaces"`
}

// Save serializes all namespaces and entries to path as JSON. The
// activity log is not persisted. Writes are atomic: the document is
// written to a temp file in the same directory then renamed over the
// destination, so a crash mid-write never leaves a corrupt snapshot.
func (b *Blackboard) Save(path string) error {
	b.mu.RLock()
	doc := document{
		Version:    currentSnapshotVersion,
		Namespaces: make(map[string]map[string]entryDoc, len(b.namespaces)),
	}
	for ns, table := range b.namespaces {
		entries := make(map[string]entryDoc, len(table))
		for k, e := range table {
			entries[k] = entryDoc{
				Value:          e.Value,
				CreatedAt:      e.CreatedAt,
				LastModifiedAt: e.LastModifiedAt,
				LastModifiedBy: e.LastModifiedBy,
				Version:        e.Version,
			}
		}
		doc.Namespaces[ns] = entries
	}
	b.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("blackboard: marshal snapshot: %w", err)
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("blackboard: write snapshot: %w", err)
	}
	return nil
}

// Load replaces the blackboard's namespaces and entries with the
// contents of a snapshot file written by Save. Versions resume from the
// stored values rather than resetting to zero.
func (b *Blackboard) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("blackboard: read snapshot: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("blackboard: unmarshal snapshot: %w", err)
	}

	namespaces := make(map[string]map[string]*Entry, len(doc.Namespaces))
	for ns, entries := range doc.Namespaces {
		table := make(map[string]*Entry, len(entries))
		for k, d := range entries {
			table[k] = &Entry{
				Value:          d.Value,
				CreatedAt:      d.CreatedAt,
				LastModifiedAt: d.LastModifiedAt,
				LastModifiedBy: d.LastModifiedBy,
				Version:        d.Version,
			}
		}
		namespaces[ns] = table
	}
	if _, ok := namespaces[DefaultNamespace]; !ok {
		namespaces[DefaultNamespace] = make(map[string]*Entry)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.mu.Lock()
	b.namespaces = namespaces
	b.mu.Unlock()
	return nil
}

// atomicWriteFile writes data to a temp file beside path, fsyncs it,
// then renames it over path: a single-file write-temp-then-rename, no
// session-lock machinery needed here.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bb-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
