// Package scriptdir manages the on-disk migration script layout shared by
// the provider handlers. Script files are named "<id>_<name><ext>" where the
// id is a 14-digit UTC timestamp; listing a directory yields migrations in
// ascending id order, which is the apply order.
package scriptdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schemamesh/migrator/pkg/migration"
)

// Entry is one script file discovered in a migrations directory.
type Entry struct {
	ID   string
	Name string
	Path string
}

// Info converts an entry to the contract's migration info.
func (e Entry) Info() migration.Info {
	return migration.Info{ID: e.ID, Name: e.Name, Script: e.Path}
}

// List returns the script entries in dir with the given extension, sorted by
// ascending id. A missing directory yields an empty list.
func List(dir, ext string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var out []Entry
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		id, name, ok := parseFilename(strings.TrimSuffix(entry.Name(), ext))
		if !ok {
			continue
		}
		out = append(out, Entry{
			ID:   id,
			Name: name,
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// parseFilename splits "<id>_<name>" and validates the id shape.
func parseFilename(base string) (id, name string, ok bool) {
	idx := strings.Index(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", false
	}
	id, name = base[:idx], base[idx+1:]
	if len(id) != 14 {
		return "", "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return id, name, true
}

// Filename returns the canonical script filename for a migration.
func Filename(id, name, ext string) string {
	return fmt.Sprintf("%s_%s%s", id, name, ext)
}

// Write creates a new script file. An existing file with the same id is a
// contract violation reported as a duplicate-id error, never overwritten.
func Write(dir, id, name, ext, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create migrations directory %s: %w", dir, err)
	}

	existing, err := List(dir, ext)
	if err != nil {
		return "", err
	}
	for _, e := range existing {
		if e.ID == id {
			return "", fmt.Errorf("%w: %s already used by migration %q", migration.ErrDuplicateMigrationID, id, e.Name)
		}
	}

	path := filepath.Join(dir, Filename(id, name, ext))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("failed to write migration script: %w", err)
	}
	return path, nil
}

// Pending filters entries down to those whose ids are not in applied.
func Pending(entries []Entry, applied map[string]bool) []Entry {
	var out []Entry
	for _, e := range entries {
		if !applied[e.ID] {
			out = append(out, e)
		}
	}
	return out
}
