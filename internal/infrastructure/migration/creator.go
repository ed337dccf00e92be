package migration

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// versionWidth is the zero padded width of sequential migration versions
const versionWidth = 6

var fileTemplates = map[string]*template.Template{
	"up": template.Must(template.New("up").Parse(`-- Migration: {{.Name}}
-- Created: {{.Created}}
-- Description: {{.Description}}

`)),
	"down": template.Must(template.New("down").Parse(`-- Migration: {{.Name}} (Rollback)
-- Created: {{.Created}}

`)),
}

// Migration is one up/down pair found in a migrations directory
type Migration struct {
	Version uint
	Name    string
	HasDown bool
}

// CreatedMigration describes a freshly written migration pair
type CreatedMigration struct {
	Version     uint
	Name        string
	Description string
	Created     string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair numbered one past the highest
// version already present in migrationsDir.
func CreateMigration(migrationsDir, name, description string) (*CreatedMigration, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := ListMigrations(os.DirFS(migrationsDir))
	if err != nil {
		return nil, err
	}
	var next uint = 1
	if len(existing) > 0 {
		next = existing[len(existing)-1].Version + 1
	}

	base := fmt.Sprintf("%0*d_%s", versionWidth, next, slug)
	cm := &CreatedMigration{
		Version:     next,
		Name:        slug,
		Description: description,
		Created:     time.Now().Format(time.RFC3339),
		UpPath:      filepath.Join(migrationsDir, base+".up.sql"),
		DownPath:    filepath.Join(migrationsDir, base+".down.sql"),
	}

	if err := writeTemplate(cm.UpPath, "up", cm); err != nil {
		return nil, err
	}
	if err := writeTemplate(cm.DownPath, "down", cm); err != nil {
		_ = os.Remove(cm.UpPath)
		return nil, err
	}
	return cm, nil
}

func writeTemplate(path, kind string, data *CreatedMigration) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := fileTemplates[kind].Execute(f, data); err != nil {
		return fmt.Errorf("failed to write %s migration: %w", kind, err)
	}
	return nil
}

// sanitizeName lowercases name and joins its alphanumeric runs with underscores
func sanitizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		kept := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, f)
		if kept != "" {
			parts = append(parts, kept)
		}
	}
	return strings.Join(parts, "_")
}

// ListMigrations returns the migrations of fsys ordered by version.
// Files that do not follow the <version>_<name>.<up|down>.sql layout are ignored.
func ListMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := make(map[uint]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		m, seen := byVersion[version]
		if !seen {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if direction == "down" {
			m.HasDown = true
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseFileName(file string) (version uint, name, direction string, ok bool) {
	rest, found := strings.CutSuffix(file, ".sql")
	if !found {
		return 0, "", "", false
	}
	switch {
	case strings.HasSuffix(rest, ".up"):
		direction, rest = "up", strings.TrimSuffix(rest, ".up")
	case strings.HasSuffix(rest, ".down"):
		direction, rest = "down", strings.TrimSuffix(rest, ".down")
	default:
		return 0, "", "", false
	}
	num, name, found := strings.Cut(rest, "_")
	if !found {
		return 0, "", "", false
	}
	v, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return uint(v), name, direction, true
}
