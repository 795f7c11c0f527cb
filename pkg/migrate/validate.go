package migrate

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	markerUp    = "-- +goose Up"
	markerDown  = "-- +goose Down"
	markerBegin = "-- +goose StatementBegin"
	markerEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks the migrations in dir. See ValidateFS.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks every .sql file at the root of fsys: the file name carries
// a unique 14-digit version, the Up section precedes the Down section, and
// StatementBegin/StatementEnd markers pair up without nesting.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		if err := checkMarkers(fsys, name); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkMarkers(fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	var sawUp, sawDown, inStatement bool
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		switch strings.TrimSpace(scanner.Text()) {
		case markerUp:
			if sawUp || sawDown {
				return fmt.Errorf("line %d: unexpected %q", line, markerUp)
			}
			sawUp = true
		case markerDown:
			if !sawUp || sawDown {
				return fmt.Errorf("line %d: %q must follow a single %q", line, markerDown, markerUp)
			}
			if inStatement {
				return fmt.Errorf("line %d: statement block left open before %q", line, markerDown)
			}
			sawDown = true
		case markerBegin:
			if inStatement {
				return fmt.Errorf("line %d: nested %q", line, markerBegin)
			}
			inStatement = true
		case markerEnd:
			if !inStatement {
				return fmt.Errorf("line %d: %q without %q", line, markerEnd, markerBegin)
			}
			inStatement = false
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	switch {
	case !sawUp:
		return fmt.Errorf("missing %q", markerUp)
	case !sawDown:
		return fmt.Errorf("missing %q", markerDown)
	case inStatement:
		return fmt.Errorf("unterminated %q", markerBegin)
	}
	return nil
}
