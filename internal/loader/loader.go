package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
	"github.com/driftlake-labs/driftlake/pkg/snapshot"
)

// Definition is one parsed snapshot file: the source query plus the merge
// configuration from its frontmatter.
type Definition struct {
	Name        string
	Description string

	// FilePath is the absolute path of the .sql file.
	FilePath string

	// Path is the logical dot path relative to the snapshots directory,
	// e.g. "finance.orders" for finance/orders.sql.
	Path string

	// TargetTable is where the snapshot's history is written.
	TargetTable core.TableRef

	// SQL is the source query with frontmatter stripped but template
	// expressions still in place.
	SQL string

	// Refs lists the snapshot names referenced via {{ ref(...) }}.
	Refs []string

	// UsesThis is set when the query references its own target table.
	UsesThis bool

	// Config drives the merge engine.
	Config snapshot.Config

	// Meta carries user extension fields verbatim.
	Meta map[string]any
}

// Loader parses snapshot definition files under a base directory.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader rooted at the snapshots directory.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// ParseFile reads and parses a single snapshot file.
func (l *Loader) ParseFile(filePath string) (*Definition, error) {
	content, err := os.ReadFile(filePath) //nolint:gosec // path comes from the project's snapshots dir
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return l.ParseContent(filePath, string(content))
}

// ParseContent parses snapshot file content. The file path is used for
// defaults and error reporting only.
func (l *Loader) ParseContent(filePath, content string) (*Definition, error) {
	fm, err := ExtractFrontmatter(content)
	if err != nil {
		annotateFile(err, filePath)
		return nil, err
	}

	cfg := fm.Config
	cfg.ApplyDefaults(filepath.Base(filePath))

	def := &Definition{
		Name:        cfg.Name,
		Description: cfg.Description,
		FilePath:    filePath,
		Path:        l.filePathToLogicalPath(filePath),
		TargetTable: resolveTargetTable(cfg),
		SQL:         fm.SQL,
		Refs:        ExtractRefs(fm.SQL),
		UsesThis:    UsesThis(fm.SQL),
		Config:      cfg.SnapshotConfig(),
		Meta:        cfg.Meta,
	}

	if strings.TrimSpace(def.SQL) == "" {
		return nil, &FrontmatterParseError{File: filePath, Message: "snapshot file has no SQL body"}
	}
	if err := def.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	return def, nil
}

// resolveTargetTable combines target_table and schema. A schema embedded in
// target_table wins over the schema field.
func resolveTargetTable(cfg *FrontmatterConfig) core.TableRef {
	ref := core.ParseTableRef(cfg.TargetTable)
	if ref.Schema == "" {
		ref.Schema = cfg.Schema
	}
	return ref
}

// filePathToLogicalPath converts a file path under the base directory into
// a dot path, e.g. finance/orders.sql becomes finance.orders.
func (l *Loader) filePathToLogicalPath(filePath string) string {
	rel, err := filepath.Rel(l.baseDir, filePath)
	if err != nil {
		rel = filepath.Base(filePath)
	}
	rel = strings.TrimSuffix(rel, ".sql")
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
}

// annotateFile fills in the file on typed errors that carry one.
func annotateFile(err error, filePath string) {
	switch e := err.(type) {
	case *FrontmatterParseError:
		if e.File == "" {
			e.File = filePath
		}
	case *UnknownFieldError:
		if e.File == "" {
			e.File = filePath
		}
	}
}

// Scanner discovers snapshot files under a directory tree.
type Scanner struct {
	loader *Loader
}

// NewScanner creates a scanner rooted at the snapshots directory.
func NewScanner(baseDir string) *Scanner {
	return &Scanner{loader: NewLoader(baseDir)}
}

// ScanDir walks the directory and parses every .sql file. Hidden files and
// directories are skipped.
func (s *Scanner) ScanDir(dir string) ([]*Definition, error) {
	var defs []*Definition

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && path != dir {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(name, ".sql") {
			return nil
		}

		def, err := s.loader.ParseFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, def)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}
