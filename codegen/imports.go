package codegen

import (
	"go/token"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ImportSet assigns each imported package a unique alias within one file.
type ImportSet struct {
	self     string // package path of the generated file, never imported
	byPath   map[string]string
	used     map[string]bool
	reserved map[string]bool
}

// NewImportSet creates an import set that avoids the reserved identifiers.
func NewImportSet(selfPath string, reserved ...string) *ImportSet {
	s := &ImportSet{
		self:     selfPath,
		byPath:   map[string]string{},
		used:     map[string]bool{},
		reserved: map[string]bool{},
	}
	for _, r := range reserved {
		s.reserved[r] = true
	}
	return s
}

// Reserve marks an identifier as unavailable for aliases.
func (s *ImportSet) Reserve(names ...string) {
	for _, n := range names {
		s.reserved[n] = true
	}
}

// Alias returns the alias for pkgPath, adding it to the set. hint is the
// package's declared name when known.
func (s *ImportSet) Alias(pkgPath, hint string) string {
	if pkgPath == s.self && s.self != "" {
		return ""
	}
	if alias, ok := s.byPath[pkgPath]; ok {
		return alias
	}
	base := hint
	if base == "" {
		base = PackageNameFromPath(pkgPath)
	}
	base = Identifier(base)
	alias := base
	for i := 2; s.used[alias] || s.reserved[alias] || token.IsKeyword(alias); i++ {
		alias = base + strconv.Itoa(i)
	}
	s.byPath[pkgPath] = alias
	s.used[alias] = true
	return alias
}

// Qualify returns alias.name for an identifier declared in pkgPath.
func (s *ImportSet) Qualify(pkgPath, hint, name string) string {
	alias := s.Alias(pkgPath, hint)
	if alias == "" {
		return name
	}
	return alias + "." + name
}

// Paths returns the imported paths in sorted order.
func (s *ImportSet) Paths() []string {
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// render writes the import declaration.
func (s *ImportSet) render(b *strings.Builder) {
	paths := s.Paths()
	if len(paths) == 0 {
		return
	}
	b.WriteString("import (\n")
	for _, p := range paths {
		alias := s.byPath[p]
		if alias == path.Base(p) {
			b.WriteString("\t" + strconv.Quote(p) + "\n")
		} else {
			b.WriteString("\t" + alias + " " + strconv.Quote(p) + "\n")
		}
	}
	b.WriteString(")\n\n")
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// PackageNameFromPath guesses a package name from its import path:
// "github.com/go-playground/validator/v10" gives "validator" and
// "gopkg.in/yaml.v3" gives "yaml".
func PackageNameFromPath(pkgPath string) string {
	elems := strings.Split(pkgPath, "/")
	name := elems[len(elems)-1]
	if majorVersion.MatchString(name) && len(elems) > 1 {
		name = elems[len(elems)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && majorVersion.MatchString(name[i+1:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	return Identifier(strings.ReplaceAll(name, "-", "_"))
}
