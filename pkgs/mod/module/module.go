// Package module defines module names as they appear in import declarations,
// along with support code for validating them.
package module

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrEmptyName is returned when a module name has no components.
var ErrEmptyName = errors.New("missing module name")

// A Ref is a reference to a module from an import declaration, e.g.
//
//	@testable import struct Foo.Bar.Baz
//
// has Attributes ["@testable"], Kind "struct" and Path ["Foo", "Bar", "Baz"].
type Ref struct {
	Attributes []string // attribute prefix in source order
	Kind       string   // import kind, empty for a plain module import
	Path       []string // dotted path components, never empty for a valid Ref
}

// TopLevel returns the first component of the path, which is the module the
// reference depends on.
func (r Ref) TopLevel() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[0]
}

// String returns the dotted path of r.
func (r Ref) String() string {
	return strings.Join(r.Path, ".")
}

// HasAttribute reports whether r carries the attribute name (with or
// without arguments), e.g. HasAttribute("@_spi") for "@_spi(Internal)".
func (r Ref) HasAttribute(name string) bool {
	for _, attr := range r.Attributes {
		if attr == name || strings.HasPrefix(attr, name+"(") {
			return true
		}
	}
	return false
}

// importKinds lists the declaration kinds that may follow the import keyword.
var importKinds = map[string]bool{
	"typealias": true,
	"struct":    true,
	"class":     true,
	"enum":      true,
	"protocol":  true,
	"let":       true,
	"var":       true,
	"func":      true,
}

// IsImportKind reports whether s is a declaration kind legal after "import".
func IsImportKind(s string) bool {
	return importKinds[s]
}

// IsIdent reports whether s is a valid bare identifier.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)) {
			continue
		}
		return false
	}
	return true
}

// CheckName checks that name is a valid top-level module name.
func CheckName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if !IsIdent(name) {
		return fmt.Errorf("invalid module name %q", name)
	}
	return nil
}

// SplitPath splits a dotted module path into its components, checking each.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyName
	}
	elems := strings.Split(path, ".")
	for _, elem := range elems {
		if elem == "" {
			return nil, fmt.Errorf("invalid module path %q: empty component", path)
		}
		if !IsIdent(elem) {
			return nil, fmt.Errorf("invalid module path %q: bad identifier %q", path, elem)
		}
	}
	return elems, nil
}
