// Package scan extracts the modules a Swift compilation unit imports.
//
// The scanner does not parse Swift. Comments and string literals are blanked
// out first, then every line is split into statements and tokenized, and
// statements beginning with (optional attributes and modifiers followed by)
// the import keyword are decoded. Scanning is a pure function of the source
// text.
package scan

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goplus/swbuild/pkgs/mod/module"
	"github.com/qiniu/x/errors"
)

// Import is a single import declaration.
type Import struct {
	module.Ref
	Line int // 1-based line of the declaration
}

// Module returns the module the import depends on.
func (i Import) Module() string {
	return i.TopLevel()
}

// Result holds the imports of one compilation unit.
type Result struct {
	File string

	// Imports in first-occurrence order, one per top-level module.
	Imports []Import

	// Conditional lists modules probed with canImport(...). They are not
	// dependencies.
	Conditional []string
}

// Modules returns the imported module names in order.
func (r *Result) Modules() []string {
	mods := make([]string, len(r.Imports))
	for i, imp := range r.Imports {
		mods[i] = imp.Module()
	}
	return mods
}

// accessModifiers may precede an import declaration.
var accessModifiers = map[string]bool{
	"public":      true,
	"package":     true,
	"internal":    true,
	"fileprivate": true,
	"private":     true,
	"open":        true,
}

// Imports scans src, the content of the file at path, and returns its
// imports. Malformed declarations are reported as *Error values; when there
// is more than one, the returned error is an errors.List. The Result is
// valid even when err is not nil and holds every well-formed import.
func Imports(path string, src []byte) (*Result, error) {
	res := &Result{File: path}
	seen := make(map[string]bool)
	seenCond := make(map[string]bool)
	var errs errors.List

	var pending []string // attributes on lines of their own
	code := blank(src)
	for lineNo, line := range bytes.Split(code, []byte{'\n'}) {
		for _, stmt := range bytes.Split(line, []byte{';'}) {
			toks := tokenize(stmt)
			if len(toks) == 0 {
				continue
			}
			for _, name := range canImports(toks) {
				if !seenCond[name] {
					seenCond[name] = true
					res.Conditional = append(res.Conditional, name)
				}
			}

			attrs, rest := splitAttributes(toks)
			if len(rest) == 0 {
				pending = append(pending, attrs...)
				continue
			}
			attrs = append(pending, attrs...)
			pending = nil

			rest = skipModifiers(rest)
			if len(rest) == 0 || rest[0].quoted || rest[0].text != "import" || isLabel(rest[1:]) {
				continue
			}

			ref, err := parseImport(rest[1:])
			if err != nil {
				errs.Add(&Error{File: path, Line: lineNo + 1, Msg: err.Error()})
				continue
			}
			ref.Attributes = attrs
			if mod := ref.TopLevel(); !seen[mod] {
				seen[mod] = true
				res.Imports = append(res.Imports, Import{Ref: ref, Line: lineNo + 1})
			}
		}
	}
	return res, errs.ToError()
}

func splitAttributes(toks []token) (attrs []string, rest []token) {
	i := 0
	for i < len(toks) && !toks[i].quoted && strings.HasPrefix(toks[i].text, "@") {
		attrs = append(attrs, toks[i].text)
		i++
	}
	return attrs, toks[i:]
}

func skipModifiers(toks []token) []token {
	i := 0
	for i < len(toks) && !toks[i].quoted && accessModifiers[toks[i].text] {
		i++
	}
	return toks[i:]
}

// isLabel reports whether the tokens following import make it an argument
// label starting a continuation line, as in `import: 1` or `import x: Int`.
func isLabel(toks []token) bool {
	colon := func(i int) bool {
		return i < len(toks) && !toks[i].quoted && toks[i].text == ":"
	}
	return colon(0) || (len(toks) > 0 && module.IsIdent(toks[0].text) && colon(1))
}

// parseImport decodes the tokens following the import keyword.
func parseImport(toks []token) (module.Ref, error) {
	var ref module.Ref
	if len(toks) > 0 && !toks[0].quoted && module.IsImportKind(toks[0].text) {
		ref.Kind = toks[0].text
		toks = toks[1:]
	}
	if len(toks) == 0 {
		return ref, module.ErrEmptyName
	}

	for i := 0; ; {
		if i >= len(toks) {
			return ref, fmt.Errorf("expected identifier after '.' in %q", joinPath(ref.Path))
		}
		tok := toks[i]
		if !module.IsIdent(tok.text) {
			return ref, fmt.Errorf("invalid module name %q", tok.text)
		}
		ref.Path = append(ref.Path, tok.text)
		i++
		if i == len(toks) {
			break
		}
		if toks[i].quoted || toks[i].text != "." {
			return ref, fmt.Errorf("unexpected %q after import of %q", toks[i].text, joinPath(ref.Path))
		}
		i++
	}

	if ref.Kind != "" && len(ref.Path) < 2 {
		return ref, fmt.Errorf("import %s needs a qualified declaration path, got %q", ref.Kind, joinPath(ref.Path))
	}
	return ref, nil
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

// canImports returns the module names tested by canImport(...) in toks.
func canImports(toks []token) []string {
	var names []string
	for i := 0; i+2 < len(toks); i++ {
		if toks[i].text == "canImport" && toks[i+1].text == "(" && module.IsIdent(toks[i+2].text) {
			names = append(names, toks[i+2].text)
		}
	}
	return names
}

type token struct {
	text   string
	quoted bool // `escaped` identifier
}

// tokenize splits a blanked statement into identifiers, attributes
// (with their argument list) and single punctuation characters.
func tokenize(stmt []byte) []token {
	var toks []token
	s := string(stmt)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '`':
			end := strings.IndexByte(s[i+1:], '`')
			if end < 0 {
				toks = append(toks, token{text: s[i+1:], quoted: true})
				return toks
			}
			toks = append(toks, token{text: s[i+1 : i+1+end], quoted: true})
			i += end + 2
		case r == '@':
			j := i + 1 + identLen(s[i+1:])
			if k := skipSpace(s, j); k < len(s) && s[k] == '(' {
				j = matchParen(s, k)
			}
			toks = append(toks, token{text: compact(s[i:j])})
			i = j
		case isIdentRune(r):
			j := i + identLen(s[i:])
			toks = append(toks, token{text: s[i:j]})
			i = j
		default:
			toks = append(toks, token{text: string(r)})
			i += size
		}
	}
	return toks
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func identLen(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if !isIdentRune(r) {
			break
		}
		n += size
	}
	return n
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

// matchParen returns the index just past the ')' balancing the '(' at i,
// or len(s) when it is unbalanced.
func matchParen(s string, i int) int {
	depth := 0
	for ; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

// compact removes whitespace from an attribute so that "@_spi( X )" and
// "@_spi(X)" compare equal.
func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}
