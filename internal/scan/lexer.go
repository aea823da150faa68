package scan

// blank returns a copy of src in which every byte belonging to a comment or
// to the body of a string literal is replaced by a space. Newlines are kept,
// so line numbers in the result match the input. Code inside string
// interpolations ("\(…)") is kept, since it is code.
func blank(src []byte) []byte {
	out := make([]byte, len(src))
	copy(out, src)

	clear := func(from, to int) {
		for k := from; k < to; k++ {
			if out[k] != '\n' {
				out[k] = ' '
			}
		}
	}

	var stack []interpolation
	n := len(src)
	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == '/' && i+1 < n && src[i+1] == '/':
			end := i
			for end < n && src[end] != '\n' {
				end++
			}
			clear(i, end)
			i = end
		case c == '/' && i+1 < n && src[i+1] == '*':
			end := skipBlockComment(src, i)
			clear(i, end)
			i = end
		case c == '"' || c == '#':
			hashes, j := 0, i
			for j < n && src[j] == '#' {
				hashes++
				j++
			}
			if j >= n || src[j] != '"' {
				// a directive such as #if, or a lone '#'
				i = max(j, i+1)
				continue
			}
			lit := stringLit{hashes: hashes}
			if j+2 < n && src[j+1] == '"' && src[j+2] == '"' {
				lit.multi = true
				j += 3
			} else {
				j++
			}
			end, open := lit.scan(src, j)
			clear(i, end)
			if open {
				stack = append(stack, interpolation{lit: lit, depth: 1})
			}
			i = end
		case c == '(' && len(stack) > 0:
			stack[len(stack)-1].depth++
			i++
		case c == ')' && len(stack) > 0:
			top := &stack[len(stack)-1]
			top.depth--
			i++
			if top.depth > 0 {
				continue
			}
			lit := top.lit
			stack = stack[:len(stack)-1]
			end, open := lit.scan(src, i)
			clear(i, end)
			if open {
				stack = append(stack, interpolation{lit: lit, depth: 1})
			}
			i = end
		default:
			i++
		}
	}
	return out
}

// skipBlockComment returns the index just past the block comment starting at
// i. Block comments nest. An unterminated comment runs to the end of src.
func skipBlockComment(src []byte, i int) int {
	depth := 0
	n := len(src)
	for i < n {
		switch {
		case src[i] == '/' && i+1 < n && src[i+1] == '*':
			depth++
			i += 2
		case src[i] == '*' && i+1 < n && src[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return n
}

type stringLit struct {
	multi  bool
	hashes int // number of '#' delimiting a raw string
}

type interpolation struct {
	lit   stringLit
	depth int // unbalanced '(' since the interpolation opened
}

// scan consumes the string body starting at i. It returns the index just
// past the closing delimiter, or just past the '(' of an interpolation, in
// which case open is true. A single-line literal left unterminated stops at
// the end of its line.
func (lit stringLit) scan(src []byte, i int) (end int, open bool) {
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '\\' && lit.hashesAt(src, i+1):
			k := i + 1 + lit.hashes
			if k < n && src[k] == '(' {
				return k + 1, true
			}
			i = k + 1
		case c == '\n' && !lit.multi:
			return i, false
		case c == '"' && !lit.multi && lit.hashesAt(src, i+1):
			return i + 1 + lit.hashes, false
		case c == '"' && lit.multi && i+2 < n && src[i+1] == '"' && src[i+2] == '"' && lit.hashesAt(src, i+3):
			return i + 3 + lit.hashes, false
		default:
			i++
		}
	}
	return n, false
}

func (lit stringLit) hashesAt(src []byte, i int) bool {
	if i+lit.hashes > len(src) {
		return false
	}
	for k := 0; k < lit.hashes; k++ {
		if src[i+k] != '#' {
			return false
		}
	}
	return true
}
