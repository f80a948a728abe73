package policy

import (
	"strings"

	"github.com/chefbuild/chef/internal/cheferr"
)

type tokKind uint8

const (
	tokLiteral tokKind = iota
	tokAny
	tokClass
	tokStar
	tokStarStar
)

type token struct {
	kind   tokKind
	b      byte
	ranges [][2]byte
	negate bool
}

// tokenize parses a single glob pattern into a token sequence. The glob
// language: "? single non-separator char; * any non-separator run; **
// any run including separators; [set] character class with ranges and
// leading !/^ negation".
func tokenize(pattern string) ([]token, error) {
	var toks []token

	i := 0
	for i < len(pattern) {
		switch c := pattern[i]; {
		case c == '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				toks = append(toks, token{kind: tokStarStar})
				i += 2
			} else {
				toks = append(toks, token{kind: tokStar})
				i++
			}
		case c == '?':
			toks = append(toks, token{kind: tokAny})
			i++
		case c == '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				return nil, cheferr.Wrapf(cheferr.ErrInvalidArgument, "unbalanced bracket in pattern %q", pattern)
			}
			tok, err := parseClass(pattern[i+1 : i+1+end])
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += end + 2
		default:
			toks = append(toks, token{kind: tokLiteral, b: c})
			i++
		}
	}

	return toks, nil
}

// parseClass parses the body of a "[...]" character class, expanding
// "a-z" style ranges and recognizing a leading "!" or "^" as negation.
func parseClass(body string) (token, error) {
	if body == "" {
		return token{}, cheferr.Wrapf(cheferr.ErrInvalidArgument, "empty character class")
	}

	negate := false
	if body[0] == '!' || body[0] == '^' {
		negate = true
		body = body[1:]
	}
	if body == "" {
		return token{}, cheferr.Wrapf(cheferr.ErrInvalidArgument, "empty character class")
	}

	var ranges [][2]byte
	i := 0
	for i < len(body) {
		if i+2 < len(body) && body[i+1] == '-' {
			ranges = append(ranges, [2]byte{body[i], body[i+2]})
			i += 3
		} else {
			ranges = append(ranges, [2]byte{body[i], body[i]})
			i++
		}
	}

	return token{kind: tokClass, ranges: ranges, negate: negate}, nil
}
