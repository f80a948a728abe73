package policy

// state is one point in the iterative search: a trie node paired with a
// position in the path being matched.
type state struct {
	node uint32
	idx  int
}

// search walks the compiled graph from start against path using an
// explicit stack in place of recursion. A visited set bounds the walk
// to O(nodes × len(path)) even though star edges offer a continuation
// at every split point.
func (p *Profile) search(start uint32, path []byte) (matched bool, mask uint8) {
	stack := []state{{start, 0}}
	seen := make(map[state]bool)

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[s] {
			continue
		}
		seen[s] = true

		if s.idx == len(path) && p.nodes[s.node].Accept {
			matched = true
			mask |= p.nodes[s.node].Mask
		}

		for _, ei := range p.adj[s.node] {
			e := p.edges[ei]
			switch e.Kind {
			case edgeLiteral:
				if s.idx < len(path) && matchByte(path[s.idx], e.Byte, p.flags) {
					stack = append(stack, state{e.To, s.idx + 1})
				}
			case edgeAny:
				if s.idx < len(path) && path[s.idx] != '/' {
					stack = append(stack, state{e.To, s.idx + 1})
				}
			case edgeClass:
				if s.idx < len(path) && path[s.idx] != '/' && p.classMatches(path[s.idx], e) {
					stack = append(stack, state{e.To, s.idx + 1})
				}
			case edgeStar:
				// Every split point within the current non-separator run
				// is a candidate continuation.
				stack = append(stack, state{e.To, s.idx})
				for j := s.idx; j < len(path) && path[j] != '/'; j++ {
					stack = append(stack, state{e.To, j + 1})
				}
			case edgeStarStar:
				for j := s.idx; j <= len(path); j++ {
					stack = append(stack, state{e.To, j})
				}
			}
		}
	}

	return matched, mask
}

func (p *Profile) classMatches(b byte, e edge) bool {
	data := p.strs[e.ClassOffset : e.ClassOffset+e.ClassLen]

	found := false
	for i := 0; i+1 < len(data); i += 2 {
		if inRange(data[i], data[i+1], b, p.flags) {
			found = true
			break
		}
	}

	return e.ClassNegate != found
}

func matchByte(a, b byte, flags Flags) bool {
	if flags&CaseInsensitive != 0 {
		return toLower(a) == toLower(b)
	}
	return a == b
}

func inRange(lo, hi, b byte, flags Flags) bool {
	if flags&CaseInsensitive != 0 {
		b = toLower(b)
		lo, hi = toLower(lo), toLower(hi)
	}
	return b >= lo && b <= hi
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
