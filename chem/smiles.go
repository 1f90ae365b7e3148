package chem

import (
	"fmt"
	"strings"
)

// organicSubset are the elements that may appear outside brackets.
var organicSubset = map[string]bool{
	"B": true, "C": true, "N": true, "O": true, "P": true, "S": true,
	"F": true, "Cl": true, "Br": true, "I": true,
}

// aromaticSymbols are the lowercase atoms accepted outside brackets.
var aromaticSymbols = map[byte]string{
	'b': "B", 'c': "C", 'n': "N", 'o': "O", 'p': "P", 's': "S",
}

type ringOpen struct {
	atom  int
	order int
}

// ParseSMILES parses a SMILES string into a molecular graph.
//
// Supported: the organic subset, bracket atoms with isotope, charge and
// explicit hydrogen counts, branches, ring closures (including %nn), bond
// orders -, =, #, :, disconnected fragments via '.'. Stereo markers (@, /,
// \) are accepted and ignored.
func ParseSMILES(s string) (*Mol, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty SMILES")
	}

	m := &Mol{}
	prev := -1
	pendingOrder := 0
	pendingAromatic := false
	var stack []int
	rings := make(map[int]ringOpen)

	clearPending := func() {
		pendingOrder = 0
		pendingAromatic = false
	}

	// addAtom appends the atom and bonds it to the previous atom according
	// to any pending bond symbol.
	addAtom := func(a Atom) {
		idx := len(m.Atoms)
		m.Atoms = append(m.Atoms, a)
		m.adj = append(m.adj, nil)
		if prev >= 0 {
			order := pendingOrder
			aromatic := pendingAromatic
			if order == 0 && !aromatic {
				if m.Atoms[prev].Aromatic && a.Aromatic {
					aromatic = true
				}
				order = 1
			} else if aromatic {
				order = 1
			}
			m.addBond(prev, idx, order, aromatic)
		}
		prev = idx
		clearPending()
	}

	closeRing := func(num int) error {
		if prev < 0 {
			return fmt.Errorf("ring closure %d before any atom", num)
		}
		open, ok := rings[num]
		if !ok {
			rings[num] = ringOpen{atom: prev, order: pendingOrder}
			clearPending()
			return nil
		}
		delete(rings, num)
		order := pendingOrder
		if order == 0 {
			order = open.order
		}
		aromatic := false
		if order == 0 {
			if m.Atoms[open.atom].Aromatic && m.Atoms[prev].Aromatic {
				aromatic = true
			}
			order = 1
		}
		m.addBond(open.atom, prev, order, aromatic)
		clearPending()
		return nil
	}

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(':
			if prev < 0 {
				return nil, fmt.Errorf("branch open at position %d before any atom", i)
			}
			stack = append(stack, prev)
			i++
		case c == ')':
			if len(stack) == 0 {
				return nil, fmt.Errorf("unmatched branch close at position %d", i)
			}
			prev = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			i++
		case c == '-' || c == '/' || c == '\\':
			pendingOrder = 1
			i++
		case c == '=':
			pendingOrder = 2
			i++
		case c == '#':
			pendingOrder = 3
			i++
		case c == ':':
			pendingAromatic = true
			i++
		case c == '.':
			prev = -1
			clearPending()
			i++
		case c >= '0' && c <= '9':
			if err := closeRing(int(c - '0')); err != nil {
				return nil, err
			}
			i++
		case c == '%':
			if i+2 >= len(s) || !isDigit(s[i+1]) || !isDigit(s[i+2]) {
				return nil, fmt.Errorf("invalid %%nn ring closure at position %d", i)
			}
			num := int(s[i+1]-'0')*10 + int(s[i+2]-'0')
			if err := closeRing(num); err != nil {
				return nil, err
			}
			i += 3
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unclosed bracket atom at position %d", i)
			}
			atom, err := parseBracketAtom(s[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("bracket atom at position %d: %w", i, err)
			}
			addAtom(atom)
			i += end + 1
		case c >= 'A' && c <= 'Z':
			sym := string(c)
			if i+1 < len(s) && (c == 'C' || c == 'B') {
				// Cl and Br are the only two-letter organic-subset atoms.
				two := s[i : i+2]
				if two == "Cl" || two == "Br" {
					sym = two
				}
			}
			if !organicSubset[sym] {
				return nil, fmt.Errorf("element %q at position %d requires brackets", sym, i)
			}
			addAtom(Atom{Symbol: sym, ExplicitHs: -1})
			i += len(sym)
		case c >= 'a' && c <= 'z':
			sym, ok := aromaticSymbols[c]
			if !ok {
				return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
			}
			addAtom(Atom{Symbol: sym, Aromatic: true, ExplicitHs: -1})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed branch")
	}
	if len(rings) > 0 {
		return nil, fmt.Errorf("unclosed ring bond")
	}
	if len(m.Atoms) == 0 {
		return nil, fmt.Errorf("no atoms in SMILES")
	}
	return m, nil
}

// parseBracketAtom parses the interior of a [...] atom.
func parseBracketAtom(tok string) (Atom, error) {
	if tok == "" {
		return Atom{}, fmt.Errorf("empty bracket atom")
	}
	i := 0
	// isotope
	for i < len(tok) && isDigit(tok[i]) {
		i++
	}
	if i >= len(tok) {
		return Atom{}, fmt.Errorf("no element in %q", tok)
	}

	a := Atom{ExplicitHs: 0}
	c := tok[i]
	switch {
	case c >= 'A' && c <= 'Z':
		sym := string(c)
		i++
		if i < len(tok) && tok[i] >= 'a' && tok[i] <= 'z' && tok[i] != 'H' {
			// Second letter of a two-letter element, but not a following
			// hydrogen count marker.
			sym += string(tok[i])
			i++
		}
		a.Symbol = sym
	case c >= 'a' && c <= 'z':
		// aromatic bracket atom, e.g. [nH], [se]
		sym := string(c - 'a' + 'A')
		i++
		if i < len(tok) && tok[i] >= 'a' && tok[i] <= 'z' && tok[i] != 'h' {
			sym += string(tok[i])
			i++
		}
		a.Symbol = sym
		a.Aromatic = true
	default:
		return Atom{}, fmt.Errorf("invalid element start %q in %q", c, tok)
	}

	for i < len(tok) {
		switch tok[i] {
		case '@':
			i++ // stereo, ignored
		case 'H':
			i++
			n := 1
			if i < len(tok) && isDigit(tok[i]) {
				n = int(tok[i] - '0')
				i++
			}
			a.ExplicitHs = n
		case '+', '-':
			sign := 1
			if tok[i] == '-' {
				sign = -1
			}
			count := 0
			for i < len(tok) && (tok[i] == '+' || tok[i] == '-') {
				count++
				i++
			}
			if i < len(tok) && isDigit(tok[i]) {
				count = int(tok[i] - '0')
				i++
			}
			a.Charge = sign * count
		default:
			return Atom{}, fmt.Errorf("unexpected %q in bracket atom %q", tok[i], tok)
		}
	}
	return a, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
