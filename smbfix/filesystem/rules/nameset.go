package rules

// NameSet tracks the names already used in one directory. Keys are folded
// when the set is case-insensitive, matching how SMB clients compare names.
type NameSet struct {
	caseInsensitive bool
	names           map[string]string
}

// NewNameSet creates an empty set
func NewNameSet(caseInsensitive bool) *NameSet {
	return &NameSet{caseInsensitive: caseInsensitive, names: make(map[string]string)}
}

// Has reports whether name, or a name it folds to, is taken
func (s *NameSet) Has(name string) bool {
	_, ok := s.names[FoldKey(name, s.caseInsensitive)]
	return ok
}

// Owner returns the name that holds name's key
func (s *NameSet) Owner(name string) (string, bool) {
	owner, ok := s.names[FoldKey(name, s.caseInsensitive)]
	return owner, ok
}

// Claim takes name and reports whether it was free.
func (s *NameSet) Claim(name string) bool {
	key := FoldKey(name, s.caseInsensitive)
	if _, ok := s.names[key]; ok {
		return false
	}
	s.names[key] = name
	return true
}

// Len is the number of claimed names
func (s *NameSet) Len() int { return len(s.names) }
