package gate

import "github.com/openlearn/coursehub/internal/domain"

// PassFunc reports whether a module's own gate is satisfied for a user:
// true when the module has no quiz, or when the user passed its quiz.
type PassFunc func(m domain.Module) bool

// AccessibleIDs walks modules, which must be sorted by ascending position,
// and returns the IDs a user may access. The walk carries a running "previous
// module passed" flag seeded true: a module is accessible iff the flag holds
// when the walk reaches it, and after each module the flag becomes that
// module's own pass state. The first module is therefore always accessible,
// and everything past the first unsatisfied gate is not.
func AccessibleIDs(modules []domain.Module, passed PassFunc) []string {
	ids := make([]string, 0, len(modules))

	prevOK := true
	for _, m := range modules {
		if prevOK {
			ids = append(ids, m.ModuleID)
		}
		prevOK = passed(m)
	}

	return ids
}

// CanAccess is the point-check equivalent of AccessibleIDs: the first module
// is always accessible, any other module is accessible iff its immediate
// predecessor's gate is satisfied. modules must be sorted by ascending
// position and contain moduleID.
//
// For every course, AccessibleIDs yields exactly the modules for which
// CanAccess reports true.
func CanAccess(modules []domain.Module, moduleID string, passed PassFunc) bool {
	for i, m := range modules {
		if m.ModuleID != moduleID {
			continue
		}
		if i == 0 {
			return true
		}
		return passed(modules[i-1])
	}

	return false
}
