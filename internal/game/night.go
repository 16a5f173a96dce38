// internal/game/night.go
package game

// NightResolution is the outcome of one night. Investigation fields are private to the
// investigator and are stripped from public views.
type NightResolution struct {
	Day    int    `json:"day"`
	Killed string `json:"killed,omitempty"`
	Saved  string `json:"saved,omitempty"`

	Investigator        string `json:"-"`
	Investigated        string `json:"-"`
	InvestigationResult *Role  `json:"-"`
}

// Peaceful reports whether nobody died this night.
func (n NightResolution) Peaceful() bool {
	return n.Killed == ""
}

// ResolveNight computes the outcome of the pending submissions without mutating the match.
// Each active role contributes only through its alive holder; a missing holder or a missing
// submission means no action for that role.
func ResolveNight(m *Match) NightResolution {
	res := NightResolution{Day: m.Day}

	var killTarget, saveTarget string
	if killer, ok := holderOf(m, RoleKiller); ok {
		killTarget = m.NightSubmissions[killer].Target
	}
	if protector, ok := holderOf(m, RoleProtector); ok {
		saveTarget = m.NightSubmissions[protector].Target
	}
	if investigator, ok := holderOf(m, RoleInvestigator); ok {
		if target := m.NightSubmissions[investigator].Target; target != "" && m.IsMember(target) {
			role := m.Roles[target]
			res.Investigator = investigator
			res.Investigated = target
			res.InvestigationResult = &role
		}
	}

	switch {
	case killTarget == "" || !m.IsAlive(killTarget):
	case killTarget == saveTarget:
		res.Saved = killTarget
	default:
		res.Killed = killTarget
	}
	return res
}

// applyNight commits a resolution to the match. Guarded by the caller's phase check.
func applyNight(m *Match, res NightResolution) {
	if res.Killed != "" {
		m.eliminate(res.Killed)
	}
	if res.Investigated != "" {
		m.Investigations = append(m.Investigations, Investigation{
			Day:          res.Day,
			Investigator: res.Investigator,
			Target:       res.Investigated,
			Result:       *res.InvestigationResult,
		})
	}
	m.NightResult = &res
}
