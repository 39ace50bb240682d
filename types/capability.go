package types

// Capability describes a registered handler: its unique name, its
// specialization tag, the skill tags it declares, and whether it is
// currently available for dispatch. Name, Specialization and Skills are
// immutable once registered; availability may be toggled externally, so
// callers must not cache it across turns.
type Capability struct {
	Name           string   `json:"name"`
	Specialization string   `json:"specialization"`
	Skills         []string `json:"skills"`
	Available      bool     `json:"available"`
}

// HasSkill reports whether the capability declares the given skill tag.
func (c Capability) HasSkill(tag string) bool {
	for _, s := range c.Skills {
		if s == tag {
			return true
		}
	}
	return false
}
