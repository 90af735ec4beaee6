// Package policy provides the declarative data-sufficiency rules for diagnostic
// profiles. The table is loaded once at process start and is read-only after
// that, so it is safe to share across concurrent requests.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Profile names a diagnostic path and the fields that must be present before
// inference may run. Required preserves declared order; that order is the
// canonical field order used everywhere fields are surfaced to the doctor.
type Profile struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Required []string `yaml:"required"`
}

type policyFile struct {
	Default  string    `yaml:"default"`
	Profiles []Profile `yaml:"profiles"`
}

// Policy is the immutable profile table.
type Policy struct {
	profiles    []Profile
	byName      map[string]int
	defaultName string
}

// Load reads a profile table from a YAML file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}
	return parse(data)
}

// Default returns the embedded profile table.
func Default() *Policy {
	p, err := parse(defaultProfilesYAML)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect, not a runtime condition.
		panic(fmt.Sprintf("embedded policy table invalid: %v", err))
	}
	return p
}

// FromProfiles builds a table directly, for tests and callers that assemble
// profiles programmatically. The first profile is the default.
func FromProfiles(profiles ...Profile) (*Policy, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("policy requires at least one profile")
	}
	pf := policyFile{Default: profiles[0].Name, Profiles: profiles}
	return build(&pf)
}

func parse(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse policy table: %w", err)
	}
	return build(&pf)
}

func build(pf *policyFile) (*Policy, error) {
	if len(pf.Profiles) == 0 {
		return nil, fmt.Errorf("policy table defines no profiles")
	}

	p := &Policy{
		profiles: pf.Profiles,
		byName:   make(map[string]int, len(pf.Profiles)),
	}
	for i := range pf.Profiles {
		prof := &pf.Profiles[i]
		if prof.Name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if len(prof.Required) == 0 {
			return nil, fmt.Errorf("profile %q requires no fields", prof.Name)
		}
		if _, dup := p.byName[prof.Name]; dup {
			return nil, fmt.Errorf("duplicate profile %q", prof.Name)
		}
		p.byName[prof.Name] = i
	}

	p.defaultName = pf.Default
	if p.defaultName == "" {
		p.defaultName = pf.Profiles[0].Name
	}
	if _, ok := p.byName[p.defaultName]; !ok {
		return nil, fmt.Errorf("default profile %q not defined", p.defaultName)
	}
	return p, nil
}

// Profile returns the named profile.
func (p *Policy) Profile(name string) (Profile, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Profile{}, false
	}
	return p.profiles[i], true
}

// DefaultProfile returns the profile used when no keyword matches a query.
func (p *Policy) DefaultProfile() Profile {
	return p.profiles[p.byName[p.defaultName]]
}

// ProfileNames lists profiles in declared order.
func (p *Policy) ProfileNames() []string {
	names := make([]string, len(p.profiles))
	for i := range p.profiles {
		names[i] = p.profiles[i].Name
	}
	return names
}

// SelectProfile picks the profile whose keywords match the query, falling back
// to the default profile. Matching is case-insensitive substring search, first
// declared profile wins.
func (p *Policy) SelectProfile(query string) Profile {
	q := strings.ToLower(query)
	for i := range p.profiles {
		for _, kw := range p.profiles[i].Keywords {
			if strings.Contains(q, strings.ToLower(kw)) {
				return p.profiles[i]
			}
		}
	}
	return p.DefaultProfile()
}

// CanonicalFields returns the union of every profile's required fields in
// declared order, deduplicated. Used for stable record formatting.
func (p *Policy) CanonicalFields() []string {
	seen := make(map[string]bool)
	var fields []string
	for i := range p.profiles {
		for _, f := range p.profiles[i].Required {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
