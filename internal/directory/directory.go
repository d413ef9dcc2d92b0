package directory

import (
	"fmt"
	"slices"
	"strings"
)

// DB is a source of roster data, read once when a Roster is loaded.
type DB interface {
	GetPeople() ([]string, error)
	GetAgentIDs() (map[string]string, error)
}

// Roster is an immutable snapshot of the valid agent names and the mapping of
// opaque agent ids onto those names.
type Roster struct {
	people map[string]struct{}
	ids    map[string]string
}

func Load(db DB) (*Roster, error) {
	people, err := db.GetPeople()
	if err != nil {
		return nil, err
	}

	ids, err := db.GetAgentIDs()
	if err != nil {
		return nil, err
	}

	return NewRoster(people, ids)
}

// NewRoster normalizes people and ids. Blank names and ids are skipped; an id
// mapping onto a name outside of people is an error.
func NewRoster(people []string, ids map[string]string) (*Roster, error) {
	r := &Roster{
		people: make(map[string]struct{}, len(people)),
		ids:    make(map[string]string, len(ids)),
	}

	for _, p := range people {
		if strings.TrimSpace(p) == "" {
			continue
		}
		name, err := Normalize(p)
		if err != nil {
			return nil, err
		}
		r.people[name] = struct{}{}
	}
	if len(r.people) == 0 {
		return nil, ErrEmptyRoster
	}

	for id, p := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		name, err := Normalize(p)
		if err != nil {
			return nil, err
		}
		if !r.IsValid(name) {
			return nil, fmt.Errorf("agent id maps to unknown person: %s", name)
		}
		r.ids[id] = name
	}

	return r, nil
}

// Normalize lowercases and trims name and checks that it only contains
// letters, digits, '-' and '_'.
func Normalize(name string) (string, error) {
	safe := strings.ToLower(strings.TrimSpace(name))
	if safe == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidAgentName, name)
	}

	for _, r := range safe {
		if !isNameRune(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAgentName, name)
		}
	}
	return safe, nil
}

func (r *Roster) IsValid(name string) bool {
	safe, err := Normalize(name)
	if err != nil {
		return false
	}
	_, ok := r.people[safe]
	return ok
}

// People returns all names in ascending order.
func (r *Roster) People() []string {
	people := make([]string, 0, len(r.people))
	for p := range r.people {
		people = append(people, p)
	}
	slices.Sort(people)
	return people
}

func (r *Roster) ValidateSender(name string) (string, error) {
	names, err := r.validate(RoleSender, []string{name})
	if err != nil {
		return "", err
	}
	return names[0], nil
}

// ValidateRecipients normalizes names. If any of them is not in the roster an
// *UnknownAgentError naming all of them is returned.
func (r *Roster) ValidateRecipients(names []string) ([]string, error) {
	return r.validate(RoleRecipient, names)
}

func (r *Roster) validate(role string, names []string) ([]string, error) {
	valid := make([]string, 0, len(names))
	var unknown []string

	for _, n := range names {
		safe, err := Normalize(n)
		if err != nil || !r.IsValid(safe) {
			unknown = append(unknown, strings.ToLower(strings.TrimSpace(n)))
			continue
		}
		valid = append(valid, safe)
	}

	if len(unknown) > 0 {
		return nil, &UnknownAgentError{Role: role, Names: unknown}
	}
	return valid, nil
}

// Resolve maps an agent id onto its agent name.
func (r *Roster) Resolve(agentID string) (string, error) {
	name, ok := r.ids[strings.TrimSpace(agentID)]
	if !ok {
		return "", ErrUnknownAgentID
	}
	return name, nil
}

func isNameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}
