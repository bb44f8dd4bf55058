package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// Action runs a validated account command against one account.
type Action func(ctx context.Context, acc Account) (string, error)

// Verb describes one command. Account verbs set Prepare, which validates the
// arguments once and returns the Action run per target. Global verbs set Global.
type Verb struct {
	Name    string
	Aliases []string
	Usage   string
	Prepare func(args []string) (Action, error)
	Global  func(ctx context.Context, d *Dispatcher, cmd Command) (string, error)
}

// Registry maps verb names and aliases to verbs, keeping declaration order
// for help output.
type Registry struct {
	verbs  []*Verb
	byName map[string]*Verb
}

// NewRegistry rejects duplicate names or aliases and verbs that are not
// exactly one of account or global.
func NewRegistry(verbs ...Verb) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Verb)}
	for i := range verbs {
		v := &verbs[i]
		if v.Name == "" {
			return nil, fmt.Errorf("verb %d has no name", i)
		}
		if (v.Prepare == nil) == (v.Global == nil) {
			return nil, fmt.Errorf("verb %q must have exactly one handler", v.Name)
		}
		for _, n := range append([]string{v.Name}, v.Aliases...) {
			key := strings.ToLower(n)
			if other, ok := r.byName[key]; ok {
				return nil, fmt.Errorf("verb name %q used by %q and %q", key, other.Name, v.Name)
			}
			r.byName[key] = v
		}
		r.verbs = append(r.verbs, v)
	}
	return r, nil
}

// Lookup resolves a verb or alias.
func (r *Registry) Lookup(name string) (*Verb, bool) {
	v, ok := r.byName[strings.ToLower(name)]
	return v, ok
}

// Verbs returns the verbs in declaration order.
func (r *Registry) Verbs() []*Verb {
	return r.verbs
}
