package command

import (
	"fmt"
	"sort"
)

// Registry resolves console words to commands. Names and aliases share one
// namespace.
type Registry struct {
	index   map[string]*Command
	aliasOf map[string]string
	ordered []*Command
}

// NewRegistry indexes cmds by name and alias. It fails on an unnamed command
// or when any word would resolve to two commands.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{
		index:   make(map[string]*Command, len(cmds)),
		aliasOf: make(map[string]string),
		ordered: make([]*Command, 0, len(cmds)),
	}
	for i := range cmds {
		if err := r.add(&cmds[i]); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if ra, rb := categoryRank(a.Category), categoryRank(b.Category); ra != rb {
			return ra < rb
		}
		return a.Name < b.Name
	})
	return r, nil
}

func (r *Registry) add(cmd *Command) error {
	switch {
	case cmd.Name == "":
		return fmt.Errorf("command with handler %q has no name", cmd.Handler)
	case r.aliasOf[cmd.Name] != "":
		return fmt.Errorf("command name %q conflicts with an existing alias of %q", cmd.Name, r.aliasOf[cmd.Name])
	case r.index[cmd.Name] != nil:
		return fmt.Errorf("duplicate command name: %q", cmd.Name)
	}
	for _, alias := range cmd.Aliases {
		if owner := r.aliasOf[alias]; owner != "" {
			return fmt.Errorf("duplicate alias %q: used by %q and %q", alias, owner, cmd.Name)
		}
		if r.index[alias] != nil || alias == cmd.Name {
			return fmt.Errorf("alias %q conflicts with command name %q", alias, alias)
		}
	}

	r.index[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.index[alias] = cmd
		r.aliasOf[alias] = cmd.Name
	}
	r.ordered = append(r.ordered, cmd)
	return nil
}

// DefaultRegistry indexes BuiltinCommands. It panics if they collide.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve returns the command a name or alias refers to.
func (r *Registry) Resolve(word string) (*Command, bool) {
	cmd, ok := r.index[word]
	return cmd, ok
}

// Commands lists every command in help order: by category, then name.
func (r *Registry) Commands() []*Command {
	return append([]*Command(nil), r.ordered...)
}

// CommandsByCategory groups Commands by category, keeping help order.
func (r *Registry) CommandsByCategory() map[string][]*Command {
	out := make(map[string][]*Command, len(Categories))
	for _, cmd := range r.ordered {
		out[cmd.Category] = append(out[cmd.Category], cmd)
	}
	return out
}

func categoryRank(c string) int {
	for i, known := range Categories {
		if known == c {
			return i
		}
	}
	return len(Categories)
}
