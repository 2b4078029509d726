package pipeline

import "fmt"

// Registration is one handler as supplied by a Provider.
type Registration struct {
	Name     string // optional, defaults to the Go function name
	Func     any
	Patterns []string // optional, defaults to MatchAll
	Order    int
	Phase    Phase
}

// Provider supplies handler registrations discovered elsewhere, e.g. from a
// configuration file.
type Provider interface {
	Registrations() ([]Registration, error)
}

// ProviderFunc adapts a plain function to a Provider.
type ProviderFunc func() ([]Registration, error)

// Registrations implements Provider.
func (f ProviderFunc) Registrations() ([]Registration, error) { return f() }

// RegisterAll registers everything p supplies, in order. It stops at the first
// registration that fails.
func (r *Registry[Req, Res]) RegisterAll(p Provider) error {
	regs, err := p.Registrations()
	if err != nil {
		return fmt.Errorf("handler provider: %w", err)
	}
	for i, reg := range regs {
		opts := []Option{Paths(reg.Patterns...), Order(reg.Order), InPhase(reg.Phase)}
		if reg.Name != "" {
			opts = append(opts, Name(reg.Name))
		}
		if _, err := r.Register(reg.Func, opts...); err != nil {
			return fmt.Errorf("%s registration: %w", ordinalize(i+1), err)
		}
	}
	return nil
}
