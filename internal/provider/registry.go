package provider

import (
	"errors"
	"fmt"

	"github.com/codezest-academy/codezest-notifications/internal/model"
)

// ErrProviderNotFound is returned when no provider is registered for a
// channel. The worker treats it as a terminal failure.
var ErrProviderNotFound = errors.New("provider: no provider registered for channel")

// Registry is the closed dispatch table from channel to provider. It is
// populated once by process startup code and read-only afterwards; a new
// channel cannot fall through silently because Complete is checked before
// the worker pool starts.
type Registry struct {
	providers map[model.Channel]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.Channel]Provider)}
}

// Register binds a provider under its own channel. Registering the same
// channel twice is a wiring bug and fails loudly.
func (r *Registry) Register(p Provider) error {
	ch := p.Channel()
	if _, err := model.ParseChannel(string(ch)); err != nil {
		return err
	}
	if _, dup := r.providers[ch]; dup {
		return fmt.Errorf("provider already registered for channel %s", ch)
	}
	r.providers[ch] = p
	return nil
}

// Resolve looks up the provider for a channel.
func (r *Registry) Resolve(ch model.Channel) (Provider, error) {
	p, ok := r.providers[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, ch)
	}
	return p, nil
}

// Complete verifies every channel in the closed enumeration has a
// provider. Called at startup so a newly added channel requires a
// deliberate registration step instead of failing per-job at runtime.
func (r *Registry) Complete() error {
	var missing []model.Channel
	for _, ch := range model.Channels() {
		if _, ok := r.providers[ch]; !ok {
			missing = append(missing, ch)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("registry incomplete, missing providers for %v", missing)
	}
	return nil
}
