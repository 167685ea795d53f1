package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrUnknownRole is returned when no builder is registered for a role.
var ErrUnknownRole = errors.New("agent: unknown role")

// Builder creates the executor for one role.
type Builder func() Executor

// Registry is a closed role→builder dispatch table assembled at
// startup. Unknown roles are rejected explicitly; there is no dynamic
// string-based construction after the registry is built.
type Registry struct {
	builders map[string]Builder
	configs  map[string]Config
	logger   *slog.Logger
	opts     []Option
}

// NewRegistry creates an empty registry. Shared options (monitor,
// guidelines) are applied to every runtime the registry builds.
func NewRegistry(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		builders: make(map[string]Builder),
		configs:  make(map[string]Config),
		logger:   logger,
		opts:     opts,
	}
}

// Register binds a role to its executor builder and agent config.
// Re-registering a role is a programmer error.
func (g *Registry) Register(cfg Config, builder Builder) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if builder == nil {
		return fmt.Errorf("%w: nil builder for role %q", ErrInvalidConfig, cfg.Role)
	}
	if _, exists := g.builders[cfg.Role]; exists {
		return fmt.Errorf("%w: role %q already registered", ErrInvalidConfig, cfg.Role)
	}
	g.builders[cfg.Role] = builder
	g.configs[cfg.Role] = cfg
	return nil
}

// Roles returns the registered roles in sorted order.
func (g *Registry) Roles() []string {
	roles := make([]string, 0, len(g.builders))
	for role := range g.builders {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Build creates a runtime for the given role.
func (g *Registry) Build(role string) (*Runtime, error) {
	builder, ok := g.builders[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownRole, role, g.Roles())
	}
	return NewRuntime(g.configs[role], builder(), g.logger, g.opts...)
}
