package usecase

import (
	"fmt"

	"maa/internal/domain"
)

// NewScopedToolExecutor wraps inner with a filter that only exposes the named
// tools in allowedTools. An empty allowedTools exposes nothing: an agent only
// sees the tools its configuration grants it. A nil inner is treated as an
// empty registry.
func NewScopedToolExecutor(inner domain.ToolExecutor, allowedTools []string) domain.ToolExecutor {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}
	return &scopedToolExecutor{inner: inner, allowed: allowed}
}

type scopedToolExecutor struct {
	inner   domain.ToolExecutor
	allowed map[string]bool
}

func (s *scopedToolExecutor) Get(name string) (domain.Tool, error) {
	if !s.allowed[name] || s.inner == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return s.inner.Get(name)
}

func (s *scopedToolExecutor) Schemas() []domain.ToolSchema {
	if s.inner == nil || len(s.allowed) == 0 {
		return nil
	}
	all := s.inner.Schemas()
	filtered := make([]domain.ToolSchema, 0, len(s.allowed))
	for _, schema := range all {
		if s.allowed[schema.Name] {
			filtered = append(filtered, schema)
		}
	}
	return filtered
}
