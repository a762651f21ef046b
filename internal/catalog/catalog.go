package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownService = errors.New("unknown service")

// Catalog resolves the fixed duration of a bookable service.
type Catalog interface {
	ServiceDuration(ctx context.Context, serviceID string) (int, error)
}

// Static is a read-only catalog loaded once from configuration.
type Static struct {
	durations map[string]int
}

func NewStatic(durations map[string]int) (*Static, error) {
	m := make(map[string]int, len(durations))
	for id, minutes := range durations {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, errors.New("service id must not be empty")
		}
		if minutes <= 0 {
			return nil, fmt.Errorf("service %q: duration must be positive, got %d", id, minutes)
		}
		m[id] = minutes
	}
	return &Static{durations: m}, nil
}

func (s *Static) ServiceDuration(ctx context.Context, serviceID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	minutes, ok := s.durations[strings.TrimSpace(serviceID)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}
	return minutes, nil
}
