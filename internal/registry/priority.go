package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// Priority orders factories registered for the same Index. The highest
// registered priority wins resolution.
type Priority int

const (
	PriorityFallback Priority = 100
	PriorityNormal   Priority = 200
	PriorityOverride Priority = 300
	PriorityTest     Priority = 400
)

// Priorities lists the named levels in ascending order.
var Priorities = []Priority{PriorityFallback, PriorityNormal, PriorityOverride, PriorityTest}

func (p Priority) String() string {
	switch p {
	case PriorityFallback:
		return "fallback"
	case PriorityNormal:
		return "normal"
	case PriorityOverride:
		return "override"
	case PriorityTest:
		return "test"
	default:
		return strconv.Itoa(int(p))
	}
}

// ParsePriority accepts a level name or its numeric value.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range Priorities {
		if s == p.String() {
			return p, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Priority(n), nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
