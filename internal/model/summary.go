package model

import (
	"fmt"
	"log/slog"
	"strings"
)

// Summary accumulates per-outcome counts across all appliances and
// operations of one run. It is only read when the run finishes.
type Summary struct {
	Created int
	Patched int
	Deleted int
	Skipped int
	Failed  int
	Audited int
}

func (s *Summary) String() string {
	var parts []string
	add := func(n int, label string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label))
		}
	}
	add(s.Created, "created")
	add(s.Patched, "patched")
	add(s.Deleted, "deleted")
	add(s.Skipped, "skipped")
	add(s.Failed, "failed")
	add(s.Audited, "audited")
	if len(parts) == 0 {
		return "no operations performed"
	}
	return strings.Join(parts, ", ")
}

// Log emits the final summary line.
func (s *Summary) Log() {
	slog.Info("Run summary", "result", s.String())
}
