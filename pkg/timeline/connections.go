package timeline

import "github.com/chronolab/chrono/pkg/types"

// ValidateConnections drops connections whose endpoints are not both present
// in the final entry set. Dangling connections are discarded silently.
func ValidateConnections(conns []types.Connection, entries []types.TimelineEntry) []types.Connection {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}

	out := make([]types.Connection, 0, len(conns))
	for _, c := range conns {
		if ids[c.FromID] && ids[c.ToID] {
			out = append(out, c)
		}
	}
	return out
}
