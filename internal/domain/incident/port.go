package incident

import "context"

// Source fetches the current incident list. An empty slice can mean
// either "no open incidents" or "feed degraded to empty"; the source
// conflates the two, so callers treat empty as a fallback trigger.
type Source interface {
	Current(ctx context.Context) ([]Incident, error)
}
