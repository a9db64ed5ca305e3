package incident

// Incident is one entry from the provider status feed. ID is opaque;
// equality is exact-string.
type Incident struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
	UpdatedAt string `json:"updated_at"`
	Body      string `json:"body"`
	URL       string `json:"url"`
}

// Snapshot is the persisted state of the incident monitor: the
// append-only set of already-notified incident ids.
type Snapshot struct {
	SeenIncidentIDs []string `json:"seen_incident_ids"`
}

func DefaultSnapshot() Snapshot {
	return Snapshot{SeenIncidentIDs: []string{}}
}
