package traffic

// Window is a named rolling time range over which an origin-served
// request count is evaluated against a threshold.
type Window string

const (
	Window30m Window = "30m"
	Window6h  Window = "6h"
	Window24h Window = "24h"
)

// Windows returns the fixed window set in evaluation order.
func Windows() []Window {
	return []Window{Window30m, Window6h, Window24h}
}

// Hours is the query span handed to the metrics source. The 30m window
// uses the source's minimum granularity of one hour.
func (w Window) Hours() int {
	switch w {
	case Window30m:
		return 1
	case Window6h:
		return 6
	case Window24h:
		return 24
	}
	return 0
}

// Human names the window for notification text.
func (w Window) Human() string {
	switch w {
	case Window30m:
		return "30 minutes"
	case Window6h:
		return "6 hours"
	case Window24h:
		return "24 hours"
	}
	return string(w)
}

// Valid reports whether w is one of the recognized windows.
func (w Window) Valid() bool {
	return w.Hours() > 0
}

// Result is one window's evaluation for a poll cycle.
type Result struct {
	Count     int64 `json:"count"`
	Threshold int64 `json:"threshold"`
	Below     bool  `json:"below"`
}

// Snapshot is the persisted state of the threshold monitor.
type Snapshot struct {
	Enabled    bool             `json:"enabled"`
	Thresholds map[Window]int64 `json:"thresholds"`
	AlertState map[Window]bool  `json:"alert_state"`
}

func DefaultSnapshot() Snapshot {
	s := Snapshot{
		Thresholds: map[Window]int64{},
		AlertState: map[Window]bool{},
	}
	for _, w := range Windows() {
		s.Thresholds[w] = 0
		s.AlertState[w] = false
	}
	return s
}
