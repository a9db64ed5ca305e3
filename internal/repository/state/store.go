package state

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Kind names one monitor's state document. Each kind has exactly one
// writer (its own poll loop).
type Kind string

const (
	KindOriginHealth Kind = "origin_health"
	KindOriginServed Kind = "origin_served"
	KindStatusFeed   Kind = "status_incidents"
)

// Store persists whole monitor snapshots, read-modify-write by the
// single owning monitor.
//
// Load reports whether a snapshot was applied to out. A missing,
// unreadable, or unparsable document leaves out untouched and returns
// false; the caller keeps its defaults. Documents that decode only
// partway (valid JSON, wrong shape) count as unparsable and leak
// nothing into out. Load never fails hard.
//
// Save failures are non-fatal: the caller logs them and the in-memory
// state stays authoritative until the next successful save.
type Store interface {
	Load(ctx context.Context, kind Kind, out any) bool
	Save(ctx context.Context, kind Kind, v any) error
}

// decodeInto unmarshals b through a staging value so that a document
// failing mid-decode never half-populates out. out must be a non-nil
// pointer.
func decodeInto(b []byte, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer")
	}
	tmp := reflect.New(rv.Type().Elem())
	if err := json.Unmarshal(b, tmp.Interface()); err != nil {
		return err
	}
	rv.Elem().Set(tmp.Elem())
	return nil
}
