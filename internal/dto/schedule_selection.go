package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SelectionKind tags which schedule information a booking carries.
type SelectionKind int

const (
	SelectionNone SelectionKind = iota
	SelectionSingle
	SelectionMulti
)

func (k SelectionKind) String() string {
	switch k {
	case SelectionSingle:
		return "single"
	case SelectionMulti:
		return "multi"
	default:
		return "none"
	}
}

// ScheduleSelection is the booking's schedule choice, decided once from the
// raw form fields. ScheduleIDs keeps request order; day numbers follow it.
type ScheduleSelection struct {
	Kind        SelectionKind
	ScheduleIDs []string
}

// Single returns the id of a SelectionSingle.
func (s ScheduleSelection) Single() string {
	if s.Kind != SelectionSingle || len(s.ScheduleIDs) == 0 {
		return ""
	}
	return s.ScheduleIDs[0]
}

// ParseScheduleSelection turns the schedule_id / schedule_ids form values
// into a selection. schedule_ids wins when both are present. The array may
// hold strings or numbers; it must be non-empty and free of repeats.
func ParseScheduleSelection(single, multi string) (ScheduleSelection, error) {
	multi = strings.TrimSpace(multi)
	if multi != "" {
		ids, err := parseIDArray(multi)
		if err != nil {
			return ScheduleSelection{}, err
		}
		return ScheduleSelection{Kind: SelectionMulti, ScheduleIDs: ids}, nil
	}
	if single = strings.TrimSpace(single); single != "" {
		return ScheduleSelection{Kind: SelectionSingle, ScheduleIDs: []string{single}}, nil
	}
	return ScheduleSelection{Kind: SelectionNone}, nil
}

func parseIDArray(raw string) ([]string, error) {
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	dec.UseNumber()
	var values []interface{}
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("schedule_ids must be a JSON array: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("schedule_ids must not be empty")
	}

	ids := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		var id string
		switch t := v.(type) {
		case string:
			id = strings.TrimSpace(t)
		case json.Number:
			id = t.String()
		default:
			return nil, fmt.Errorf("schedule_ids[%d] must be a string or number", i)
		}
		if id == "" {
			return nil, fmt.Errorf("schedule_ids[%d] is empty", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("schedule_ids contains %s more than once", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
