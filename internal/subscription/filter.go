package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/truthlayer-systems/truthfeed/internal/models"
)

// ErrInvalidFilter is returned at subscription creation time for malformed
// filters. Filters are never rejected at match time.
var ErrInvalidFilter = errors.New("invalid filter")

var validOperators = map[string]bool{
	models.OpEquals:      true,
	models.OpGreaterThan: true,
	models.OpLessThan:    true,
	models.OpContains:    true,
}

// ValidateFilters checks every filter of a subscription request up front.
func ValidateFilters(filters []models.Filter) error {
	for i, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("%w: filter %d has no field", ErrInvalidFilter, i)
		}
		if !validOperators[f.Operator] {
			return fmt.Errorf("%w: filter %d has unknown operator %q", ErrInvalidFilter, i, f.Operator)
		}
		if f.Value == nil {
			return fmt.Errorf("%w: filter %d has no value", ErrInvalidFilter, i)
		}
		switch f.Operator {
		case models.OpGreaterThan, models.OpLessThan:
			if _, ok := toFloat(f.Value); !ok {
				return fmt.Errorf("%w: filter %d: operator %s requires a numeric value", ErrInvalidFilter, i, f.Operator)
			}
		}
	}
	return nil
}

// MatchesEvent reports whether every filter matches the event (logical AND,
// short-circuit on the first failing filter).
func MatchesEvent(filters []models.Filter, event *models.Event) bool {
	for _, f := range filters {
		if !matchOne(f, event) {
			return false
		}
	}
	return true
}

func matchOne(f models.Filter, event *models.Event) bool {
	actual, ok := fieldValue(f.Field, event)
	if !ok {
		return false
	}

	switch f.Operator {
	case models.OpEquals:
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", f.Value)
	case models.OpGreaterThan:
		av, aok := toFloat(actual)
		fv, fok := toFloat(f.Value)
		return aok && fok && av > fv
	case models.OpLessThan:
		av, aok := toFloat(actual)
		fv, fok := toFloat(f.Value)
		return aok && fok && av < fv
	case models.OpContains:
		return contains(actual, f.Value)
	}
	return false
}

// fieldValue resolves a filter field against the event. Event metadata fields
// are addressable by name; everything else is looked up in the payload.
func fieldValue(field string, event *models.Event) (interface{}, bool) {
	switch field {
	case "event_type":
		return event.EventType, true
	case "feed_type":
		return event.FeedType, true
	case "subject_id":
		return event.SubjectID, true
	case "confidence_score":
		return event.ConfidenceScore, true
	}
	v, ok := event.Payload[field]
	return v, ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(actual, want interface{}) bool {
	switch a := actual.(type) {
	case string:
		return strings.Contains(a, fmt.Sprintf("%v", want))
	case []interface{}:
		target := fmt.Sprintf("%v", want)
		for _, item := range a {
			if fmt.Sprintf("%v", item) == target {
				return true
			}
		}
	}
	return false
}
