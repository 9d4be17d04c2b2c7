package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/truthlayer-systems/truthfeed/internal/models"
)

func TestValidateFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters []models.Filter
		wantErr bool
	}{
		{
			name:    "empty set is valid",
			filters: nil,
		},
		{
			name: "valid equals",
			filters: []models.Filter{
				{Field: "event_type", Operator: models.OpEquals, Value: "control_failed"},
			},
		},
		{
			name: "valid numeric comparison",
			filters: []models.Filter{
				{Field: "confidence_score", Operator: models.OpGreaterThan, Value: 0.8},
			},
		},
		{
			name: "missing field",
			filters: []models.Filter{
				{Operator: models.OpEquals, Value: "x"},
			},
			wantErr: true,
		},
		{
			name: "unknown operator",
			filters: []models.Filter{
				{Field: "event_type", Operator: "matches", Value: "x"},
			},
			wantErr: true,
		},
		{
			name: "missing value",
			filters: []models.Filter{
				{Field: "event_type", Operator: models.OpEquals},
			},
			wantErr: true,
		},
		{
			name: "greater_than with non-numeric value",
			filters: []models.Filter{
				{Field: "confidence_score", Operator: models.OpGreaterThan, Value: "high"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilters(tt.filters)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFilter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMatchesEvent(t *testing.T) {
	event := &models.Event{
		FeedType:        models.FeedComplianceEvents,
		SubjectID:       "org-1",
		EventType:       "control_failed",
		ConfidenceScore: 0.92,
		Payload: map[string]interface{}{
			"framework":  "GDPR",
			"regions":    []interface{}{"eu-west", "us-east"},
			"severity":   7,
			"references": "GDPR Art. 32 security of processing",
		},
	}

	tests := []struct {
		name    string
		filters []models.Filter
		want    bool
	}{
		{
			name: "no filters matches everything",
			want: true,
		},
		{
			name: "equals on metadata field",
			filters: []models.Filter{
				{Field: "event_type", Operator: models.OpEquals, Value: "control_failed"},
			},
			want: true,
		},
		{
			name: "equals on payload field",
			filters: []models.Filter{
				{Field: "framework", Operator: models.OpEquals, Value: "GDPR"},
			},
			want: true,
		},
		{
			name: "contains on string payload field",
			filters: []models.Filter{
				{Field: "references", Operator: models.OpContains, Value: "GDPR"},
			},
			want: true,
		},
		{
			name: "contains on list payload field",
			filters: []models.Filter{
				{Field: "regions", Operator: models.OpContains, Value: "eu-west"},
			},
			want: true,
		},
		{
			name: "contains misses",
			filters: []models.Filter{
				{Field: "regions", Operator: models.OpContains, Value: "ap-south"},
			},
			want: false,
		},
		{
			name: "greater_than on confidence",
			filters: []models.Filter{
				{Field: "confidence_score", Operator: models.OpGreaterThan, Value: 0.9},
			},
			want: true,
		},
		{
			name: "less_than fails",
			filters: []models.Filter{
				{Field: "confidence_score", Operator: models.OpLessThan, Value: 0.9},
			},
			want: false,
		},
		{
			name: "numeric payload field",
			filters: []models.Filter{
				{Field: "severity", Operator: models.OpGreaterThan, Value: 5},
			},
			want: true,
		},
		{
			name: "AND composition short-circuits",
			filters: []models.Filter{
				{Field: "framework", Operator: models.OpEquals, Value: "GDPR"},
				{Field: "event_type", Operator: models.OpEquals, Value: "control_passed"},
			},
			want: false,
		},
		{
			name: "absent payload field never matches",
			filters: []models.Filter{
				{Field: "nonexistent", Operator: models.OpEquals, Value: "x"},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesEvent(tt.filters, event))
		})
	}
}

func TestWantsFeedGlobalKeyMatchesSubjectFeeds(t *testing.T) {
	sub := &models.Subscription{
		Feeds: []models.FeedKey{{FeedType: models.FeedComplianceEvents}},
	}

	assert.True(t, sub.WantsFeed(models.FeedKey{FeedType: models.FeedComplianceEvents, SubjectID: "org-1"}))
	assert.True(t, sub.WantsFeed(models.FeedKey{FeedType: models.FeedComplianceEvents}))
	assert.False(t, sub.WantsFeed(models.FeedKey{FeedType: models.FeedAuditActivity, SubjectID: "org-1"}))
}
