package orchestrator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogue(t *testing.T) {
	require.Len(t, Catalogue, 20)
	seen := map[string]bool{}
	for i, c := range Catalogue {
		assert.Equal(t, i, c.Index)
		assert.False(t, seen[c.Name], c.Name)
		seen[c.Name] = true
	}
}

func TestRuleClassifier(t *testing.T) {
	tests := []struct {
		name   string
		s      Signals
		want   string
		lookup LookupKind
	}{
		{"driving wins", Signals{Hour: 14, MotionState: "Driving", Context: map[string]bool{"near_park": true}}, "driving", LookupNone},
		{"late night", Signals{Hour: 1, Context: map[string]bool{"near_park": true}}, "late_night_use", LookupContent},
		{"hospital before park", Signals{Hour: 14, Context: map[string]bool{"near_park": true, "near_hospital": true}}, "near_hospital", LookupPlaces},
		{"park", Signals{Hour: 14, Context: map[string]bool{"near_park": true}}, "near_park", LookupPlaces},
		{"movie theatre", Signals{Hour: 20, Context: map[string]bool{"at_movie_theatre": true}}, "at_movie_theatre", LookupEvents},
		{"jogging", Signals{Hour: 7, MotionState: "jogging"}, "walking_jogging", LookupPlaces},
		{"child", Signals{Hour: 15, Age: 8}, "child_at_play", LookupPlaces},
		{"elderly", Signals{Hour: 15, Age: 70}, "elderly_user", LookupPlaces},
		{"teen studying", Signals{Hour: 15, Age: 16, Context: map[string]bool{"at_home": true}}, "teen_at_home_study", LookupContent},
		{"female in public", Signals{Hour: 15, Age: 30, Gender: "F"}, "female_in_public", LookupNone},
		{"weekend out", Signals{Hour: 15, Age: 30, Weekday: time.Saturday}, "weekend_chill", LookupEvents},
		{"work hours", Signals{Hour: 11, Age: 30, Weekday: time.Tuesday}, "work_hours", LookupPlaces},
		{"at home", Signals{Hour: 19, Age: 30, Weekday: time.Tuesday, Context: map[string]bool{"at_home": true}}, "at_home", LookupContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RuleClassifier{}.Classify(tt.s)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Name)
			assert.Equal(t, tt.lookup, got.Lookup.Kind)
		})
	}
}

func TestRuleClassifier_NoMatch(t *testing.T) {
	_, ok := RuleClassifier{}.Classify(Signals{Hour: 19, Age: 30, Gender: "m", Weekday: time.Wednesday})
	assert.False(t, ok)

	_, ok = RuleClassifier{}.Classify(Signals{Hour: -1, Weekday: time.Monday})
	assert.False(t, ok)
}

func TestClassifierFunc(t *testing.T) {
	c := ClassifierFunc(func(Signals) (Category, bool) { return CategoryByName("at_beach_or_lake") })
	got, ok := c.Classify(Signals{})
	require.True(t, ok)
	assert.Equal(t, "beach", got.Lookup.Query)
}

func TestResult_CategoryJSON(t *testing.T) {
	none, err := json.Marshal(Result{})
	require.NoError(t, err)
	assert.NotContains(t, string(none), `"category"`)

	park, _ := CategoryByName("near_park")
	chosen, err := json.Marshal(Result{Category: park})
	require.NoError(t, err)
	assert.Contains(t, string(chosen), `"category":{"index":0,"name":"near_park","lookup":{"kind":"places","query":"park"}}`)

	driving, _ := CategoryByName("driving")
	plain, err := json.Marshal(Result{Category: driving})
	require.NoError(t, err)
	assert.Contains(t, string(plain), `"category":{"index":9,"name":"driving"}`)
}
