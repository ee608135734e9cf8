package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouteAfterTests(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  string
	}{
		{"passing goes to measure", State{TestPassed: true, Attempt: 1, MaxAttempts: 5}, stageMeasure},
		{"passing on final attempt still measures", State{TestPassed: true, Attempt: 5, MaxAttempts: 5}, stageMeasure},
		{"failing retries", State{TestPassed: false, Attempt: 1, MaxAttempts: 5}, stageOptimize},
		{"failing on final attempt ends", State{TestPassed: false, Attempt: 5, MaxAttempts: 5}, stageOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, routeAfterTests(&tc.state))
		})
	}
}

func TestRouteAfterMeasure(t *testing.T) {
	cases := []struct {
		name    string
		state   State
		explore bool
		want    string
	}{
		{"improvement ends by default", State{CarbonImproved: true, Attempt: 1, MaxAttempts: 5}, false, stageOutput},
		{"improvement keeps going with explore", State{CarbonImproved: true, Attempt: 1, MaxAttempts: 5}, true, stageOptimize},
		{"explore still bounded by attempts", State{CarbonImproved: true, Attempt: 5, MaxAttempts: 5}, true, stageOutput},
		{"no improvement retries", State{CarbonImproved: false, Attempt: 2, MaxAttempts: 5}, false, stageOptimize},
		{"no improvement on final attempt ends", State{CarbonImproved: false, Attempt: 5, MaxAttempts: 5}, false, stageOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, routeAfterMeasure(&tc.state, tc.explore))
		})
	}
}
