package optimizer

// routeAfterTests decides where the loop goes once a candidate has been
// validated. A passing candidate is always measured, even on the final
// attempt, so a last-attempt improvement is never thrown away.
func routeAfterTests(s *State) string {
	if s.TestPassed {
		return stageMeasure
	}
	if s.Attempt >= s.MaxAttempts {
		return stageOutput
	}
	return stageOptimize
}

// routeAfterMeasure decides whether the loop keeps iterating after a
// measurement. By default the first improvement ends the run; with explore
// set the loop spends the remaining attempts hunting for a better one.
func routeAfterMeasure(s *State, explore bool) string {
	if s.CarbonImproved && !explore {
		return stageOutput
	}
	if s.Attempt >= s.MaxAttempts {
		return stageOutput
	}
	return stageOptimize
}
