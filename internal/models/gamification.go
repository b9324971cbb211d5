package models

// Point awards are fixed product constants, not configuration.
const (
	PointsProblemSubmission    = 20
	PointsFurnitureSubmission  = 10
	PointsSuggestionSubmission = 10
	PointsValidation           = 5

	PointsPerLevel = 50
)

// PointsForMode returns the award for a successful submission of the given mode.
func PointsForMode(mode ReportMode) int {
	switch mode {
	case ModeProblem:
		return PointsProblemSubmission
	case ModeSuggestion:
		return PointsSuggestionSubmission
	default:
		return PointsFurnitureSubmission
	}
}

// LevelFor derives the gamification level from accrued points.
func LevelFor(points int) int {
	if points < 0 {
		return 0
	}
	return points / PointsPerLevel
}
