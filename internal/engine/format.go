package engine

import (
	"math"
	"strconv"

	"github.com/t77yq/rpm-engine/internal/model"
)

// round2 trims float noise from reported deltas. Comparisons always use the
// unrounded value.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatValue(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func formatSigned(v float64) string {
	s := formatValue(v)
	if v > 0 {
		return "+" + s
	}
	return s
}

func withUnit(v float64, unit string) string {
	if unit == "" {
		return formatValue(v)
	}
	return formatValue(v) + " " + unit
}

func operatorPhrase(o model.Operator) string {
	switch o {
	case model.OperatorGT:
		return "above"
	case model.OperatorLT:
		return "below"
	case model.OperatorGTE:
		return "at or above"
	case model.OperatorLTE:
		return "at or below"
	}
	return string(o)
}

func readingEvidence(r model.VitalReading) map[string]interface{} {
	return map[string]interface{}{
		"value":       r.Value,
		"unit":        r.Unit,
		"recorded_at": r.RecordedAt,
	}
}
