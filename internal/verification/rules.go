package verification

import (
	"fmt"
	"strings"

	"github.com/verilab/verilab/internal/domain"
)

// CheckReferenceRange applies the reference-range rule. Bounds are
// inclusive: a value equal to either bound passes. With both bounds unset
// the rule passes vacuously; a non-numeric value against a configured bound
// fails because the check is numeric.
func CheckReferenceRange(r domain.Result, s domain.AutoVerificationSettings) (bool, string) {
	if s.ReferenceRangeLow == nil && s.ReferenceRangeHigh == nil {
		return true, ""
	}
	v, ok := r.NumericValue()
	if !ok {
		return false, fmt.Sprintf("value %q is not numeric; reference range check requires a numeric value", r.Value)
	}
	if s.ReferenceRangeLow != nil && v < *s.ReferenceRangeLow {
		return false, fmt.Sprintf("value %g below reference range low %g", v, *s.ReferenceRangeLow)
	}
	if s.ReferenceRangeHigh != nil && v > *s.ReferenceRangeHigh {
		return false, fmt.Sprintf("value %g above reference range high %g", v, *s.ReferenceRangeHigh)
	}
	return true, ""
}

// CheckCriticalRange applies the critical-range rule. Unlike the reference
// range this is a danger zone: a value equal to a critical bound fails.
func CheckCriticalRange(r domain.Result, s domain.AutoVerificationSettings) (bool, string) {
	if s.CriticalRangeLow == nil && s.CriticalRangeHigh == nil {
		return true, ""
	}
	v, ok := r.NumericValue()
	if !ok {
		return false, fmt.Sprintf("value %q is not numeric; critical range check requires a numeric value", r.Value)
	}
	if s.CriticalRangeLow != nil && v <= *s.CriticalRangeLow {
		return false, fmt.Sprintf("value %g at or below critical low %g", v, *s.CriticalRangeLow)
	}
	if s.CriticalRangeHigh != nil && v >= *s.CriticalRangeHigh {
		return false, fmt.Sprintf("value %g at or above critical high %g", v, *s.CriticalRangeHigh)
	}
	return true, ""
}

// ParseFlags splits an instrument flag string on commas, semicolons, and
// whitespace, uppercases each token, and drops duplicates. Order of first
// appearance is preserved.
func ParseFlags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(c rune) bool {
		return c == ',' || c == ';' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		u := strings.ToUpper(f)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// CheckInstrumentFlags fails when any parsed flag appears in the configured
// block set. Comparison is case-insensitive; empty input passes.
func CheckInstrumentFlags(r domain.Result, s domain.AutoVerificationSettings) (bool, string) {
	if r.LISFlags == "" || len(s.InstrumentFlagsToBlock) == 0 {
		return true, ""
	}
	blocked := make(map[string]struct{}, len(s.InstrumentFlagsToBlock))
	for _, b := range s.InstrumentFlagsToBlock {
		blocked[strings.ToUpper(b)] = struct{}{}
	}
	for _, f := range ParseFlags(r.LISFlags) {
		if _, hit := blocked[f]; hit {
			return false, fmt.Sprintf("instrument flag %q is blocked", f)
		}
	}
	return true, ""
}

// CheckDelta compares the current value to the most recent prior result of
// the same test on the same sample. The rule is inapplicable (passes) when
// no threshold is configured, either value is non-numeric, or no prior
// exists within the lookback window. A prior of zero with a non-zero current
// fails because the percentage change is unbounded.
func CheckDelta(r domain.Result, s domain.AutoVerificationSettings, prior *domain.Result) (bool, string) {
	if s.DeltaCheckThresholdPercent == nil {
		return true, ""
	}
	cur, ok := r.NumericValue()
	if !ok {
		return true, ""
	}
	if prior == nil {
		return true, ""
	}
	prev, ok := prior.NumericValue()
	if !ok {
		return true, ""
	}
	if prev == 0 {
		if cur == 0 {
			return true, ""
		}
		return false, fmt.Sprintf("prior value is 0, current %g; delta is unbounded", cur)
	}
	pct := abs(cur-prev) / abs(prev) * 100
	if pct > *s.DeltaCheckThresholdPercent {
		return false, fmt.Sprintf("delta %.1f%% exceeds threshold %.1f%% (prior %g, current %g)", pct, *s.DeltaCheckThresholdPercent, prev, cur)
	}
	return true, ""
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
