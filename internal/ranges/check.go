package ranges

import (
	"fmt"
	"math"
)

// IssueKind classifies a range table inconsistency.
type IssueKind string

const (
	IssueRoundTrip  IssueKind = "round_trip"
	IssueFullScale  IssueKind = "full_scale"
	IssueDegenerate IssueKind = "degenerate"
)

// Issue is one finding of Check. Table values are never corrected; issues
// are only reported.
type Issue struct {
	Code   uint16    `json:"code"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (i Issue) String() string {
	return fmt.Sprintf("0x%02X %s: %s", i.Code, i.Kind, i.Detail)
}

// Check scans every entry of t and reports entries whose end codes do not
// convert to the documented min/max or do not survive a forward/inverse
// round trip, bipolar entries whose positive span
// stops short of 0x7FFF, and degenerate entries.
func (t Table) Check() []Issue {
	var issues []Issue
	for _, code := range t.Codes() {
		r := t[code]
		conv := NewConverter(r)

		if conv.Kind == KindUnknown {
			issues = append(issues, Issue{
				Code:   code,
				Kind:   IssueDegenerate,
				Detail: fmt.Sprintf("min=%g max=%g", r.Min, r.Max),
			})
			continue
		}

		tol := conv.Quantum() / 2
		ends := []struct {
			code uint16
			want float64
		}{{r.MinCode, r.Min}, {r.MaxCode, r.Max}}
		for _, end := range ends {
			v := conv.Forward(end.code)
			back, ok := conv.Inverse(v)
			if !ok || back != end.code || math.Abs(v-end.want) > tol {
				issues = append(issues, Issue{
					Code:   code,
					Kind:   IssueRoundTrip,
					Detail: fmt.Sprintf("code 0x%04X -> %g (want %g) -> 0x%04X", end.code, v, end.want, back),
				})
			}
		}

		if conv.Kind == KindBipolar && r.MaxCode != signBit-1 {
			issues = append(issues, Issue{
				Code:   code,
				Kind:   IssueFullScale,
				Detail: fmt.Sprintf("max_code 0x%04X, 0x7FFF reads %g %s", r.MaxCode, conv.Forward(signBit-1), r.Units),
			})
		}
	}
	return issues
}
