package state

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// Change kinds.
const (
	ChangeAdded   = "add"
	ChangeRemoved = "remove"
	ChangeChanged = "change"
)

// Change is one difference between two snapshots.
type Change struct {
	Kind   string
	Path   string
	Before any
	After  any
}

// tolerance is the largest change at a path that is not significant.
type tolerance func(before, after float64) float64

func fixed(limit float64) tolerance {
	return func(_, _ float64) float64 { return limit }
}

// tolerances lists the noisy numeric fields. Any other change is
// significant.
var tolerances = map[string]tolerance{
	"state.printer.data.temperature.nozzle.0.actual": fixed(1),
	"state.printer.data.temperature.bed.actual":      fixed(1),
	"state.printer.job.progress":                     fixed(0.1),
	"state.printer.job.data.timeRemaining": func(_, after float64) float64 {
		if after < 60 {
			return 5
		}
		return 30
	},
	"state.printer.job.data.totalTime": fixed(30),
}

// Tree converts a snapshot into its generic JSON form.
func Tree(s Snapshot) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Diff lists the differences from before to after. A nil before is
// treated as an empty document.
func Diff(before, after map[string]any) []Change {
	if before == nil {
		before = map[string]any{}
	}
	if after == nil {
		after = map[string]any{}
	}
	r := &diffReporter{}
	cmp.Equal(before, after, cmp.Reporter(r))
	return r.changes
}

// Significant reports whether any change matters enough to broadcast.
func Significant(changes []Change) bool {
	for _, c := range changes {
		if significant(c) {
			return true
		}
	}
	return false
}

func significant(c Change) bool {
	if c.Kind != ChangeChanged {
		return true
	}
	tol, ok := tolerances[c.Path]
	if !ok {
		return true
	}
	before, okB := toFloat(c.Before)
	after, okA := toFloat(c.After)
	if !okB || !okA {
		return true
	}
	return math.Abs(before-after) > tol(before, after)
}

// diffReporter collects leaf differences with dotted paths.
type diffReporter struct {
	path    cmp.Path
	changes []Change
}

func (r *diffReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *diffReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

func (r *diffReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	vx, vy := r.path.Last().Values()
	c := Change{Kind: ChangeChanged, Path: dottedPath(r.path)}
	switch {
	case !vx.IsValid():
		c.Kind = ChangeAdded
	case !vy.IsValid():
		c.Kind = ChangeRemoved
	}
	c.Before = valueOf(vx)
	c.After = valueOf(vy)
	r.changes = append(r.changes, c)
}

// dottedPath renders map keys and slice indexes joined by dots.
func dottedPath(p cmp.Path) string {
	var parts []string
	for _, step := range p {
		switch s := step.(type) {
		case cmp.MapIndex:
			parts = append(parts, keyString(s.Key()))
		case cmp.SliceIndex:
			ix, iy := s.SplitKeys()
			switch {
			case ix >= 0:
				parts = append(parts, strconv.Itoa(ix))
			default:
				parts = append(parts, strconv.Itoa(iy))
			}
		}
	}
	return strings.Join(parts, ".")
}

func keyString(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return fmt.Sprint(valueOf(v))
}

func valueOf(v reflect.Value) any {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
