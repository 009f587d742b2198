package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s -> %s", event.Step, event.Action, event.Outcome)
		if event.Detail != "" {
			fmt.Fprintf(&buf, " (%s)", event.Detail)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// check evaluates one assertion against the run so far.
func (h *Harness) check(a Assertion, result *Result) error {
	final := result.Final

	switch a.Type {
	case AssertStats:
		return assertFields(a.Type, final.Stats, a.Expect, result.Trace)

	case AssertUnsynced:
		return assertCount(a.Type, "unsynced rows", a.Count, final.Unsynced, result.Trace)

	case AssertActive:
		return assertCount(a.Type, "active transactions", a.Count, len(final.Transactions), result.Trace)

	case AssertTrashed:
		return assertCount(a.Type, "trashed transactions", a.Count, len(final.Trash), result.Trace)

	case AssertRemoteRows:
		what := fmt.Sprintf("remote rows for %s", a.Owner)
		return assertCount(a.Type, what, a.Count, h.rows.Len(a.Owner), result.Trace)

	case AssertRemoteCalls:
		what := fmt.Sprintf("remote %s calls", a.Op)
		return assertCount(a.Type, what, a.Count, h.rows.Calls(a.Op), result.Trace)

	case AssertTransaction:
		if a.Ref > len(h.refs) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("transaction ref %d", a.Ref),
				Actual:   fmt.Sprintf("only %d transactions added", len(h.refs)),
				Trace:    result.Trace,
			}
		}
		id := h.refs[a.Ref-1]
		view, ok := findView(id, final.Transactions, final.Trash)
		if !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("transaction %s present", id),
				Actual:   "not found",
				Trace:    result.Trace,
			}
		}
		return assertFields(a.Type, view, a.Expect, result.Trace)
	}

	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertCount(typ, what string, want, got int, trace []TraceEvent) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
		Trace:    trace,
	}
}

// assertFields compares expected values against the JSON rendering of v
// with subset semantics. Values are compared by their string form, so
// YAML 100 matches the decimal "100". Absent fields compare as "".
func assertFields(typ string, v any, expect map[string]interface{}, trace []TraceEvent) error {
	actual, err := toFieldMap(v)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var mismatches []string
	for _, k := range keys {
		want := fmt.Sprint(expect[k])
		got := ""
		if a, ok := actual[k]; ok && a != nil {
			got = fmt.Sprint(a)
		}
		if want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %q, got %q", k, want, got))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%v", expect),
		Actual:   strings.Join(mismatches, "; "),
		Trace:    trace,
	}
}

func toFieldMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return m, nil
}

func findView(id string, lists ...[]TxView) (TxView, bool) {
	for _, l := range lists {
		for _, v := range l {
			if v.ID == id {
				return v, true
			}
		}
	}
	return TxView{}, false
}
