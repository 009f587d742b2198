package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(scenario.Steps))
		})
	}
}

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"stats_daily", "guest_merge"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_AddAndStats(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline",
		Description: "inline scenario",
		Steps: []Step{
			{Action: ActionAdd, Args: map[string]interface{}{
				"person_name": "Alice", "amount": 30, "type": "received",
			}},
			{Action: ActionAdd, Args: map[string]interface{}{
				"person_name": "Bob", "amount": 12.5, "type": "sent", "date": "2024-01-02",
			}},
		},
		Assertions: []Assertion{
			{Type: AssertActive, Count: 2},
			{Type: AssertStats, Expect: map[string]interface{}{
				"balance":      "17.5",
				"daily_income": "30",
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, TraceEvent{Step: 1, Action: ActionAdd, Outcome: OutcomeOK, Detail: "tx-1"}, result.Trace[0])
	assert.Equal(t, "tx-2", result.Trace[1].Detail)

	require.Len(t, result.Final.Transactions, 2)
	assert.Equal(t, "2024-03-15", result.Final.Transactions[0].Date)
	assert.Equal(t, "2024-01-02", result.Final.Transactions[1].Date)
}

func TestRun_UnexpectedOutcomeFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "an add that fails validation but expects ok",
		Steps: []Step{
			{Action: ActionAdd, Args: map[string]interface{}{
				"person_name": "Alice", "amount": -1, "type": "received",
			}, Expect: OutcomeOK},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected outcome "ok", got "validation_error"`)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_count",
		Description: "wrong active count",
		Steps: []Step{
			{Action: ActionAdd, Args: map[string]interface{}{
				"person_name": "Alice", "amount": 1, "type": "sent",
			}},
		},
		Assertions: []Assertion{
			{Type: AssertActive, Count: 5},
			{Type: AssertTransaction, Ref: 1, Expect: map[string]interface{}{"amount": "2"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: 5 active transactions")
	assert.Contains(t, result.Errors[1], `amount: want "2", got "1"`)
}

func TestRun_UnknownRef(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_ref",
		Description: "update of a transaction that was never added",
		Steps: []Step{
			{Action: ActionDelete, Args: map[string]interface{}{"ref": 4}, Expect: OutcomeError},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Advance(t *testing.T) {
	scenario := &Scenario{
		Name:        "advance",
		Description: "advancing the clock moves today",
		Clock:       "2024-03-15T22:00:00Z",
		Steps: []Step{
			{Action: ActionAdd, Args: map[string]interface{}{
				"person_name": "Alice", "amount": 5, "type": "received",
			}},
			{Action: ActionAdvance, Args: map[string]interface{}{"by": "4h"}},
		},
		Assertions: []Assertion{
			{Type: AssertStats, Expect: map[string]interface{}{
				"total_income": "5",
				"daily_income": "0",
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "2024-03-16T02:00:00Z", result.Trace[1].Detail)
}

func TestRun_BadClock(t *testing.T) {
	_, err := Run(&Scenario{Name: "x", Description: "x", Clock: "yesterday"})
	assert.Error(t, err)
}

func TestRun_BadRemoteSeed(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "x",
		Description: "x",
		Remote:      []RemoteRow{{Owner: "u1", Amount: "lots", Date: "2024-01-01"}},
		Steps:       []Step{{Action: ActionSync}},
	})
	assert.Error(t, err)
}

func TestMarshalSnapshot_EmptyListsAreArrays(t *testing.T) {
	data, err := MarshalSnapshot("empty", &Result{Trace: []TraceEvent{}, Final: Snapshot{
		Transactions: viewsOf(nil),
		Trash:        viewsOf(nil),
	}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"transactions": []`)
	assert.Contains(t, string(data), `"trash": []`)
	assert.True(t, data[len(data)-1] == '\n')
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertUnsynced,
		Expected: "0 unsynced rows",
		Actual:   "2 unsynced rows",
		Trace: []TraceEvent{
			{Step: 1, Action: ActionAdd, Outcome: OutcomeOK, Detail: "tx-1"},
			{Step: 2, Action: ActionSync, Outcome: OutcomeSignedOut},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: unsynced")
	assert.Contains(t, msg, "[1] add -> ok (tx-1)")
	assert.Contains(t, msg, "[2] sync -> signed_out\n")
}
