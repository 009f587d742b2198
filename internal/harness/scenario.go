package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario drives a tracker through a sequence of user and network
// actions and asserts on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 start time of the manual clock.
	// Defaults to DefaultClock.
	Clock string `yaml:"clock,omitempty"`

	// Remote seeds rows into the remote store before the first step.
	Remote []RemoteRow `yaml:"remote,omitempty"`

	// Steps are executed in order. Background pushes are drained after
	// every step so traces are deterministic.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// RemoteRow is a row already present in the remote store.
type RemoteRow struct {
	Owner      string `yaml:"owner"`
	PersonName string `yaml:"person_name"`
	Amount     string `yaml:"amount"`
	Type       string `yaml:"type"`
	Date       string `yaml:"date"`
	Notes      string `yaml:"notes,omitempty"`
}

// Step is one action against the tracker.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Args holds action arguments. Transaction fields use their snake_case
	// names; ref is the 1-based position of a transaction added earlier in
	// the scenario.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect is the expected outcome (see Outcome* constants).
	// If empty, any outcome is accepted.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected count for count assertions.
	Count int `yaml:"count,omitempty"`

	// Owner scopes remote_rows.
	Owner string `yaml:"owner,omitempty"`

	// Op names the remote operation for remote_calls.
	Op string `yaml:"op,omitempty"`

	// Ref selects a transaction for the transaction assertion.
	Ref int `yaml:"ref,omitempty"`

	// Expect holds expected field values for stats and transaction.
	// Subset match: only listed fields are checked.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// DefaultClock is the start time used when a scenario names none.
const DefaultClock = "2024-03-15T09:00:00Z"

// Step actions.
const (
	ActionAdd        = "add"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionSignIn     = "sign_in"
	ActionSignOut    = "sign_out"
	ActionOffline    = "offline"
	ActionOnline     = "online"
	ActionSync       = "sync"
	ActionMerge      = "merge"
	ActionImport     = "import"
	ActionAdvance    = "advance"
	ActionFailRemote = "fail_remote"
	ActionHealRemote = "heal_remote"
)

var knownActions = map[string]bool{
	ActionAdd: true, ActionUpdate: true, ActionDelete: true,
	ActionSignIn: true, ActionSignOut: true,
	ActionOffline: true, ActionOnline: true,
	ActionSync: true, ActionMerge: true, ActionImport: true,
	ActionAdvance: true, ActionFailRemote: true, ActionHealRemote: true,
}

// Step outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeValidation = "validation_error"
	OutcomeTrashed    = "trashed"
	OutcomeSignedOut  = "signed_out"
	OutcomeMerge      = "merge_error"
	OutcomeRemote     = "remote_error"
	OutcomeStorage    = "storage_error"
	OutcomeError      = "error"
)

var knownOutcomes = map[string]bool{
	OutcomeOK: true, OutcomeValidation: true, OutcomeTrashed: true,
	OutcomeSignedOut: true, OutcomeMerge: true, OutcomeRemote: true,
	OutcomeStorage: true, OutcomeError: true,
}

// Assertion type constants.
const (
	AssertStats       = "stats"
	AssertUnsynced    = "unsynced"
	AssertActive      = "active"
	AssertTrashed     = "trashed"
	AssertRemoteRows  = "remote_rows"
	AssertRemoteCalls = "remote_calls"
	AssertTransaction = "transaction"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields so "assertion:" vs "assertions:" typos fail loudly.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Clock != "" {
		if _, err := time.Parse(time.RFC3339, s.Clock); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, r := range s.Remote {
		if r.Owner == "" {
			return fmt.Errorf("remote row %d: owner is required", i)
		}
	}

	for i, step := range s.Steps {
		if !knownActions[step.Action] {
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
		if step.Expect != "" && !knownOutcomes[step.Expect] {
			return fmt.Errorf("step %d: unknown outcome %q", i, step.Expect)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}

	return nil
}

// validateAssertion checks that an assertion has the fields its type needs.
func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("stats assertion requires expect")
		}
	case AssertUnsynced, AssertActive, AssertTrashed:
	case AssertRemoteRows:
		if a.Owner == "" {
			return fmt.Errorf("remote_rows assertion requires owner")
		}
	case AssertRemoteCalls:
		if a.Op == "" {
			return fmt.Errorf("remote_calls assertion requires op")
		}
	case AssertTransaction:
		if a.Ref < 1 {
			return fmt.Errorf("transaction assertion requires ref >= 1")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("transaction assertion requires expect")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
