package sequence

import (
	"log/slog"

	"github.com/dukex/conformance/pkg/capability"
	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/profile"
	"github.com/dukex/conformance/pkg/references"
)

// RunContext is shared by every sequence of one run. Token and Capabilities do not
// change once the run has started.
type RunContext struct {
	RunID        string
	TargetID     string
	Token        string
	Capabilities *capability.Index
	References   references.Store
	Profiles     profile.Validator
}

// TokenSet reports whether a bearer token was supplied for the run.
func (r *RunContext) TokenSet() bool {
	return r.Token != ""
}

// State is the working memory of one sequence execution.
type State struct {
	// Found is set once a test established that the target has instances of the entity.
	Found bool
	// Instance is the current working instance; it only changes on a successful fetch.
	Instance map[string]any
	// Instances is the working list, in discovery order.
	Instances []map[string]any
	// SeededIDs holds the ids a delayed sequence starts from.
	SeededIDs []string
}

// SetInstances replaces the working list and keeps Found and Instance consistent with it.
func (s *State) SetInstances(instances []map[string]any) {
	s.Instances = instances
	s.Found = len(instances) > 0

	if s.Found {
		s.Instance = instances[0]
	}
}

// T is handed to every test body.
type T struct {
	Definition *Definition
	Run        *RunContext
	State      *State
	Client     client.Client
	Logger     *slog.Logger
}

// WithoutAuth runs fn with the bearer token removed from the client and restores it
// afterwards, whatever fn returns.
func (t *T) WithoutAuth(fn func() error) error {
	token := t.Client.Token()
	t.Client.SetAuth("")

	defer t.Client.SetAuth(token)

	return fn()
}
