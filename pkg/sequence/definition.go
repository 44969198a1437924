// Package sequence defines declarative test sequences and the runner that executes them
// in order, converting what each test body returns into a recorded outcome.
package sequence

import (
	"context"
	"fmt"
	"strings"
)

// Body is the executable part of a test. It ends the test by returning nil (pass), an
// outcome signal (skip, omit, fail) or any other error (error outcome).
type Body func(ctx context.Context, t *T) error

// Gate names the capability a test needs. The test is skipped without running its body
// when the server does not declare every interaction for EntityType.
type Gate struct {
	EntityType   string
	Interactions []string
}

// SkipMessage is the message recorded when the gate is closed.
func (g Gate) SkipMessage() string {
	return fmt.Sprintf("This server does not support %s %s operation(s) according to conformance statement.",
		g.EntityType, strings.Join(g.Interactions, ","))
}

// TestSpec is one ordered test of a sequence.
type TestSpec struct {
	Key         string   `json:"key"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	Versions    []string `json:"versions,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
	Gate        *Gate    `json:"-"`
	Body        Body     `json:"-"`
}

// Definition is the static description of one entity's test suite. Test order is the
// execution order; later tests read state left by earlier ones. ConformanceSupports lists
// the entity types the server's capability document has to declare for the sequence to
// be meaningful.
type Definition struct {
	EntityType          string     `json:"entity_type"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	TestIDPrefix        string     `json:"test_id_prefix,omitempty"`
	Delayed             bool       `json:"delayed"`
	DependsOn           []string   `json:"depends_on,omitempty"`
	RequiresToken       bool       `json:"requires_token"`
	ConformanceSupports []string   `json:"conformance_supports"`
	Tests               []TestSpec `json:"tests"`
}

// FullTestID prefixes a test id with the sequence prefix, e.g. "USCPR-01".
func (d *Definition) FullTestID(spec TestSpec) string {
	if d.TestIDPrefix == "" {
		return spec.ID
	}

	return d.TestIDPrefix + "-" + spec.ID
}

// Test returns the TestSpec registered under key.
func (d *Definition) Test(key string) (TestSpec, bool) {
	for _, spec := range d.Tests {
		if spec.Key == key {
			return spec, true
		}
	}

	return TestSpec{}, false
}
