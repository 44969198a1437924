package suite

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/dukex/conformance/pkg/assertions"
	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/fieldpath"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/outcome"
	"github.com/dukex/conformance/pkg/sequence"
)

const (
	noTokenMessage      = "Do not test if no bearer token set"
	unavailableMessage  = "No resources appear to be available for this patient. Please use patients with more information."
	noInstancesMessage  = "No resources appear to be available for this patient. Please use patients with more information"
	noTypedEntryMessage = "No resources of this type were returned"

	// maxPages bounds how many bundle pages a search follows.
	maxPages = 20
)

func (b *builder) notFoundMessage() string {
	return fmt.Sprintf("No %s resources could be found for this patient. Please use patients with more information.", b.entity())
}

func (b *builder) searchUnavailableMessage() string {
	if b.config.Delayed {
		return unavailableMessage
	}

	return fmt.Sprintf("No %s resources appear to be available for this patient. Please use patients with more information.", b.entity())
}

// query is one concrete set of values for a search combination.
type query struct {
	criteria []assertions.Criterion
	values   url.Values
}

// queries resolves the candidate values of every parameter of a search combination and
// returns their combinations in order. The patient parameter takes the run's target id;
// every other value is picked from the instances already found, falling back to the
// parameter's fixed candidates for patient-scoped entities. A delayed entity only searches
// with values taken from instances it has read. An unresolvable parameter skips the test.
func (b *builder) queries(t *sequence.T, params []models.SearchParam) ([]query, error) {
	queries := []query{{values: url.Values{}}}

	for _, param := range params {
		path := param.Path
		if path == "" {
			path = param.Name
		}

		candidates := b.searchCandidates(t, param, path)
		if len(candidates) == 0 {
			return nil, outcome.Skipf("Could not resolve %s in given resource", param.Name)
		}

		expanded := make([]query, 0, len(queries)*len(candidates))

		for _, q := range queries {
			for _, candidate := range candidates {
				values := maps.Clone(q.values)
				values.Set(param.Name, candidate)

				expanded = append(expanded, query{
					criteria: append(slices.Clone(q.criteria), assertions.Criterion{
						Param: models.SearchParam{Name: param.Name, Path: path, Kind: param.Kind},
						Value: candidate,
					}),
					values: values,
				})
			}
		}

		queries = expanded
	}

	return queries, nil
}

func (b *builder) searchCandidates(t *sequence.T, param models.SearchParam, path string) []string {
	if param.Kind == models.SearchParamPatient {
		if t.Run.TargetID == "" {
			return nil
		}

		return []string{t.Run.TargetID}
	}

	if value, ok := fieldpath.Representative(t.State.Instances, path, param.Kind); ok {
		return []string{value}
	}

	if b.config.Delayed {
		return nil
	}

	return param.Values
}

// first resolves a combination and returns its first concrete query.
func (b *builder) first(t *sequence.T, params []models.SearchParam) (query, error) {
	queries, err := b.queries(t, params)
	if err != nil {
		return query{}, err
	}

	return queries[0], nil
}

func (b *builder) unauthorizedSearch(params []models.SearchParam) sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !t.Run.TokenSet() {
			return outcome.Omit(noTokenMessage)
		}

		q, err := b.first(t, params)
		if err != nil {
			return err
		}

		var reply *client.Response

		err = t.WithoutAuth(func() error {
			reply, err = t.Client.Get(ctx, b.entity(), q.values, nil)

			return err
		})
		if err != nil {
			return err
		}

		return assertions.ExpectUnauthorized(reply)
	}
}

func (b *builder) search(params []models.SearchParam, primary bool) sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !primary && !t.State.Found {
			return outcome.Skip(b.searchUnavailableMessage())
		}

		queries, err := b.queries(t, params)
		if err != nil {
			return err
		}

		if !primary {
			queries = queries[:1]
		}

		for _, q := range queries {
			reply, err := t.Client.Get(ctx, b.entity(), q.values, nil)
			if err != nil {
				return err
			}

			if err := assertions.ExpectOK(reply); err != nil {
				return err
			}

			if err := assertions.ExpectBundle(reply); err != nil {
				return err
			}

			if len(reply.EntriesOfType(b.entity())) == 0 {
				continue
			}

			instances, err := b.collect(ctx, t, reply)
			if err != nil {
				return err
			}

			if primary {
				t.State.SetInstances(instances)
			} else {
				t.State.Instances = mergeInstances(t.State.Instances, instances)
			}

			if err := b.record(ctx, t, instances); err != nil {
				return err
			}

			return assertions.ExpectSearchResultsMatchParams(reply, b.entity(), q.criteria)
		}

		if !primary {
			return outcome.Fail(noTypedEntryMessage)
		}

		t.State.Found = false

		return outcome.Skip(b.searchUnavailableMessage())
	}
}

// collect gathers the entity's entries across every page of a search reply.
func (b *builder) collect(ctx context.Context, t *sequence.T, first *client.Response) ([]map[string]any, error) {
	instances := first.EntriesOfType(b.entity())
	reply := first

	for page := 1; page < maxPages && reply.NextLink() != ""; page++ {
		next, err := t.Client.Get(ctx, reply.NextLink(), nil, nil)
		if err != nil {
			return nil, err
		}

		if err := assertions.ExpectOK(next); err != nil {
			return nil, err
		}

		if err := assertions.ExpectBundle(next); err != nil {
			return nil, err
		}

		instances = append(instances, next.EntriesOfType(b.entity())...)
		reply = next
	}

	return instances, nil
}

// record stores the ids of instances and every reference they hold to an entity type
// whose delayed sequence waits for this one.
func (b *builder) record(ctx context.Context, t *sequence.T, instances []map[string]any) error {
	if t.Run.References == nil {
		return nil
	}

	for _, instance := range instances {
		if id, ok := instance["id"].(string); ok && id != "" {
			if err := t.Run.References.Record(ctx, b.entity(), id); err != nil {
				return fmt.Errorf("failed to record %s reference: %w", b.entity(), err)
			}
		}

		for _, reference := range fieldpath.References(instance) {
			if !slices.Contains(b.recordFor, reference.EntityType) {
				continue
			}

			if err := t.Run.References.Record(ctx, reference.EntityType, reference.ID); err != nil {
				return fmt.Errorf("failed to record %s reference: %w", reference.EntityType, err)
			}
		}
	}

	return nil
}

func mergeInstances(current, found []map[string]any) []map[string]any {
	known := map[string]bool{}

	for _, instance := range current {
		if id, ok := instance["id"].(string); ok {
			known[id] = true
		}
	}

	for _, instance := range found {
		id, _ := instance["id"].(string)
		if id != "" && known[id] {
			continue
		}

		known[id] = true
		current = append(current, instance)
	}

	return current
}

// readInstance reads entityType/id and applies the read reply checks.
func readInstance(ctx context.Context, t *sequence.T, entityType, id string) (map[string]any, error) {
	reply, err := t.Client.Get(ctx, entityType+"/"+id, nil, nil)
	if err != nil {
		return nil, err
	}

	if err := assertions.ExpectOK(reply); err != nil {
		return nil, err
	}

	if err := assertions.ExpectBodyPresent(reply, entityType); err != nil {
		return nil, err
	}

	if err := assertions.ExpectBodyType(reply, entityType); err != nil {
		return nil, err
	}

	if err := assertions.ExpectID(reply.Resource, id); err != nil {
		return nil, err
	}

	return reply.Resource, nil
}

func (b *builder) read() sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !t.State.Found {
			return outcome.Skip(b.notFoundMessage())
		}

		id, _ := t.State.Instance["id"].(string)
		if id == "" {
			return outcome.Failf("%s id not returned", b.entity())
		}

		instance, err := readInstance(ctx, t, b.entity(), id)
		if err != nil {
			return err
		}

		t.State.Instance = instance

		return nil
	}
}

func (b *builder) resourceRead() sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if len(t.State.SeededIDs) == 0 {
			return outcome.Skipf("No %s references found from the prior searches", b.entity())
		}

		var (
			instances []map[string]any
			firstErr  error
		)

		for _, id := range t.State.SeededIDs {
			instance, err := readInstance(ctx, t, b.entity(), id)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}

				continue
			}

			instances = append(instances, instance)
		}

		t.State.SetInstances(instances)

		return firstErr
	}
}

func (b *builder) vread() sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !t.State.Found {
			return outcome.Skip(b.notFoundMessage())
		}

		id, _ := t.State.Instance["id"].(string)
		if id == "" {
			return outcome.Failf("%s id not returned", b.entity())
		}

		versionID, _ := fieldpath.Find(t.State.Instance, "meta.versionId", nil)
		version, _ := versionID.(string)

		if version == "" {
			return outcome.Failf("%s version_id not returned", b.entity())
		}

		reply, err := t.Client.Get(ctx, b.entity()+"/"+id+"/_history/"+version, nil, nil)
		if err != nil {
			return err
		}

		if err := assertions.ExpectOK(reply); err != nil {
			return err
		}

		if err := assertions.ExpectBodyPresent(reply, b.entity()); err != nil {
			return err
		}

		return assertions.ExpectBodyType(reply, b.entity())
	}
}

func (b *builder) history() sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !t.State.Found {
			return outcome.Skip(b.notFoundMessage())
		}

		id, _ := t.State.Instance["id"].(string)
		if id == "" {
			return outcome.Failf("%s id not returned", b.entity())
		}

		reply, err := t.Client.Get(ctx, b.entity()+"/"+id+"/_history", nil, nil)
		if err != nil {
			return err
		}

		if err := assertions.ExpectOK(reply); err != nil {
			return err
		}

		if err := assertions.ExpectBundle(reply); err != nil {
			return err
		}

		return outcome.Assert(len(reply.Entries()) > 0, b.entity()+" has no history")
	}
}

func (b *builder) revInclude(params []models.SearchParam, revInclude string) sequence.Body {
	source, _, _ := strings.Cut(revInclude, ":")

	return func(ctx context.Context, t *sequence.T) error {
		if !b.config.Delayed && !t.State.Found {
			return outcome.Skip(b.searchUnavailableMessage())
		}

		q, err := b.first(t, params)
		if err != nil {
			return err
		}

		q.values.Set("_revinclude", revInclude)

		reply, err := t.Client.Get(ctx, b.entity(), q.values, nil)
		if err != nil {
			return err
		}

		if err := assertions.ExpectOK(reply); err != nil {
			return err
		}

		if err := assertions.ExpectBundle(reply); err != nil {
			return err
		}

		return outcome.Assert(len(reply.EntriesOfType(source)) > 0,
			fmt.Sprintf("No %s resources were returned from this search", source))
	}
}

func (b *builder) profileConformance() sequence.Body {
	return func(_ context.Context, t *sequence.T) error {
		if !t.State.Found {
			return outcome.Skip(unavailableMessage)
		}

		if b.config.ProfileURL == "" {
			return outcome.Skipf("No profile is configured for %s", b.entity())
		}

		if t.Run.Profiles == nil {
			return outcome.Skip("Profile validation is not configured")
		}

		var problems []string

		for _, instance := range t.State.Instances {
			issues, err := t.Run.Profiles.Validate(instance, b.config.ProfileURL)
			if err != nil {
				return err
			}

			for _, issue := range issues {
				problems = append(problems, fmt.Sprintf("%s/%v: %s", b.entity(), instance["id"], issue))
			}
		}

		if len(problems) > 0 {
			return outcome.Failf("%d profile validation issue(s) found in %s resources: %s",
				len(problems), b.entity(), strings.Join(problems, "; "))
		}

		return nil
	}
}

func (b *builder) mustSupport() sequence.Body {
	return func(_ context.Context, t *sequence.T) error {
		if len(t.State.Instances) == 0 {
			return outcome.Skip(noInstancesMessage)
		}

		for _, path := range b.config.MustSupport {
			if !fieldpath.CanResolve(t.State.Instances, fieldpath.TrimEntity(path, b.entity()), nil) {
				return outcome.Skipf("Could not find %s in any of the %d provided %s resource(s)",
					path, len(t.State.Instances), b.entity())
			}
		}

		return nil
	}
}

func (b *builder) referenceResolution() sequence.Body {
	return func(ctx context.Context, t *sequence.T) error {
		if !t.State.Found {
			return outcome.Skip(unavailableMessage)
		}

		var problems []string

		for _, reference := range fieldpath.References(t.State.Instance) {
			if !t.Run.Capabilities.Supports(reference.EntityType, models.InteractionRead) {
				t.Logger.DebugContext(ctx, "reference type not readable, not resolving", "reference", reference.Raw)

				continue
			}

			reply, err := t.Client.Get(ctx, reference.EntityType+"/"+reference.ID, nil, nil)

			switch {
			case err != nil:
				problems = append(problems, fmt.Sprintf("%s did not resolve: %v", reference.Raw, err))
			case reply.Status != http.StatusOK:
				problems = append(problems, reference.Raw+" did not resolve")
			case reply.ResourceType() != reference.EntityType:
				problems = append(problems, fmt.Sprintf("%s resolved to a %s resource", reference.Raw, reply.ResourceType()))
			}
		}

		if len(problems) > 0 {
			return outcome.Failf("Encountered issues while trying to resolve the following references: %s",
				strings.Join(problems, ", "))
		}

		return nil
	}
}
