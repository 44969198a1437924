// Package assertions holds the response checks used by test bodies. Each check returns
// nil or an *outcome.Signal carrying a fail outcome with a stable, fully formatted message.
package assertions

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/outcome"
)

const maxExcerpt = 200

// ExpectStatus fails unless the response status is one of allowed.
func ExpectStatus(response *client.Response, allowed ...int) error {
	if response != nil && slices.Contains(allowed, response.Status) {
		return nil
	}

	codes := make([]string, 0, len(allowed))
	for _, code := range allowed {
		codes = append(codes, strconv.Itoa(code))
	}

	return outcome.Failf("Bad response code: expected %s, but found %d. %s",
		strings.Join(codes, ", "), status(response), excerpt(response))
}

// ExpectOK is ExpectStatus with the success codes a read or search may answer with.
func ExpectOK(response *client.Response) error {
	return ExpectStatus(response, http.StatusOK, http.StatusCreated)
}

// ExpectUnauthorized fails unless the server rejected the request with 401.
func ExpectUnauthorized(response *client.Response) error {
	if response != nil && response.Status == http.StatusUnauthorized {
		return nil
	}

	return outcome.Failf("Bad response code: expected %d, but found %d", http.StatusUnauthorized, status(response))
}

// ExpectBodyPresent fails when a successful reply carries no decodable resource.
func ExpectBodyPresent(response *client.Response, entityType string) error {
	if response == nil || len(response.Resource) == 0 {
		return outcome.Failf("Expected %s resource to be present.", entityType)
	}

	return nil
}

// ExpectBodyType fails when the decoded body declares another resource type.
func ExpectBodyType(response *client.Response, entityType string) error {
	if response.ResourceType() != entityType {
		return outcome.Failf("Expected resource to be of type %s.", entityType)
	}

	return nil
}

// ExpectBundle fails unless the body is a search-result bundle whose entries are all objects.
func ExpectBundle(response *client.Response) error {
	if response.ResourceType() != "Bundle" {
		found := response.ResourceType()
		if found == "" {
			found = "nothing"
		}

		return outcome.Failf("Expected FHIR Bundle but found: %s", found)
	}

	if entries, ok := response.Resource["entry"]; ok {
		list, isList := entries.([]any)
		if !isList {
			return outcome.Fail("Expected Bundle entry to be a list")
		}

		for _, entry := range list {
			if _, isObject := entry.(map[string]any); !isObject {
				return outcome.Fail("Expected every Bundle entry to be an object")
			}
		}
	}

	return nil
}

// ExpectID fails when the instance does not carry the requested id.
func ExpectID(instance map[string]any, id string) error {
	if got, _ := instance["id"].(string); got != id {
		return outcome.Failf("Expected resource to contain id: %s", id)
	}

	return nil
}

func status(response *client.Response) int {
	if response == nil {
		return 0
	}

	return response.Status
}

func excerpt(response *client.Response) string {
	if response == nil {
		return ""
	}

	return truncate(strings.TrimSpace(string(response.Body)), maxExcerpt)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "..."
}
