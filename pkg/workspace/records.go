package workspace

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
)

// Record is a remote resource (cluster, job, run, workspace object) as returned
// by the workspace API. Records are kept untyped so callers can project
// arbitrary attributes.
type Record map[string]any

// Decode copies the record into the typed value pointed to by out, matching
// fields by their `mapstructure` tags. Numeric ids decoded as json.Number are
// converted to the target integer type.
func (r Record) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("error creating record decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return fmt.Errorf("error decoding record: %w", err)
	}
	return nil
}

// User is the identity behind a workspace token.
type User struct {
	ID          string `mapstructure:"id"`
	UserName    string `mapstructure:"userName"`
	DisplayName string `mapstructure:"displayName"`
}

// CurrentUser returns the identity of the token owner. It is the cheapest
// authenticated call the workspace API offers and is used to verify
// credentials.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var rec Record
	if err := c.doRequest(
		ctx, http.MethodGet, "/api/2.0/preview/scim/v2/Me", nil, nil, &rec,
	); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	var u User
	if err := rec.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Verify checks that the client's host is reachable and its token is accepted.
func (c *Client) Verify(ctx context.Context) (*User, error) {
	u, err := c.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("error verifying workspace credentials: %w", err)
	}
	return u, nil
}

// recordsFromField extracts a list of records stored under key in a response
// envelope, e.g. {"clusters": [...]}. A missing key yields an empty list.
func recordsFromField(resp Record, key string) ([]Record, error) {
	raw, ok := resp[key]
	if !ok || raw == nil {
		return []Record{}, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("invalid type: %q is not a list, type: %T", key, raw)
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf(
				"invalid type: %q element is not an object, type: %T", key, item)
		}
		records = append(records, Record(m))
	}
	return records, nil
}
