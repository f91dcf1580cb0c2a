package trackmania

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	sonic "github.com/bytedance/sonic"
)

// ResolveDisplayNames maps account ids to display names in chunks. A failed
// chunk is logged and skipped, so the result may be partial.
func (c *Client) ResolveDisplayNames(ctx context.Context, accountIDs []string) map[string]string {
	ids := dedupeIDs(accountIDs)
	out := make(map[string]string, len(ids))

	for start := 0; start < len(ids); start += c.nameChunkSize {
		if ctx.Err() != nil {
			c.logger.WarnContext(ctx, "display name lookup interrupted", "resolved", len(out), "requested", len(ids))
			break
		}
		end := min(start+c.nameChunkSize, len(ids))
		chunk := ids[start:end]

		names, err := c.fetchNames(ctx, chunk)
		if err != nil {
			c.logger.WarnContext(ctx, "display name chunk failed, skipping",
				"chunk_start", start,
				"chunk_size", len(chunk),
				"error", err,
			)
			continue
		}
		for id, name := range names {
			out[id] = name
		}
	}
	return out
}

func (c *Client) fetchNames(ctx context.Context, ids []string) (map[string]string, error) {
	query := url.Values{}
	for _, id := range ids {
		query.Add("accountId[]", id)
	}
	fullURL := c.namesBaseURL + "/api/display-names?" + query.Encode()

	raw, err := c.doAuthorized(ctx, endpointDisplayNames, c.nameTokens, c.namingAuth, fullURL)
	if err != nil {
		return nil, err
	}

	// The endpoint answers with an object keyed by account id. An empty
	// result is sent as [].
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "[]" {
		return map[string]string{}, nil
	}
	var names map[string]string
	if err := sonic.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("decode display names: %w", err)
	}
	return names, nil
}

func dedupeIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
