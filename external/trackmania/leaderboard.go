package trackmania

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/tm-alerts/internal/domain/leaderboard"
	"github.com/riskibarqy/tm-alerts/internal/usecase"
)

type topResponse struct {
	Tops []struct {
		ZoneName string `json:"zoneName"`
		Top      []struct {
			AccountID string `json:"accountId"`
			ZoneName  string `json:"zoneName"`
			Position  int    `json:"position"`
			Score     int64  `json:"score"`
			Timestamp int64  `json:"timestamp"`
		} `json:"top"`
	} `json:"tops"`
}

// GetLeaderboard returns the requested slice of a map's leaderboard in rank
// order. Length 0 drains the leaderboard page by page until a short page or
// the page cap.
func (c *Client) GetLeaderboard(ctx context.Context, q leaderboard.Query) ([]leaderboard.Entry, error) {
	q.MapUID = strings.TrimSpace(q.MapUID)
	if q.MapUID == "" {
		return nil, fmt.Errorf("%w: map uid is required", usecase.ErrInvalidInput)
	}
	if q.Offset < 0 || q.Length < 0 {
		return nil, fmt.Errorf("%w: offset and length must not be negative", usecase.ErrInvalidInput)
	}
	group := firstNonEmpty(q.Group, c.groupUID)

	var out []leaderboard.Entry
	offset := q.Offset
	remaining := q.Length
	for page := 0; ; page++ {
		if page >= c.maxPages {
			c.logger.WarnContext(ctx, "leaderboard page cap reached, returning partial board",
				"map_uid", q.MapUID,
				"pages", c.maxPages,
				"entries", len(out),
			)
			break
		}

		length := c.pageSize
		if q.Length > 0 {
			length = min(remaining, c.pageSize)
		}
		entries, err := c.fetchPage(ctx, group, q.MapUID, offset, length)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
		offset += length
		remaining -= len(entries)

		if len(entries) < length {
			break
		}
		if q.Length > 0 && remaining <= 0 {
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, group, mapUID string, offset, length int) ([]leaderboard.Entry, error) {
	key := fmt.Sprintf("lb:%s:%s:%d:%d", group, mapUID, offset, length)
	raw, hit, err := c.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]byte, error) {
		query := url.Values{}
		query.Set("length", strconv.Itoa(length))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("onlyWorld", "true")
		fullURL := fmt.Sprintf("%s/token/leaderboard/group/%s/map/%s/top?%s",
			c.liveBaseURL,
			url.PathEscape(group),
			url.PathEscape(mapUID),
			query.Encode(),
		)
		return c.doAuthorized(ctx, endpointLeaderboardTop, c.liveTokens, c.liveAuth, fullURL)
	})
	if c.cache != nil && c.metrics != nil {
		c.metrics.CacheLookup(hit)
	}
	if err != nil {
		return nil, err
	}

	var payload topResponse
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		c.cache.Delete(ctx, key)
		return nil, fmt.Errorf("%w: %w: decode leaderboard: %v", usecase.ErrDependencyUnavailable, errLeaderboardTransient, err)
	}

	// onlyWorld=true yields a single zone.
	if len(payload.Tops) == 0 {
		return nil, nil
	}
	zone := payload.Tops[0]
	entries := make([]leaderboard.Entry, 0, len(zone.Top))
	for _, item := range zone.Top {
		if strings.TrimSpace(item.AccountID) == "" {
			continue
		}
		entry := leaderboard.Entry{
			AccountID: item.AccountID,
			Position:  item.Position,
			Score:     item.Score,
			Zone:      firstNonEmpty(item.ZoneName, zone.ZoneName),
		}
		if item.Timestamp > 0 {
			entry.Timestamp = time.Unix(item.Timestamp, 0).UTC()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetTopN fetches the top n of each map. The API has no multi-map variant so
// maps are fetched one by one; a failed map carries its error and never
// counts as an empty board. Auth failure and cancellation stop the batch.
func (c *Client) GetTopN(ctx context.Context, mapUIDs []string, group string, n int) map[string]leaderboard.TopN {
	out := make(map[string]leaderboard.TopN, len(mapUIDs))
	var stop error
	for _, mapUID := range mapUIDs {
		if _, seen := out[mapUID]; seen {
			continue
		}
		if stop != nil {
			out[mapUID] = leaderboard.TopN{Err: stop}
			continue
		}
		if err := ctx.Err(); err != nil {
			stop = err
			out[mapUID] = leaderboard.TopN{Err: err}
			continue
		}

		entries, err := c.GetLeaderboard(ctx, leaderboard.Query{MapUID: mapUID, Group: group, Length: n})
		if err != nil {
			c.logger.WarnContext(ctx, "top window fetch failed", "map_uid", mapUID, "error", err)
			if stderrors.Is(err, usecase.ErrUnauthorized) || ctx.Err() != nil {
				stop = err
			}
			out[mapUID] = leaderboard.TopN{Err: err}
			continue
		}
		out[mapUID] = leaderboard.TopN{Entries: entries}
	}
	return out
}
