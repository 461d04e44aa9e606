package router

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// DefaultPageSize bounds how many aggregated items a single paginated list
// response returns.
const DefaultPageSize = 50

// pageCursor is the decoded form of the opaque cursor string handed to
// clients. It names the upstream the next page should resume from and how
// many of that upstream's items have already been served.
type pageCursor struct {
	Upstream string `json:"upstream"`
	Offset   int    `json:"offset"`
}

func encodeCursor(c pageCursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (pageCursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return pageCursor{}, fmt.Errorf("malformed cursor encoding: %w", err)
	}
	var c pageCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return pageCursor{}, fmt.Errorf("malformed cursor payload: %w", err)
	}
	return c, nil
}

// paginate slices a namespace-qualified, upstream-name-ascending-ordered
// item list into one page starting at cursor. If the cursor names an
// upstream that is no longer Ready, that upstream's remaining items are
// silently skipped and iteration resumes at the next upstream in order, per
// the strict-decode pagination rule.
func paginate[T any](items []T, upstreamOf func(T) string, cursor string, pageSize int, ready func(string) bool) ([]T, string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	start := 0
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", invalidParams("%v", err)
		}
		if ready != nil && !ready(c.Upstream) {
			start = sort.Search(len(items), func(i int) bool { return upstreamOf(items[i]) > c.Upstream })
		} else {
			first := sort.Search(len(items), func(i int) bool { return upstreamOf(items[i]) >= c.Upstream })
			start = first + c.Offset
		}
	}
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}

	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]

	if end >= len(items) {
		return page, "", nil
	}

	nextUpstream := upstreamOf(items[end])
	firstOfNext := sort.Search(len(items), func(i int) bool { return upstreamOf(items[i]) >= nextUpstream })
	next := encodeCursor(pageCursor{Upstream: nextUpstream, Offset: end - firstOfNext})
	return page, next, nil
}
