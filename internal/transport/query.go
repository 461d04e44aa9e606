package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/giantswarm/1mcp/pkg/tagfilter"
)

// sessionParams is the scope/filter configuration carried by an inbound
// HTTP connection's query string, resolved once when the session is
// created.
type sessionParams struct {
	FilterExpr       string
	EnablePagination bool
	PresetName       string
}

// parseSessionParams reads tags/tag-filter/pagination/preset from the
// request's query string. Sending both tags and tag-filter is rejected, per
// spec: they are mutually exclusive ways of expressing the same thing, and
// silently picking one would hide a client mistake.
func parseSessionParams(r *http.Request) (sessionParams, error) {
	q := r.URL.Query()

	tags := strings.TrimSpace(q.Get("tags"))
	filterExpr := strings.TrimSpace(q.Get("tag-filter"))
	if tags != "" && filterExpr != "" {
		return sessionParams{}, fmt.Errorf("tags and tag-filter are mutually exclusive")
	}

	if tags != "" {
		// The deprecated OR-list form is translated into the equivalent
		// tag-filter expression so the rest of the pipeline only ever deals
		// with one representation.
		parts := strings.Split(tags, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		filterExpr = strings.Join(parts, ",")
	}

	if filterExpr != "" {
		if _, err := tagfilter.Parse(filterExpr); err != nil {
			return sessionParams{}, err
		}
	}

	enablePagination := false
	if v := strings.TrimSpace(q.Get("pagination")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return sessionParams{}, fmt.Errorf("invalid pagination parameter %q", v)
		}
		enablePagination = parsed
	}

	return sessionParams{
		FilterExpr:       filterExpr,
		EnablePagination: enablePagination,
		PresetName:       strings.TrimSpace(q.Get("preset")),
	}, nil
}
