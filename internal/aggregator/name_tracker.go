package aggregator

import "strings"

// Separator joins an upstream's name to the original capability name when
// building an exposed, proxy-wide identifier. It is reserved: an upstream
// name or capability name containing it would break the round trip, so
// config loading rejects upstream names that contain it.
const Separator = "_1mcp_"

// EncodeName builds the exposed, namespace-qualified identifier for a
// capability owned by upstream. The encoding is injective by construction:
// Separator cannot appear inside upstream (rejected at config load), so the
// first occurrence of Separator in an encoded name unambiguously splits it
// back into (upstream, name), no matter what either half contains.
func EncodeName(upstream, name string) string {
	return upstream + Separator + name
}

// DecodeName reverses EncodeName. It returns ok=false if exposed does not
// contain Separator at all, which means it was never produced by this
// proxy's aggregator.
func DecodeName(exposed string) (upstream, name string, ok bool) {
	idx := strings.Index(exposed, Separator)
	if idx < 0 {
		return "", "", false
	}
	return exposed[:idx], exposed[idx+len(Separator):], true
}

// EncodeResourceURI namespaces a resource URI the same way as tool and
// prompt names, except URIs that already carry a scheme (the common case
// for resources, e.g. "file://" or "s3://") are left untouched in their
// path and instead get an appended upstream marker — mangling a scheme-
// bearing URI's path would break clients that interpret the scheme.
func EncodeResourceURI(upstream, uri string) string {
	if strings.Contains(uri, "://") {
		sep := "?"
		if strings.Contains(uri, "?") {
			sep = "&"
		}
		return uri + sep + "_1mcp_upstream=" + upstream
	}
	return EncodeName(upstream, uri)
}

// DecodeResourceURI reverses EncodeResourceURI for both the plain-name and
// scheme-bearing forms.
func DecodeResourceURI(exposed string) (upstream, uri string, ok bool) {
	if idx := strings.Index(exposed, "?_1mcp_upstream="); idx >= 0 {
		return exposed[idx+len("?_1mcp_upstream="):], exposed[:idx], true
	}
	if idx := strings.Index(exposed, "&_1mcp_upstream="); idx >= 0 {
		upstream = exposed[idx+len("&_1mcp_upstream="):]
		return upstream, exposed[:idx], true
	}
	return DecodeName(exposed)
}

// ValidUpstreamName reports whether name is safe to use as a namespace
// component: it must not contain Separator, or encoding would not be
// reversible.
func ValidUpstreamName(name string) bool {
	return name != "" && !strings.Contains(name, Separator)
}
