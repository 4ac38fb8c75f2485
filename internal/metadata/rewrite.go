package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

// proxyDistURL builds the unified "/dist/m/{name}/{version}.zip" route every
// dist.url is rewritten to before a response leaves this system (spec.md
// §4.3 step 4).
func proxyDistURL(name, version string) string {
	return fmt.Sprintf("/dist/m/%s/%s.zip", name, version)
}

// rewriteDist overwrites entry["dist"] with a proxy-pointing object, keeping
// upstream's reference if present and otherwise synthesizing one from
// name+version. The dist type defaults to "zip" when upstream omitted it.
func rewriteDist(entry map[string]any, name, version string) {
	distType := "zip"
	reference := ""
	if existing, ok := entry["dist"].(map[string]any); ok {
		if t, ok := existing["type"].(string); ok && t != "" {
			distType = t
		}
		if r, ok := existing["reference"].(string); ok {
			reference = r
		}
	}
	if reference == "" {
		reference = strings.ReplaceAll(name, "/", "-") + "-" + version
	}

	entry["dist"] = map[string]any{
		"type":      distType,
		"url":       proxyDistURL(name, version),
		"reference": reference,
	}
}

var (
	unifiedDistRE = regexp.MustCompile(`^/dist/m/`)
	repoDistRE    = regexp.MustCompile(`^/dist/[^/]+/(.+)$`)
)

// normalizeIndexDistURL converts a stored "/dist/<repo>/<name>/<version>.zip"
// path to the unified "/dist/m/<name>/<version>.zip" form used by the Index
// Assembler (spec.md §4.3 "Index assembly"). Already-unified URLs and
// anything not matching the expected shape pass through unchanged.
func normalizeIndexDistURL(url string) string {
	if unifiedDistRE.MatchString(url) {
		return url
	}
	if m := repoDistRE.FindStringSubmatch(url); m != nil {
		return "/dist/m/" + m[1]
	}
	return url
}
