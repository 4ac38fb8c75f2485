// Package version implements the lenient, rank-ordered version comparison
// spec.md §9 describes (semver first, pure-integer numeric comparison
// second, lexicographic numeric-aware third), plus the registry version
// normalization helpers used by the Artifact Server's public-registry
// lookup fallback (spec.md §4.4).
package version

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// tier identifies which comparison strategy a version string falls into.
type tier int

const (
	tierSemver tier = iota
	tierInteger
	tierLexical
)

func classify(v string) (tier, *semver.Version, int64) {
	// Pure integers are checked first: the semver parser would otherwise
	// accept "42" as 42.0.0.
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return tierInteger, nil, n
	}
	if sv, err := semver.NewVersion(v); err == nil {
		return tierSemver, sv, 0
	}
	return tierLexical, nil, 0
}

// numericChunk splits a string into alternating non-numeric/numeric runs so
// "1.2.10" sorts after "1.2.9" even when compared lexically.
var numericChunkRE = regexp.MustCompile(`\d+|\D+`)

func numericChunks(s string) []string {
	return numericChunkRE.FindAllString(s, -1)
}

// compareLexicalNumericAware compares two strings chunk-by-chunk, treating
// digit runs as numbers and everything else as plain string comparison.
func compareLexicalNumericAware(a, b string) int {
	ca, cb := numericChunks(a), numericChunks(b)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		na, aIsNum := parseUint(ca[i])
		nb, bIsNum := parseUint(cb[i])
		if aIsNum && bIsNum {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if ca[i] != cb[i] {
			return strings.Compare(ca[i], cb[i])
		}
	}
	return len(ca) - len(cb)
}

func parseUint(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b, using the three-tier lenient ordering: semver-parseable versions
// compare first and rank above non-semver versions; within a tier the
// appropriate comparison applies. Display ordering only — the DB is
// indifferent to this ordering.
func Compare(a, b string) int {
	ta, sva, ia := classify(a)
	tb, svb, ib := classify(b)

	if ta != tb {
		// Lower tier value ranks higher (semver > integer > lexical).
		if ta < tb {
			return 1
		}
		return -1
	}

	switch ta {
	case tierSemver:
		return sva.Compare(svb)
	case tierInteger:
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		default:
			return 0
		}
	default:
		return compareLexicalNumericAware(a, b)
	}
}

// Rank sorts versions descending (newest/highest-ranked first) using
// Compare, and is used both by the Sync Engine (ordering synthesized
// versions) and the Index Assembler (stable ordering of the enumerated
// form).
func Rank(versions []string) []string {
	out := make([]string, len(versions))
	copy(out, versions)
	// Simple insertion sort: version lists per package are small and this
	// keeps the comparator's tier semantics easy to audit.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && Compare(out[j-1], out[j]) < 0; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

var trailingZeroSuffix = regexp.MustCompile(`\.0$`)

// NormalizeCandidates returns the requested version plus the alternate
// forms the public-registry lookup should also try, per spec.md §4.4:
// "X.Y.Z.0" is also searched as "X.Y.Z"; "N.9999999.9999999.9999999-dev"
// is searched as "N.x-dev"; "…-patchN" is searched as "…-pN".
func NormalizeCandidates(requested string) []string {
	candidates := []string{requested}

	if trailingZeroSuffix.MatchString(requested) {
		candidates = append(candidates, trailingZeroSuffix.ReplaceAllString(requested, ""))
	}

	if m := devSentinelRE.FindStringSubmatch(requested); m != nil {
		candidates = append(candidates, m[1]+".x-dev")
	}

	if m := patchSuffixRE.FindStringSubmatch(requested); m != nil {
		candidates = append(candidates, m[1]+"-p"+m[2])
	}

	return candidates
}

var (
	devSentinelRE = regexp.MustCompile(`^(\d+)\.9999999\.9999999\.9999999-dev$`)
	patchSuffixRE = regexp.MustCompile(`^(.+)-patch(\d+)$`)
)
