package profiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/buildscan/pkg/types"
)

const redactedValue = "***"

// CommandLine reconstructs the invocation of a build from its request:
//
//	mvn [-s <settings>] [-T <n>] [-P<profile>...] [-D<key>=<value>...] <goals...>
//
// User properties are emitted sorted by key. Values of properties whose key
// matches one of redact are replaced with "***".
func CommandLine(req *types.ExecutionRequest, redact []glob.Glob) string {
	out := []string{"mvn"}
	if req == nil {
		return out[0]
	}

	if req.UserSettingsFile != "" {
		out = append(out, "-s "+req.UserSettingsFile)
	}
	if req.DegreeOfConcurrency > 0 {
		out = append(out, fmt.Sprintf("-T %d", req.DegreeOfConcurrency))
	}

	for _, profile := range req.ActiveProfiles {
		out = append(out, "-P"+profile)
	}

	keys := make([]string, 0, len(req.UserProperties))
	for key := range req.UserProperties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := req.UserProperties[key]
		if matchesAny(redact, key) {
			value = redactedValue
		}
		out = append(out, "-D"+key+"="+value)
	}

	out = append(out, req.Goals...)
	return strings.Join(out, " ")
}

// CompilePatterns compiles property redaction globs.
func CompilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern '%s': %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// matchesAny reports whether key matches one of the patterns, ignoring case.
func matchesAny(patterns []glob.Glob, key string) bool {
	key = strings.ToLower(key)
	for _, g := range patterns {
		if g.Match(key) {
			return true
		}
	}
	return false
}
