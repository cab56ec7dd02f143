// Input resolution for the Pack Applier (spec §4.7 precondition b):
// validates supplied inputs against a pack's InputSpec prompts (string,
// boolean, select, multiselect), and rejects template-injection or
// path-traversal attempts in string values before they ever reach the
// renderer or a filesystem path.
package apply

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/seanchatmangpt/gitvan/internal/gverr"
	"github.com/seanchatmangpt/gitvan/internal/pack"
)

// injectionMarkers are substrings that, if present in a raw string input,
// indicate an attempt to smuggle template directives through user input
// rather than through the pack's own templates.
var injectionMarkers = []string{"{{", "}}", "{%", "%}"}

// ResolveInputs validates and merges supplied against the pack's declared
// InputSpec prompts, applying declared defaults for anything omitted.
// Returns an error identifying the first failing input.
func ResolveInputs(specs []pack.InputSpec, supplied map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for _, spec := range specs {
		val, present := supplied[spec.Name]
		if !present {
			if spec.Default != nil {
				out[spec.Name] = spec.Default
				continue
			}
			if spec.Required {
				return nil, gverr.New(gverr.KindInputValidationFailed, "input %q is required", spec.Name)
			}
			continue
		}
		validated, err := validateInput(spec, val)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = validated
	}
	return out, nil
}

func validateInput(spec pack.InputSpec, val any) (any, error) {
	switch spec.Type {
	case "string":
		s, ok := val.(string)
		if !ok {
			return nil, gverr.New(gverr.KindInputValidationFailed, "input %q must be a string", spec.Name)
		}
		if err := checkStringSafety(spec.Name, s); err != nil {
			return nil, err
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, gverr.Wrap(gverr.KindInputValidationFailed, err, "input %q has invalid pattern", spec.Name)
			}
			if !re.MatchString(s) {
				return nil, gverr.New(gverr.KindInputValidationFailed, "input %q does not match pattern %s", spec.Name, spec.Pattern)
			}
		}
		return s, nil

	case "boolean":
		b, ok := val.(bool)
		if !ok {
			return nil, gverr.New(gverr.KindInputValidationFailed, "input %q must be a boolean", spec.Name)
		}
		return b, nil

	case "select":
		s, ok := val.(string)
		if !ok {
			return nil, gverr.New(gverr.KindInputValidationFailed, "input %q must be a string", spec.Name)
		}
		if !containsStr(spec.Options, s) {
			return nil, gverr.New(gverr.KindInputValidationFailed, "input %q: %q is not one of %v", spec.Name, s, spec.Options)
		}
		return s, nil

	case "multiselect":
		items, ok := val.([]any)
		if !ok {
			return nil, gverr.New(gverr.KindInputValidationFailed, "input %q must be a list", spec.Name)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, gverr.New(gverr.KindInputValidationFailed, "input %q: list items must be strings", spec.Name)
			}
			if !containsStr(spec.Options, s) {
				return nil, gverr.New(gverr.KindInputValidationFailed, "input %q: %q is not one of %v", spec.Name, s, spec.Options)
			}
			out = append(out, s)
		}
		return out, nil

	default:
		return nil, gverr.New(gverr.KindInputValidationFailed, "input %q has unknown type %q", spec.Name, spec.Type)
	}
}

// checkStringSafety rejects template-injection markers and path-traversal
// sequences in a raw string input.
func checkStringSafety(name, s string) error {
	for _, marker := range injectionMarkers {
		if strings.Contains(s, marker) {
			return gverr.New(gverr.KindTemplateInjection, "input %q contains a template directive marker %q", name, marker)
		}
	}
	if strings.Contains(s, "..") || strings.HasPrefix(s, "/") || strings.Contains(s, "\x00") {
		return gverr.New(gverr.KindPathTraversal, "input %q contains a path-traversal sequence", name)
	}
	return nil
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CheckRequires validates a pack's requires{} runtime constraints (spec
// §4.7 precondition a) against the provided environment snapshot, e.g.
// {"git": ">=2.30", "node": ">=18"}. Every required tool must be present,
// and a non-empty constraint is evaluated against the tool's version with
// the same semver range semantics as the resolver.
func CheckRequires(requires map[string]string, available map[string]string) error {
	for tool, constraint := range requires {
		version, ok := available[tool]
		if !ok {
			return gverr.New(gverr.KindInputValidationFailed, "required tool %q is not available", tool)
		}
		if constraint == "" {
			continue
		}
		if version == "" {
			return gverr.New(gverr.KindInputValidationFailed, "required tool %q has no detectable version to check against %q", tool, constraint)
		}
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return gverr.Wrap(gverr.KindInputValidationFailed, err, "required tool %q has invalid version constraint %q", tool, constraint)
		}
		v, err := semver.NewVersion(version)
		if err != nil || !c.Check(v) {
			return gverr.New(gverr.KindInputValidationFailed, "required tool %q version %q does not satisfy %q", tool, version, constraint)
		}
	}
	return nil
}
