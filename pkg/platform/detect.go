// Package platform detects the CI provider a run executes on and extracts
// provider metadata for artifact manifests.
package platform

import (
	"fmt"
	"os"
	"strings"
)

// Env is a snapshot of environment variables.
type Env map[string]string

// FromOS returns the current process environment.
func FromOS() Env {
	env := make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Get returns the value for key, or "".
func (e Env) Get(key string) string {
	return e[key]
}

// detector pairs a provider name with the variable that identifies it.
type detector struct {
	name    string
	varName string
	match   func(string) bool
	extract func(Env) Tags
}

func isTrue(v string) bool   { return strings.EqualFold(v, "true") }
func nonEmpty(v string) bool { return v != "" }

// detectors is ordered; the first match wins.
var detectors = []detector{
	{"github", "GITHUB_ACTIONS", isTrue, extractGitHub},
	{"gitlab", "GITLAB_CI", isTrue, extractGitLab},
	{"jenkins", "JENKINS_URL", nonEmpty, extractJenkins},
	{"circleci", "CIRCLECI", isTrue, extractCircleCI},
	{"buildkite", "BUILDKITE", isTrue, extractBuildkite},
	{"azure", "TF_BUILD", isTrue, extractAzure},
	{"bitbucket", "BITBUCKET_COMMIT", nonEmpty, extractBitbucket},
	{"travis", "TRAVIS", isTrue, extractTravis},
}

// Info contains information about the detected platform
type Info struct {
	Name     string
	IsCI     bool
	VarName  string // Name of the environment variable that was detected
	VarValue string // Value of the environment variable
}

// DetectPlatform returns the provider name, or "local" outside CI.
func DetectPlatform(env Env) string {
	return DetectInfo(env).Name
}

// DetectInfo returns detailed platform detection information
func DetectInfo(env Env) *Info {
	for _, d := range detectors {
		if v := env.Get(d.varName); d.match(v) {
			return &Info{Name: d.name, IsCI: true, VarName: d.varName, VarValue: v}
		}
	}
	return &Info{Name: "local"}
}

// IsRunningInCI returns true if running in any known CI environment
func IsRunningInCI(env Env) bool {
	return DetectInfo(env).IsCI
}

// GetSupportedPlatforms returns list of supported platform names
func GetSupportedPlatforms() []string {
	names := make([]string, 0, len(detectors)+1)
	for _, d := range detectors {
		names = append(names, d.name)
	}
	return append(names, "local")
}

// ValidatePlatform checks if a platform name is supported
func ValidatePlatform(platform string) error {
	supported := GetSupportedPlatforms()
	for _, name := range supported {
		if platform == name {
			return nil
		}
	}
	return fmt.Errorf("unsupported platform: %s (supported: %v)", platform, supported)
}
