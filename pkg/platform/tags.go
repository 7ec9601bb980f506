package platform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/host"
)

// Tag keys written into artifact manifests.
const (
	TagProviderName   = "ci.provider.name"
	TagPipelineID     = "ci.pipeline.id"
	TagPipelineName   = "ci.pipeline.name"
	TagPipelineNumber = "ci.pipeline.number"
	TagPipelineURL    = "ci.pipeline.url"
	TagJobName        = "ci.job.name"
	TagJobURL         = "ci.job.url"
	TagStageName      = "ci.stage.name"
	TagWorkspacePath  = "ci.workspace_path"
	TagBranch         = "git.branch"
	TagTag            = "git.tag"
	TagCommitSHA      = "git.commit.sha"
	TagRepositoryURL  = "git.repository_url"

	TagOSArchitecture = "os.architecture"
	TagOSPlatform     = "os.platform"
	TagOSVersion      = "os.version"
	TagRuntimeName    = "runtime.name"
	TagRuntimeVersion = "runtime.version"
)

// Tags maps tag keys to values. Empty values are dropped by Extract.
type Tags map[string]string

var credentialsInURL = regexp.MustCompile(`(https?://)[^/]*@`)

// Extract returns the provider tags for env, normalised: credentials are
// removed from the repository URL, ref prefixes are stripped and a tag ref
// is reported under git.tag instead of git.branch.
func Extract(env Env) Tags {
	tags := Tags{}
	for _, d := range detectors {
		if d.match(env.Get(d.varName)) {
			tags = d.extract(env)
			break
		}
	}

	if branch := tags[TagBranch]; isTagRef(branch) {
		if tags[TagTag] == "" {
			tags[TagTag] = normalizeRef(branch)
		} else {
			tags[TagTag] = normalizeRef(tags[TagTag])
		}
		delete(tags, TagBranch)
	} else {
		tags[TagBranch] = normalizeRef(branch)
		tags[TagTag] = normalizeRef(tags[TagTag])
	}

	tags[TagRepositoryURL] = FilterSensitiveInfo(tags[TagRepositoryURL])

	if ws := tags[TagWorkspacePath]; strings.HasPrefix(ws, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			tags[TagWorkspacePath] = filepath.Join(home, strings.TrimPrefix(ws, "~"))
		}
	}

	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	return tags
}

// RuntimeMetadata returns OS and runtime facets of the current host.
func RuntimeMetadata(ctx context.Context) Tags {
	tags := Tags{
		TagOSArchitecture: runtime.GOARCH,
		TagOSPlatform:     runtime.GOOS,
		TagRuntimeName:    "go",
		TagRuntimeVersion: runtime.Version(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		if info.KernelArch != "" {
			tags[TagOSArchitecture] = info.KernelArch
		}
		if info.OS != "" {
			tags[TagOSPlatform] = info.OS
		}
		tags[TagOSVersion] = info.KernelVersion
	}
	return tags
}

// FilterSensitiveInfo removes userinfo from http(s) URLs.
func FilterSensitiveInfo(url string) string {
	return credentialsInURL.ReplaceAllString(url, "$1")
}

func isTagRef(ref string) bool {
	return strings.Contains(ref, "tags/")
}

func normalizeRef(ref string) string {
	for _, prefix := range []string{"refs/heads/", "refs/", "origin/", "tags/"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	return ref
}

func extractGitHub(env Env) Tags {
	server, repo, runID := env.Get("GITHUB_SERVER_URL"), env.Get("GITHUB_REPOSITORY"), env.Get("GITHUB_RUN_ID")
	pipelineURL := fmt.Sprintf("%s/%s/actions/runs/%s", server, repo, runID)
	if attempt := env.Get("GITHUB_RUN_ATTEMPT"); attempt != "" {
		pipelineURL = fmt.Sprintf("%s/attempts/%s", pipelineURL, attempt)
	}
	branch := env.Get("GITHUB_HEAD_REF")
	if branch == "" {
		branch = env.Get("GITHUB_REF")
	}
	return Tags{
		TagBranch:         branch,
		TagCommitSHA:      env.Get("GITHUB_SHA"),
		TagRepositoryURL:  fmt.Sprintf("%s/%s.git", server, repo),
		TagJobURL:         fmt.Sprintf("%s/%s/commit/%s/checks", server, repo, env.Get("GITHUB_SHA")),
		TagPipelineID:     runID,
		TagPipelineName:   env.Get("GITHUB_WORKFLOW"),
		TagPipelineNumber: env.Get("GITHUB_RUN_NUMBER"),
		TagPipelineURL:    pipelineURL,
		TagJobName:        env.Get("GITHUB_JOB"),
		TagProviderName:   "github",
		TagWorkspacePath:  env.Get("GITHUB_WORKSPACE"),
	}
}

func extractGitLab(env Env) Tags {
	return Tags{
		TagBranch:         env.Get("CI_COMMIT_REF_NAME"),
		TagCommitSHA:      env.Get("CI_COMMIT_SHA"),
		TagRepositoryURL:  env.Get("CI_REPOSITORY_URL"),
		TagTag:            env.Get("CI_COMMIT_TAG"),
		TagStageName:      env.Get("CI_JOB_STAGE"),
		TagJobName:        env.Get("CI_JOB_NAME"),
		TagJobURL:         env.Get("CI_JOB_URL"),
		TagPipelineID:     env.Get("CI_PIPELINE_ID"),
		TagPipelineName:   env.Get("CI_PROJECT_PATH"),
		TagPipelineNumber: env.Get("CI_PIPELINE_IID"),
		TagPipelineURL:    strings.Replace(env.Get("CI_PIPELINE_URL"), "/-/pipelines/", "/pipelines/", 1),
		TagProviderName:   "gitlab",
		TagWorkspacePath:  env.Get("CI_PROJECT_DIR"),
	}
}

func extractJenkins(env Env) Tags {
	branch := env.Get("GIT_BRANCH")
	name := env.Get("JOB_NAME")
	if name != "" && branch != "" {
		name = strings.ReplaceAll(name, "/"+normalizeRef(branch), "")
	}
	if name != "" {
		parts := make([]string, 0)
		for _, part := range strings.Split(name, "/") {
			if part != "" && !strings.Contains(part, "=") {
				parts = append(parts, part)
			}
		}
		name = strings.Join(parts, "/")
	}
	repo := env.Get("GIT_URL")
	if repo == "" {
		repo = env.Get("GIT_URL_1")
	}
	return Tags{
		TagBranch:         branch,
		TagCommitSHA:      env.Get("GIT_COMMIT"),
		TagRepositoryURL:  repo,
		TagPipelineID:     env.Get("BUILD_TAG"),
		TagPipelineName:   name,
		TagPipelineNumber: env.Get("BUILD_NUMBER"),
		TagPipelineURL:    env.Get("BUILD_URL"),
		TagProviderName:   "jenkins",
		TagWorkspacePath:  env.Get("WORKSPACE"),
	}
}

func extractCircleCI(env Env) Tags {
	return Tags{
		TagBranch:         env.Get("CIRCLE_BRANCH"),
		TagCommitSHA:      env.Get("CIRCLE_SHA1"),
		TagRepositoryURL:  env.Get("CIRCLE_REPOSITORY_URL"),
		TagTag:            env.Get("CIRCLE_TAG"),
		TagPipelineID:     env.Get("CIRCLE_WORKFLOW_ID"),
		TagPipelineName:   env.Get("CIRCLE_PROJECT_REPONAME"),
		TagPipelineNumber: env.Get("CIRCLE_BUILD_NUM"),
		TagPipelineURL:    "https://app.circleci.com/pipelines/workflows/" + env.Get("CIRCLE_WORKFLOW_ID"),
		TagJobURL:         env.Get("CIRCLE_BUILD_URL"),
		TagJobName:        env.Get("CIRCLE_JOB"),
		TagProviderName:   "circleci",
		TagWorkspacePath:  env.Get("CIRCLE_WORKING_DIRECTORY"),
	}
}

func extractBuildkite(env Env) Tags {
	return Tags{
		TagBranch:         env.Get("BUILDKITE_BRANCH"),
		TagCommitSHA:      env.Get("BUILDKITE_COMMIT"),
		TagRepositoryURL:  env.Get("BUILDKITE_REPO"),
		TagTag:            env.Get("BUILDKITE_TAG"),
		TagPipelineID:     env.Get("BUILDKITE_BUILD_ID"),
		TagPipelineName:   env.Get("BUILDKITE_PIPELINE_SLUG"),
		TagPipelineNumber: env.Get("BUILDKITE_BUILD_NUMBER"),
		TagPipelineURL:    env.Get("BUILDKITE_BUILD_URL"),
		TagJobURL:         env.Get("BUILDKITE_BUILD_URL") + "#" + env.Get("BUILDKITE_JOB_ID"),
		TagProviderName:   "buildkite",
		TagWorkspacePath:  env.Get("BUILDKITE_BUILD_CHECKOUT_PATH"),
	}
}

func extractAzure(env Env) Tags {
	server, project, buildID := env.Get("SYSTEM_TEAMFOUNDATIONSERVERURI"), env.Get("SYSTEM_TEAMPROJECTID"), env.Get("BUILD_BUILDID")
	pipelineURL := ""
	if server != "" && project != "" && buildID != "" {
		pipelineURL = fmt.Sprintf("%s%s/_build/results?buildId=%s", server, project, buildID)
	}
	branch := env.Get("SYSTEM_PULLREQUEST_SOURCEBRANCH")
	if branch == "" {
		branch = env.Get("BUILD_SOURCEBRANCH")
	}
	return Tags{
		TagBranch:        branch,
		TagCommitSHA:     env.Get("BUILD_SOURCEVERSION"),
		TagRepositoryURL: env.Get("BUILD_REPOSITORY_URI"),
		TagPipelineID:    buildID,
		TagPipelineName:  env.Get("BUILD_DEFINITIONNAME"),
		TagPipelineURL:   pipelineURL,
		TagJobName:       env.Get("SYSTEM_JOBDISPLAYNAME"),
		TagStageName:     env.Get("SYSTEM_STAGEDISPLAYNAME"),
		TagProviderName:  "azurepipelines",
		TagWorkspacePath: env.Get("BUILD_SOURCESDIRECTORY"),
	}
}

func extractBitbucket(env Env) Tags {
	repo := env.Get("BITBUCKET_REPO_FULL_NAME")
	number := env.Get("BITBUCKET_BUILD_NUMBER")
	return Tags{
		TagBranch:         env.Get("BITBUCKET_BRANCH"),
		TagCommitSHA:      env.Get("BITBUCKET_COMMIT"),
		TagRepositoryURL:  env.Get("BITBUCKET_GIT_SSH_ORIGIN"),
		TagTag:            env.Get("BITBUCKET_TAG"),
		TagPipelineID:     strings.Trim(env.Get("BITBUCKET_PIPELINE_UUID"), "{}"),
		TagPipelineName:   env.Get("BITBUCKET_REPO_SLUG"),
		TagPipelineNumber: number,
		TagPipelineURL:    fmt.Sprintf("https://bitbucket.org/%s/addon/pipelines/home#!/results/%s", repo, number),
		TagProviderName:   "bitbucket",
		TagWorkspacePath:  env.Get("BITBUCKET_CLONE_DIR"),
	}
}

func extractTravis(env Env) Tags {
	branch := env.Get("TRAVIS_PULL_REQUEST_BRANCH")
	if branch == "" {
		branch = env.Get("TRAVIS_BRANCH")
	}
	return Tags{
		TagBranch:         branch,
		TagCommitSHA:      env.Get("TRAVIS_COMMIT"),
		TagRepositoryURL:  fmt.Sprintf("https://github.com/%s.git", env.Get("TRAVIS_REPO_SLUG")),
		TagTag:            env.Get("TRAVIS_TAG"),
		TagJobURL:         env.Get("TRAVIS_JOB_WEB_URL"),
		TagPipelineID:     env.Get("TRAVIS_BUILD_ID"),
		TagPipelineName:   env.Get("TRAVIS_REPO_SLUG"),
		TagPipelineNumber: env.Get("TRAVIS_BUILD_NUMBER"),
		TagPipelineURL:    env.Get("TRAVIS_BUILD_WEB_URL"),
		TagProviderName:   "travisci",
		TagWorkspacePath:  env.Get("TRAVIS_BUILD_DIR"),
	}
}
