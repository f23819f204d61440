package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/DuckOriDuck/whaleray/pkg/build"
	"github.com/DuckOriDuck/whaleray/pkg/envvault"
	"github.com/DuckOriDuck/whaleray/pkg/githubapp"
)

// springBootMarkers are the build.gradle substrings that identify a Spring
// Boot project (spec §4.4 step 2).
var springBootMarkers = []string{
	"org.springframework.boot",
	"spring-boot-starter",
	"@SpringBootApplication",
}

// dockerfileSearchOrder is the Dockerfile locator priority list (spec §4.4
// step 3), relative to the chosen gradle project directory ("{dir}") or the
// repository root.
var dockerfileSearchOrder = []string{
	"{dir}/Dockerfile",
	"{dir}/docker/Dockerfile",
	"{dir}/src/main/docker/Dockerfile",
	"{dir}/.docker/Dockerfile",
	"Dockerfile",
	"docker/Dockerfile",
	"deploy/Dockerfile",
}

// Inspector reacts to new INSPECTING deployments (spec §4.4).
type Inspector struct {
	store       *Store
	vault       *envvault.Vault
	minter      *githubapp.TokenMinter
	trigger     *build.Trigger
	ecrRegistry string
	logger      *slog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(store *Store, vault *envvault.Vault, minter *githubapp.TokenMinter, trigger *build.Trigger, ecrRegistry string, logger *slog.Logger) *Inspector {
	return &Inspector{store: store, vault: vault, minter: minter, trigger: trigger, ecrRegistry: ecrRegistry, logger: logger}
}

// Process runs the full Inspector pipeline stage for a single deployment.
// Any exception transitions the row to INSPECTING_FAIL with errorMessage;
// Inspector re-raises transient errors so the durable-log poller retries
// (spec §7: "Inspector re-raises because the durable log supports retry").
func (in *Inspector) Process(ctx context.Context, d Deployment) error {
	envPath, err := in.vault.Resolve(ctx, d.UserID, d.ServiceID, d.IsReset, d.EnvFileContent)
	if err != nil {
		return in.fail(ctx, d, err)
	}

	owner, name, _ := splitRepositoryFullName(d.RepositoryFullName)

	token, _, err := in.minter.Mint(ctx, d.InstallationID)
	if err != nil {
		return in.fail(ctx, d, fmt.Errorf("minting installation token: %w", err))
	}

	client := githubapp.NewClient(token)

	tree, err := client.Tree(ctx, owner, name, d.Branch)
	if err != nil {
		// ExternalTransient: refresh heartbeat and let the poller retry.
		_ = in.store.RefreshHeartbeat(ctx, d.DeploymentID)
		return fmt.Errorf("fetching repository tree: %w", err)
	}

	framework, gradleDir, err := in.detectFramework(ctx, client, owner, name, d.Branch, tree)
	if err != nil {
		return in.fail(ctx, d, err)
	}

	dockerfilePath, buildContext := locateDockerfile(tree, gradleDir)

	port := DefaultPort
	if strings.HasPrefix(framework, "spring-boot") {
		port = SpringBootPort
	}

	ecrURI := fmt.Sprintf("%s:%s", in.ecrRegistry, d.DeploymentID)

	result, err := in.trigger.Start(ctx, build.Params{
		DeploymentID:     d.DeploymentID,
		ECRImageURI:      ecrURI,
		DotenvSSMPath:    envPath,
		SourceDir:        gradleDir,
		BuildContext:     buildContext,
		DockerfilePath:   dockerfilePath,
		HasGradleWrapper: hasGradleWrapper(tree, gradleDir),
	})
	if err != nil {
		_ = in.store.RefreshHeartbeat(ctx, d.DeploymentID)
		return fmt.Errorf("starting build: %w", err)
	}

	codebuildProject := in.trigger.ProjectName()

	return in.store.UpdateStatus(ctx, d.DeploymentID, StatusBuilding, UpdateFields{
		Framework:          &framework,
		CodebuildProject:   &codebuildProject,
		CodebuildLogGroup:  &result.LogGroup,
		CodebuildLogStream: &result.LogStream,
		BuildID:            &result.BuildID,
		Port:               &port,
	})
}

func (in *Inspector) fail(ctx context.Context, d Deployment, cause error) error {
	msg := cause.Error()
	if updateErr := in.store.UpdateStatus(ctx, d.DeploymentID, StatusInspectingFail, UpdateFields{ErrorMessage: &msg}); updateErr != nil {
		in.logger.Error("failed to record INSPECTING_FAIL", "deployment_id", d.DeploymentID, "error", updateErr)
	}
	return nil // PipelineAbort: no further stages execute, no retry.
}

// detectFramework implements spec §4.4 step 2. Only spring-boot maps to a
// builder; any other framework present raises INSPECTING_FAIL.
func (in *Inspector) detectFramework(ctx context.Context, client *githubapp.Client, owner, name, ref string, tree []githubapp.TreeEntry) (framework, gradleDir string, err error) {
	var gradleDirs []string
	for _, e := range tree {
		if e.Type == "blob" && path.Base(e.Path) == "build.gradle" {
			gradleDirs = append(gradleDirs, path.Dir(e.Path))
		}
	}

	if len(gradleDirs) == 0 {
		if other := detectOtherFramework(tree); other != "" {
			return "", "", fmt.Errorf("unsupported framework detected: %s", other)
		}
		return "", "", fmt.Errorf("no supported framework detected (build.gradle not found)")
	}

	sort.Strings(gradleDirs)

	for _, dir := range gradleDirs {
		gradlePath := "build.gradle"
		if dir != "." {
			gradlePath = path.Join(dir, "build.gradle")
		}

		content, err := client.FileContent(ctx, owner, name, gradlePath, ref)
		if err != nil {
			continue
		}

		if containsSpringBootMarker(content) {
			if dir == "." {
				return "spring-boot", dir, nil
			}
			return fmt.Sprintf("spring-boot:%s", dir), dir, nil
		}
	}

	return "", "", fmt.Errorf("build.gradle present but no Spring Boot markers found")
}

func containsSpringBootMarker(content string) bool {
	for _, marker := range springBootMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// detectOtherFramework lists (but never builds) nodejs/nextjs/dotnet
// projects, per spec §4.4 step 2.
func detectOtherFramework(tree []githubapp.TreeEntry) string {
	for _, e := range tree {
		if e.Type != "blob" {
			continue
		}
		switch path.Base(e.Path) {
		case "next.config.js":
			return "nextjs"
		case "package.json":
			return "nodejs"
		}
		if strings.HasSuffix(e.Path, ".csproj") {
			return "dotnet"
		}
	}
	return ""
}

// locateDockerfile implements spec §4.4 step 3's priority search. If none is
// found, the build context defaults to the gradle directory and the
// builder is expected to generate a Dockerfile.
func locateDockerfile(tree []githubapp.TreeEntry, gradleDir string) (dockerfilePath, buildContext string) {
	present := make(map[string]bool, len(tree))
	for _, e := range tree {
		if e.Type == "blob" {
			present[e.Path] = true
		}
	}

	for _, candidate := range dockerfileSearchOrder {
		p := strings.ReplaceAll(candidate, "{dir}", gradleDir)
		p = path.Clean(p)
		if present[p] {
			return p, path.Dir(p)
		}
	}

	return "", gradleDir
}

func hasGradleWrapper(tree []githubapp.TreeEntry, gradleDir string) bool {
	wrapper := "gradlew"
	if gradleDir != "." {
		wrapper = path.Join(gradleDir, "gradlew")
	}
	for _, e := range tree {
		if e.Path == wrapper {
			return true
		}
	}
	return false
}
