package deployment

import (
	"testing"

	"github.com/DuckOriDuck/whaleray/pkg/githubapp"
)

func TestLocateDockerfile_PrefersGradleDirFirst(t *testing.T) {
	tree := []githubapp.TreeEntry{
		{Path: "api/Dockerfile", Type: "blob"},
		{Path: "Dockerfile", Type: "blob"},
	}

	path, ctx := locateDockerfile(tree, "api")
	if path != "api/Dockerfile" {
		t.Errorf("expected api/Dockerfile, got %s", path)
	}
	if ctx != "api" {
		t.Errorf("expected build context api, got %s", ctx)
	}
}

func TestLocateDockerfile_FallsBackToRoot(t *testing.T) {
	tree := []githubapp.TreeEntry{
		{Path: "Dockerfile", Type: "blob"},
	}

	path, ctx := locateDockerfile(tree, "api")
	if path != "Dockerfile" {
		t.Errorf("expected Dockerfile, got %s", path)
	}
	if ctx != "." {
		t.Errorf("expected build context '.', got %s", ctx)
	}
}

func TestLocateDockerfile_NoneFoundDefaultsToGradleDir(t *testing.T) {
	tree := []githubapp.TreeEntry{
		{Path: "README.md", Type: "blob"},
	}

	path, ctx := locateDockerfile(tree, "api")
	if path != "" {
		t.Errorf("expected no dockerfile path, got %s", path)
	}
	if ctx != "api" {
		t.Errorf("expected build context api, got %s", ctx)
	}
}

func TestContainsSpringBootMarker(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    bool
	}{
		{"starter dependency", "implementation 'org.springframework.boot:spring-boot-starter-web'", true},
		{"annotation only", "@SpringBootApplication\nclass App", true},
		{"plain gradle file", "apply plugin: 'java'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsSpringBootMarker(tt.content); got != tt.want {
				t.Errorf("containsSpringBootMarker(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestDetectOtherFramework(t *testing.T) {
	tests := []struct {
		name string
		tree []githubapp.TreeEntry
		want string
	}{
		{"nextjs", []githubapp.TreeEntry{{Path: "next.config.js", Type: "blob"}}, "nextjs"},
		{"nodejs", []githubapp.TreeEntry{{Path: "package.json", Type: "blob"}}, "nodejs"},
		{"dotnet", []githubapp.TreeEntry{{Path: "app.csproj", Type: "blob"}}, "dotnet"},
		{"none", []githubapp.TreeEntry{{Path: "README.md", Type: "blob"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectOtherFramework(tt.tree); got != tt.want {
				t.Errorf("detectOtherFramework() = %q, want %q", got, tt.want)
			}
		})
	}
}
