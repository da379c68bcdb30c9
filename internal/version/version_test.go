package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	release, commit := Release, GitCommit
	t.Cleanup(func() { Release, GitCommit = release, commit })

	Release, GitCommit = "v1.2.3", "abc1234"

	assert.Equal(t, "v1.2.3", GetRelease())
	assert.Equal(t, "abc1234", GetGitCommit())
	assert.Equal(t, "trace-processor/v1.2.3-abc1234", Short())
	assert.Equal(t, "trace-processor/v1.2.3-abc1234/"+runtime.GOOS+"-"+runtime.GOARCH+"/"+runtime.Version(), Full())
}
