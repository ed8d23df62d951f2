package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubsubTopic(t *testing.T) {
	assert.Equal(t, "nextcloud-events", pubsubTopic("projects/demo/topics/nextcloud-events"))
	assert.Equal(t, "nextcloud-events", pubsubTopic("nextcloud-events"))
	assert.Equal(t, "", pubsubTopic(""))
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "vectorsync version dev\n", out.String())
}

func TestIssueTokenCmd(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "test-secret")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"issue-token", "--user", "alice"})

	require.NoError(t, cmd.Execute())
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, out.String())
}
