package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-console/internal/model"
	pkgErrors "deploy-console/pkg/errors"
)

func TestBuildSubmissionPayloadEmptySelection(t *testing.T) {
	_, _, err := BuildSubmissionPayload(nil)
	assert.ErrorIs(t, err, pkgErrors.ErrNoInstanceSelected)
}

func TestBuildSubmissionPayloadShape(t *testing.T) {
	inst := &model.DeployInstance{
		InstanceID:     "agent-1",
		RepoURL:        "https://git.example.com/org/agent-1",
		Branch:         "main",
		CommitSha:      "abc123",
		Region:         "europe-west1",
		ServiceName:    "agent-1",
		ExtraEnvSource: "env",
	}
	inst.SetEnvVars([]model.EnvVarEntry{{Key: "A", Value: "1"}})

	payload, warnings, err := BuildSubmissionPayload([]*model.DeployInstance{inst})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, payload.Agents, 1)

	env := payload.Agents[0].Environment
	assert.Equal(t, "europe-west1", env["region"])
	assert.Equal(t, "https://git.example.com/org/agent-1", env["repo_url"])
	assert.Equal(t, "main", env["branch"])
	assert.Equal(t, "abc123", env["commit_sha"])
	assert.Equal(t, false, env["connectDatabase"])
	assert.Equal(t, "agent-1", env["service_name"])
	assert.Equal(t, "env", env["extra_env_source"])
	assert.Equal(t, map[string]string{"A": "1"}, env["extra_env"])
	assert.Equal(t, []string{}, env["buckets"])
	assert.Equal(t, []model.BucketMount{}, env["bucket_mounts"])

	// 未开启数据库连接时不得出现数据库字段
	_, hasDB := env["database_instance"]
	assert.False(t, hasDB)

	assert.Equal(t, "agent-1", payload.Agents[0].Name)
	assert.Equal(t, "abc123", payload.Agents[0].CommitSha)
}

func TestBuildSubmissionPayloadDatabaseFields(t *testing.T) {
	inst := &model.DeployInstance{
		InstanceID:       "agent-db",
		ConnectDatabase:  true,
		DatabaseInstance: "agent-db-main-db",
		DatabaseName:     "agent_db_main",
		DBUsername:       "app_user",
		DBPassword:       "s3cret",
	}

	payload, _, err := BuildSubmissionPayload([]*model.DeployInstance{inst})
	require.NoError(t, err)

	env := payload.Agents[0].Environment
	assert.Equal(t, "agent-db-main-db", env["database_instance"])
	assert.Equal(t, "agent_db_main", env["database_name"])
	assert.Equal(t, "app_user", env["db_username"])
	assert.Equal(t, "s3cret", env["db_password"])
}

func TestBuildSubmissionPayloadDropsEmptyKeys(t *testing.T) {
	inst := &model.DeployInstance{InstanceID: "agent-2"}
	inst.SetEnvVars([]model.EnvVarEntry{
		{Key: "", Value: "dropped"},
		{Key: "KEPT", Value: "v"},
	})

	payload, _, err := BuildSubmissionPayload([]*model.DeployInstance{inst})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"KEPT": "v"}, payload.Agents[0].Environment["extra_env"])
}

func TestBuildSubmissionPayloadWarnsOnExampleDefaults(t *testing.T) {
	inst := &model.DeployInstance{InstanceID: "agent-3"}
	inst.SetEnvVars([]model.EnvVarEntry{
		{Key: "API_KEY", Value: "default", MatchesExample: true},
	})

	_, warnings, err := BuildSubmissionPayload([]*model.DeployInstance{inst})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "agent-3")
	assert.Contains(t, warnings[0], "API_KEY")
}

func TestBuildSubmissionPayloadArraysIdentical(t *testing.T) {
	a := &model.DeployInstance{InstanceID: "a"}
	b := &model.DeployInstance{InstanceID: "b"}

	payload, _, err := BuildSubmissionPayload([]*model.DeployInstance{a, b})
	require.NoError(t, err)

	assert.Equal(t, payload.Agents, payload.Repositories)
	assert.Len(t, payload.Agents, 2)
}
