package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exampleorg/boardrunner/internal/label"
)

func testContext() Context {
	return Context{
		Repo:            "github.com/acme/widgets",
		TicketID:        42,
		AllowedUsername: "alice",
		ProjectURL:      "https://github.com/orgs/acme/projects/3",
	}
}

func TestPromptsResearch(t *testing.T) {
	prompts, err := Prompts(label.StageResearch, testContext())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "/research_github")
	assert.Contains(t, prompts[0], "issues/42")
}

func TestPromptsImplementIncludesReviewerAndProjectURL(t *testing.T) {
	prompts, err := Prompts(label.StageImplement, testContext())
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "--reviewer alice")
	assert.Contains(t, prompts[0], "https://github.com/orgs/acme/projects/3")
}

func TestPromptsImplementOmitsReviewerWhenUnset(t *testing.T) {
	ctx := testContext()
	ctx.AllowedUsername = ""
	prompts, err := Prompts(label.StageImplement, ctx)
	require.NoError(t, err)
	assert.NotContains(t, prompts[0], "--reviewer")
}

func TestIssueURLBareRepoDefaultsToGitHubCom(t *testing.T) {
	prompts, err := Prompts(label.StageResearch, Context{Repo: "acme/widgets", TicketID: 7})
	require.NoError(t, err)
	assert.Contains(t, prompts[0], "https://github.com/acme/widgets/issues/7")
}

func TestPromptsUnknownStage(t *testing.T) {
	_, err := Prompts(label.StageEdit, testContext())
	assert.Error(t, err)
}

func TestProcessCommentPromptDefaultsToDescription(t *testing.T) {
	ctx := testContext()
	ctx.CommentBody = "please rename the widget field"
	prompt := ProcessCommentPrompt(ctx)
	assert.Contains(t, prompt, "the issue description")
	assert.Contains(t, prompt, ctx.CommentBody)
}

func TestProcessCommentPromptResearchTargetReferencesMarkers(t *testing.T) {
	ctx := testContext()
	ctx.TargetSection = "research"
	ctx.CommentBody = "add a note about rate limits"
	prompt := ProcessCommentPrompt(ctx)
	assert.True(t, strings.Contains(prompt, "kiln:research"))
}

func TestProcessCommentPromptPlanTargetReferencesMarkers(t *testing.T) {
	ctx := testContext()
	ctx.TargetSection = "plan"
	prompt := ProcessCommentPrompt(ctx)
	assert.True(t, strings.Contains(prompt, "kiln:plan"))
}
