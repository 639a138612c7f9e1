// Package workflow builds the prompts handed to the WorkflowExecutor
// for each stage. It holds no I/O of its own — every builder is a pure
// function from a Context to an ordered list of prompts.
package workflow

import (
	"fmt"
	"strings"

	"github.com/exampleorg/boardrunner/internal/label"
)

// Context carries everything a stage's prompts might reference.
type Context struct {
	Repo            string // "hostname/owner/repo", used to build issue URLs for both github.com and GHES
	TicketID        int
	AllowedUsername string
	ProjectURL      string
	CommentBody     string // ProcessComments only
	TargetSection   string // ProcessComments only: "description", "research", or "plan"
}

func (c Context) issueURL() string {
	repo := c.Repo
	// A bare "owner/repo" identifier means github.com; a GHES repo
	// already carries its hostname as the leading segment.
	if strings.Count(repo, "/") < 2 {
		repo = "github.com/" + repo
	}
	return fmt.Sprintf("https://%s/issues/%d", repo, c.TicketID)
}

// Prompts returns the ordered prompt list for stage given ctx.
func Prompts(stage label.Stage, ctx Context) ([]string, error) {
	switch stage {
	case label.StageResearch:
		return researchPrompts(ctx), nil
	case label.StagePlan:
		return planPrompts(ctx), nil
	case label.StagePrepare:
		return preparePrompts(ctx), nil
	case label.StageImplement:
		return implementPrompts(ctx), nil
	case label.StageValidate:
		return validatePrompts(ctx), nil
	default:
		return nil, fmt.Errorf("workflow: no prompt builder for stage %q", stage)
	}
}

func researchPrompts(ctx Context) []string {
	return []string{
		fmt.Sprintf("/research_github for issue %s.", ctx.issueURL()),
	}
}

func planPrompts(ctx Context) []string {
	return []string{
		fmt.Sprintf("/plan_github for issue %s.", ctx.issueURL()),
	}
}

func preparePrompts(ctx Context) []string {
	return []string{
		fmt.Sprintf("/prepare_implementation_github for issue %s.", ctx.issueURL()),
	}
}

func implementPrompts(ctx Context) []string {
	reviewerFlag := ""
	if ctx.AllowedUsername != "" {
		reviewerFlag = " --reviewer " + ctx.AllowedUsername
	}
	projectURLContext := ""
	if ctx.ProjectURL != "" {
		projectURLContext = " Project URL: " + ctx.ProjectURL
	}
	return []string{
		fmt.Sprintf("/implement_github for issue %s.%s%s", ctx.issueURL(), reviewerFlag, projectURLContext),
	}
}

func validatePrompts(ctx Context) []string {
	return []string{
		fmt.Sprintf("/review_github for issue %s.", ctx.issueURL()),
	}
}

// targetDescriptions maps a ProcessComments target section to the
// human-readable description the edit prompt points the executor at.
var targetDescriptions = map[string]string{
	"description": "the issue description",
	"research":    "the Research Findings section in the issue description (between `<!-- kiln:research -->` and `<!-- /kiln:research -->`)",
	"plan":        "the Implementation Plan section in the issue description (between `<!-- kiln:plan -->` and `<!-- /kiln:plan -->`)",
}

// ProcessCommentPrompt builds the in-place-edit prompt the CommentReactor
// dispatches under the editing running label.
func ProcessCommentPrompt(ctx Context) string {
	target := ctx.TargetSection
	if target == "" {
		target = "description"
	}
	desc, ok := targetDescriptions[target]
	if !ok {
		desc = targetDescriptions["description"]
	}

	return fmt.Sprintf(`Process this user comment and apply the requested changes to %s.

Issue: %s

User comment to process:
---
%s
---

Target: %s

Instructions:
1. Read the current %s content using: `+"`gh issue view %s --json body`"+`
2. Apply the user's feedback/requested changes to edit it IN-PLACE
3. Update using: `+"`gh issue edit %s --body \"...\"`"+`
4. Preserve the overall structure and formatting
5. Only modify sections relevant to the user's feedback

Do NOT create new comments. Edit the existing %s directly.`,
		desc, ctx.issueURL(), ctx.CommentBody, target, target, ctx.issueURL(), ctx.issueURL(), target)
}
