package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/status"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/types"
)

type testReceiver struct {
	receiver Receiver
	agents   agents.Manager
	projects projects.Manager
	notifier notifications.Manager
	store    store.Store
}

func newTestReceiver(t *testing.T) *testReceiver {
	t.Helper()
	s, cleanUp, err := store.NewTestStoreFromSQL(context.Background(), "", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(cleanUp)

	cacheStore, err := cache.NewStore(cache.DefaultAgentCacheExpirationMax, cache.DefaultAgentCacheCleanupInterval)
	require.NoError(t, err)

	eventStore := &activity.NoopEventStore{}
	agentsManager := agents.NewManager(s, eventStore, cache.NewAgentDataCache(cacheStore))
	notifier := notifications.NewManager(s, eventStore)

	return &testReceiver{
		receiver: NewReceiver(s, eventStore, agentsManager, notifier),
		agents:   agentsManager,
		projects: projects.NewManager(s, eventStore),
		notifier: notifier,
		store:    s,
	}
}

func seedProject(t *testing.T, rig *testReceiver) *types.Project {
	t.Helper()
	creator, _, err := rig.agents.RegisterAgent(context.Background(), "creator-"+types.NewAgentID(), "", "")
	require.NoError(t, err)
	project, err := rig.projects.CreateProject(context.Background(), creator.ID, "board-"+types.NewProjectID(), "")
	require.NoError(t, err)
	return project
}

func postByRef(t *testing.T, rig *testReceiver, projectID, ref string) *types.Post {
	t.Helper()
	post, err := rig.store.GetPostByGitHubRef(context.Background(), store.LockingStrengthShare, projectID, ref)
	require.NoError(t, err)
	return post
}

func requireStatusType(t *testing.T, err error, expected status.Type) {
	t.Helper()
	require.Error(t, err)
	sErr, ok := status.FromError(err)
	require.True(t, ok, "expected a status error, got: %v", err)
	require.Equal(t, expected, sErr.Type())
}

func prDelivery(action, url string, merged bool, mergedBy string) []byte {
	payload := map[string]any{
		"action": action,
		"pull_request": map[string]any{
			"number":   42,
			"title":    "Add retry loop",
			"html_url": url,
			"body":     "Retries the flaky sync before giving up.",
			"merged":   merged,
			"user":     map[string]string{"login": "octocat"},
		},
		"repository": map[string]string{"full_name": "mesh/board"},
	}
	if mergedBy != "" {
		payload["pull_request"].(map[string]any)["merged_by"] = map[string]string{"login": mergedBy}
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func Test_PullRequestOpenedCreatesPostSuccessfully(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	octocat, _, err := rig.agents.RegisterAgent(ctx, "octocat", "", "")
	require.NoError(t, err)

	ref := "https://github.com/mesh/board/pull/42"
	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("opened", ref, false, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)
	require.NotEmpty(t, outcome.PostID)

	post := postByRef(t, rig, project.ID, ref)
	require.Equal(t, outcome.PostID, post.ID)
	require.Equal(t, "🔀 PR #42: Add retry loop", post.Title)
	require.Equal(t, types.PostTypeQuestion, post.Type)
	require.Equal(t, types.PostStatusActive, post.Status)
	require.Equal(t, []string{"github", "pr"}, post.Tags)
	require.Equal(t, []string{"octocat"}, post.Mentions)
	require.Equal(t, types.SignatureStatusUnsigned, post.Signature.Status)
	require.Contains(t, post.Content, "**New Pull Request** from @octocat")
	require.Contains(t, post.Content, "Retries the flaky sync before giving up.")

	bot, err := rig.agents.GetAgentByName(ctx, BotAgentName)
	require.NoError(t, err)
	require.Equal(t, bot.ID, post.AuthorID)
	require.Equal(t, botAgentRole, bot.Role)

	require.Eventually(t, func() bool {
		inbox, err := rig.notifier.GetNotifications(ctx, octocat.ID, false, 0)
		return err == nil && len(inbox) == 1 && inbox[0].Kind == types.NotificationKindMention
	}, 2*time.Second, 25*time.Millisecond)
}

func Test_PullRequestFollowUpCommentsAndResolves(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	ref := "https://github.com/mesh/board/pull/42"
	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("opened", ref, false, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)

	// actions outside the follow-up set are dropped on a known reference
	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("labeled", ref, false, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome.Action)

	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("closed", ref, true, "hubot"))
	require.NoError(t, err)
	require.Equal(t, OutcomeCommented, outcome.Action)
	require.NotEmpty(t, outcome.CommentID)

	post := postByRef(t, rig, project.ID, ref)
	require.Equal(t, types.PostStatusResolved, post.Status)

	comments, err := rig.store.GetPostComments(ctx, store.LockingStrengthShare, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, post.AuthorID, comments[0].AuthorID)
	require.Contains(t, comments[0].Content, "✅ **PR merged** by @hubot")
}

func Test_PullRequestClosedWithoutMergeArchives(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	// the first delivery for a reference creates the post whatever the action
	ref := "https://github.com/mesh/board/pull/43"
	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("closed", ref, false, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)

	post := postByRef(t, rig, project.ID, ref)
	require.Equal(t, types.PostTypeUpdate, post.Type)
	require.Contains(t, post.Content, "❌ **PR closed** by @octocat")

	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", prDelivery("closed", ref, false, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeCommented, outcome.Action)

	post = postByRef(t, rig, project.ID, ref)
	require.Equal(t, types.PostStatusArchived, post.Status)
}

func Test_IssueDeliveriesFormatSuccessfully(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	labeled := []byte(`{
		"action": "opened",
		"issue": {
			"number": 7,
			"title": "Crash on load",
			"html_url": "https://github.com/mesh/board/issues/7",
			"body": "Stack trace attached.",
			"user": {"login": "maintainer"},
			"labels": [{"name": "bug"}, {"name": "p1"}]
		},
		"repository": {"full_name": "mesh/board"}
	}`)
	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "issues", labeled)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)

	post := postByRef(t, rig, project.ID, "https://github.com/mesh/board/issues/7")
	require.Equal(t, "📋 Issue #7: Crash on load", post.Title)
	require.Equal(t, types.PostTypeQuestion, post.Type)
	require.Equal(t, []string{"github", "issue"}, post.Tags)
	require.Contains(t, post.Content, "**Labels:** `bug`, `p1`")
	require.Contains(t, post.Content, "Stack trace attached.")

	bare := []byte(`{
		"action": "opened",
		"issue": {
			"number": 8,
			"title": "Docs gap",
			"html_url": "https://github.com/mesh/board/issues/8",
			"user": {"login": "maintainer"}
		},
		"repository": {"full_name": "mesh/board"}
	}`)
	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "issues", bare)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)

	post = postByRef(t, rig, project.ID, "https://github.com/mesh/board/issues/8")
	require.Contains(t, post.Content, "**Labels:** _none_")
	require.Contains(t, post.Content, "_No description provided._")

	closed := []byte(`{
		"action": "closed",
		"issue": {
			"number": 7,
			"title": "Crash on load",
			"html_url": "https://github.com/mesh/board/issues/7",
			"user": {"login": "maintainer"}
		},
		"repository": {"full_name": "mesh/board"}
	}`)
	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "issues", closed)
	require.NoError(t, err)
	require.Equal(t, OutcomeCommented, outcome.Action)

	post = postByRef(t, rig, project.ID, "https://github.com/mesh/board/issues/7")
	require.Equal(t, types.PostStatusArchived, post.Status)

	comments, err := rig.store.GetPostComments(ctx, store.LockingStrengthShare, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Contains(t, comments[0].Content, "✅ **Issue closed** by @maintainer")
}

func Test_PushCreatesDigestPostSuccessfully(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	commits := make([]map[string]string, 12)
	for i := range commits {
		commits[i] = map[string]string{
			"id":      fmt.Sprintf("%07d0deadbeefc0ffee1234567890abcdef", i),
			"message": fmt.Sprintf("commit %d\n\nlonger body text", i),
		}
	}
	commits[0]["message"] = strings.Repeat("x", 80)

	compare := "https://github.com/mesh/board/compare/abc...def"
	payload, err := json.Marshal(map[string]any{
		"ref":        "refs/heads/main",
		"compare":    compare,
		"pusher":     map[string]string{"name": "octocat"},
		"commits":    commits,
		"repository": map[string]string{"full_name": "mesh/board"},
	})
	require.NoError(t, err)

	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "push", payload)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome.Action)

	post := postByRef(t, rig, project.ID, compare)
	require.Equal(t, "📦 Push to main: 12 commit(s)", post.Title)
	require.Equal(t, []string{"github", "push"}, post.Tags)
	require.Contains(t, post.Content, "**Push** by @octocat to `main`")
	require.Contains(t, post.Content, "- `0000001` commit 1")
	require.Contains(t, post.Content, "- `0000009` commit 9")
	require.Contains(t, post.Content, "- _...and 2 more_")
	require.NotContains(t, post.Content, "commit 10")
	require.Contains(t, post.Content, strings.Repeat("x", 60)+"\n")
	require.NotContains(t, post.Content, strings.Repeat("x", 61))

	// a redelivered push reuses the compare reference and is dropped
	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "push", payload)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome.Action)

	empty, err := json.Marshal(map[string]any{
		"ref":        "refs/heads/main",
		"compare":    "https://github.com/mesh/board/compare/def...def",
		"pusher":     map[string]string{"name": "octocat"},
		"commits":    []map[string]string{},
		"repository": map[string]string{"full_name": "mesh/board"},
	})
	require.NoError(t, err)
	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "push", empty)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome.Action)
}

func Test_DeliveryValidation(t *testing.T) {
	rig := newTestReceiver(t)
	project := seedProject(t, rig)
	ctx := context.Background()

	_, err := rig.receiver.HandleDelivery(ctx, "missing-project", "push", []byte(`{}`))
	requireStatusType(t, err, status.NotFound)

	_, err = rig.receiver.HandleDelivery(ctx, project.ID, "push", []byte(`{not json`))
	requireStatusType(t, err, status.BadRequest)

	outcome, err := rig.receiver.HandleDelivery(ctx, project.ID, "deployment_status", []byte(`{"action": "created"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome.Action)

	outcome, err = rig.receiver.HandleDelivery(ctx, project.ID, "pull_request", []byte(`{"action": "opened"}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome.Action)
}

func Test_ValidSignature(t *testing.T) {
	payload := []byte(`{"action": "opened"}`)
	secret := "hook-secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	signed := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	require.True(t, ValidSignature(secret, payload, signed))
	require.False(t, ValidSignature(secret, []byte(`{"action": "closed"}`), signed))
	require.False(t, ValidSignature("other-secret", payload, signed))
	require.False(t, ValidSignature(secret, payload, strings.TrimPrefix(signed, "sha256=")))
	require.False(t, ValidSignature(secret, payload, ""))
}
