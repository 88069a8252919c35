package trigger

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// eventLister abstracts the GitHub Activity API call we use, enabling test
// mocks.
type eventLister interface {
	ListRepositoryEvents(ctx context.Context, owner, repo string, opts *github.ListOptions) ([]*github.Event, *github.Response, error)
}

// GitHubPoller watches a repository's event feed for pushes to protected
// branches. It complements git hooks: hooks catch local pushes, polling
// catches pushes made from anywhere else.
type GitHubPoller struct {
	lister     eventLister
	owner      string
	repo       string
	projectDir string

	mu         sync.Mutex
	lastSeenID int64
}

// NewGitHubPoller creates a poller for owner/repo. Events map to projectDir,
// the local checkout automation runs against.
func NewGitHubPoller(token, owner, repo, projectDir string) *GitHubPoller {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}
	return &GitHubPoller{
		lister:     client.Activity,
		owner:      owner,
		repo:       repo,
		projectDir: projectDir,
	}
}

// Poll fetches repository events newer than the last poll and converts push
// events into trigger Events, oldest first. The first call only records the
// high-water mark so a fresh poller does not replay history.
func (p *GitHubPoller) Poll(ctx context.Context) ([]Event, error) {
	raw, _, err := p.lister.ListRepositoryEvents(ctx, p.owner, p.repo,
		&github.ListOptions{PerPage: 50})
	if err != nil {
		return nil, fmt.Errorf("trigger: list events for %s/%s: %w", p.owner, p.repo, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prime := p.lastSeenID == 0
	maxID := p.lastSeenID

	var events []Event
	// The API returns newest first; walk backwards for oldest-first output.
	for i := len(raw) - 1; i >= 0; i-- {
		ev := raw[i]
		id, err := strconv.ParseInt(ev.GetID(), 10, 64)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
		if prime || id <= p.lastSeenID {
			continue
		}
		if ev.GetType() != "PushEvent" {
			continue
		}
		payload, err := ev.ParsePayload()
		if err != nil {
			log.Printf("trigger: parse push event %s: %v", ev.GetID(), err)
			continue
		}
		push, ok := payload.(*github.PushEvent)
		if !ok {
			continue
		}
		branch := strings.TrimPrefix(push.GetRef(), "refs/heads/")
		message := ""
		if n := len(push.Commits); n > 0 {
			message = push.Commits[n-1].GetMessage()
		}
		events = append(events, Event{
			Action:        "push",
			Branch:        branch,
			CommitMessage: message,
			ProjectDir:    p.projectDir,
		})
	}

	p.lastSeenID = maxID
	return events, nil
}
