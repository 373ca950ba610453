package thread

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/infrastructure/parser"
)

const githubPageSize = 100

type githubComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

type githubSource struct {
	client  *http.Client
	apiURL  string
	token   string
	limits  limits
	backoff parser.Backoff
}

func (g *githubSource) fetch(ctx context.Context, issueURL string) (*domain.Thread, error) {
	owner, repo, number, ok := parser.SplitGitHubIssueURL(issueURL)
	if !ok {
		return nil, fmt.Errorf("invalid github issue url %s", issueURL)
	}

	th := &domain.Thread{
		Reporter:  "GitHub Issue #" + number,
		Followers: "N/A",
	}
	link := issueLink(issueURL)

	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/issues/%s/comments?per_page=%d&page=%d",
			g.apiURL, owner, repo, number, githubPageSize, page)
		batch, err := g.page(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		for _, c := range batch {
			if g.limits.full(len(th.Comments)) {
				return th, nil
			}
			id := strconv.FormatInt(c.ID, 10)
			author := c.User.Login
			if author == "" {
				author = domain.Unknown
			}
			th.Comments = append(th.Comments, domain.Comment{
				Sequence: len(th.Comments) + 1,
				Author:   author,
				Body:     g.limits.body(c.Body),
				SourceID: id,
				Link:     link + "#issuecomment-" + id,
			})
		}

		if len(batch) < githubPageSize {
			return th, nil
		}
	}
}

func (g *githubSource) page(ctx context.Context, endpoint string) ([]githubComment, error) {
	var batch []githubComment
	err := g.backoff.JSON(ctx, g.client, func() (*http.Request, error) {
		return parser.NewGitHubRequest(ctx, endpoint, g.token)
	}, &batch)
	if err != nil {
		return nil, fmt.Errorf("github comments: %w", err)
	}
	return batch, nil
}
