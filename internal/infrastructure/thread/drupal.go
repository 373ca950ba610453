package thread

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ACRScanner/internal/domain"
	"ACRScanner/internal/infrastructure/parser"
)

// maxFiles keeps only the most recent attachments listed on the page.
const maxFiles = 5

type drupalSource struct {
	client  *http.Client
	limits  limits
	backoff parser.Backoff
}

func (d *drupalSource) fetch(ctx context.Context, issueURL string) (*domain.Thread, error) {
	doc, err := d.backoff.Document(ctx, d.client, issueURL)
	if err != nil {
		return nil, fmt.Errorf("drupal issue page: %w", err)
	}
	return d.parse(doc, issueLink(issueURL)), nil
}

func (d *drupalSource) parse(doc *goquery.Document, link string) *domain.Thread {
	th := &domain.Thread{
		Reporter:  squash(doc.Find("span.submitted").First().Text()),
		Followers: squash(doc.Find("div.project-issue-followers").First().Text()),
	}

	doc.Find("div.file").EachWithBreak(func(i int, f *goquery.Selection) bool {
		if i >= maxFiles {
			return false
		}
		if info := squash(f.Text()); info != "" {
			th.Files = append(th.Files, info)
		}
		return true
	})

	doc.Find("div.comment").EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if d.limits.full(len(th.Comments)) {
			return false
		}
		body := squash(c.Find("div.content").First().Text())
		if body == "" {
			return true
		}

		author := squash(c.Find("span.username").First().Text())
		if author == "" {
			author = domain.Unknown
		}

		comment := domain.Comment{
			Sequence: len(th.Comments) + 1,
			Author:   author,
			Body:     d.limits.body(body),
			SourceID: commentID(c),
		}
		if comment.SourceID != "" {
			comment.Link = link + "#comment-" + comment.SourceID
		}
		th.Comments = append(th.Comments, comment)
		return true
	})

	return th
}

// commentID reads the native id from the permalink anchor, the element id,
// or the permalink's "#N" label, in that order.
func commentID(c *goquery.Selection) string {
	permalink := c.Find("a.permalink").First()
	if href, ok := permalink.Attr("href"); ok {
		if _, frag, found := strings.Cut(href, "#comment-"); found && frag != "" {
			return frag
		}
	}
	if id, ok := c.Attr("id"); ok {
		if rest, found := strings.CutPrefix(id, "comment-"); found && rest != "" {
			return rest
		}
	}
	return strings.TrimPrefix(squash(permalink.Text()), "#")
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
