package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

// repoAffiliation selects every repository the user can push to: owned,
// collaborated on, or reachable through an organization.
const repoAffiliation = "owner,collaborator,organization_member"

type wireRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
	Fork     bool   `json:"fork"`
	Owner    *struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (w wireRepo) toModel() (model.Repository, error) {
	if w.FullName == "" || !strings.Contains(w.FullName, "/") {
		return model.Repository{}, apperror.MalformedResponse("repository without full_name", nil)
	}
	owner, name, _ := strings.Cut(w.FullName, "/")
	if w.Owner != nil && w.Owner.Login != "" {
		owner = w.Owner.Login
	}
	if w.Name != "" {
		name = w.Name
	}
	return model.Repository{
		Name:      name,
		FullName:  w.FullName,
		Owner:     owner,
		URL:       w.HTMLURL,
		IsPrivate: w.Private,
		IsFork:    w.Fork,
	}, nil
}

// RepoPager walks the user's repositories one page per call.
//
// A failed Next leaves the pager on the same page, so calling Next again
// retries exactly what failed. Reset starts over from the first page.
type RepoPager struct {
	client *Client
	page   int
	done   bool
}

// Repositories returns a pager positioned on the first page.
func (c *Client) Repositories() *RepoPager {
	return &RepoPager{client: c, page: 1}
}

func (p *RepoPager) Done() bool { return p.done }

func (p *RepoPager) Reset() {
	p.page = 1
	p.done = false
}

// Next returns the next page of repositories, or nil once enumeration is
// finished. Enumeration ends at the first empty page or when the response has
// no next-page link.
func (p *RepoPager) Next(ctx context.Context) ([]model.Repository, error) {
	if p.done {
		return nil, nil
	}

	params := url.Values{}
	params.Set("affiliation", repoAffiliation)
	params.Set("sort", "pushed")
	params.Set("per_page", strconv.Itoa(p.client.cfg.PerPage))
	params.Set("page", strconv.Itoa(p.page))

	page, err := p.client.Get(ctx, "user/repos", params)
	if err != nil {
		return nil, fmt.Errorf("github: listing repositories (page %d): %w", p.page, err)
	}

	var wire []wireRepo
	if err := json.Unmarshal(page.Body, &wire); err != nil {
		return nil, apperror.MalformedResponse("repository list", err)
	}
	repos := make([]model.Repository, 0, len(wire))
	for _, w := range wire {
		r, err := w.toModel()
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}

	if len(repos) == 0 || page.NextPage == 0 {
		p.done = true
	} else {
		p.page = page.NextPage
	}
	if len(repos) == 0 {
		return nil, nil
	}
	return repos, nil
}

// ListRepositories drains a fresh pager. On failure it returns the
// repositories gathered before the error together with the error.
func (c *Client) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	pager := c.Repositories()
	var all []model.Repository
	for !pager.Done() {
		repos, err := pager.Next(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, repos...)
	}
	return all, nil
}
