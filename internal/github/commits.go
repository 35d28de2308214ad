package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

type wireCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  *struct {
		Message string `json:"message"`
		Author  *struct {
			Date *time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Stats *struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
}

func (w wireCommit) toModel(repo string) (model.CommitRecord, error) {
	if w.SHA == "" {
		return model.CommitRecord{}, apperror.MalformedResponse("commit without sha", nil)
	}
	if w.Commit == nil || w.Commit.Author == nil || w.Commit.Author.Date == nil {
		return model.CommitRecord{}, apperror.MalformedResponse("commit "+w.SHA+" without author date", nil)
	}
	rec := model.CommitRecord{
		SourceID:   w.SHA,
		Repository: repo,
		Message:    w.Commit.Message,
		URL:        w.HTMLURL,
		AuthoredAt: w.Commit.Author.Date.UTC(),
	}
	if w.Stats != nil {
		if w.Stats.Additions < 0 || w.Stats.Deletions < 0 {
			return model.CommitRecord{}, apperror.MalformedResponse("commit "+w.SHA+" with negative stats", nil)
		}
		rec.Additions = w.Stats.Additions
		rec.Deletions = w.Stats.Deletions
	}
	return rec, nil
}

func repoPath(repo model.Repository) string {
	owner, name := repo.Owner, repo.Name
	if owner == "" || name == "" {
		owner, name, _ = strings.Cut(repo.FullName, "/")
	}
	return "repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// ListCommits returns the commits of author in repo authored in
// [since, until), in upstream order. An empty repository (409) yields no
// commits and no error.
func (c *Client) ListCommits(ctx context.Context, repo model.Repository, since, until time.Time, author string) ([]model.CommitRecord, error) {
	base := repoPath(repo) + "/commits"

	params := url.Values{}
	if author != "" {
		params.Set("author", author)
	}
	params.Set("since", since.UTC().Format(time.RFC3339))
	// until is inclusive upstream.
	params.Set("until", until.Add(-time.Second).UTC().Format(time.RFC3339))
	params.Set("per_page", strconv.Itoa(c.cfg.PerPage))

	var out []model.CommitRecord
	for pageNum := 1; pageNum != 0; {
		params.Set("page", strconv.Itoa(pageNum))
		page, err := c.Get(ctx, base, params)
		if err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return nil, nil
			}
			return out, fmt.Errorf("github: listing commits of %s: %w", repo.FullName, err)
		}

		var wire []wireCommit
		if err := json.Unmarshal(page.Body, &wire); err != nil {
			return out, apperror.MalformedResponse("commit list of "+repo.FullName, err)
		}
		if len(wire) == 0 {
			break
		}
		for _, w := range wire {
			rec, err := w.toModel(repo.FullName)
			if err != nil {
				return out, err
			}
			if rec.AuthoredAt.Before(since) || !rec.AuthoredAt.Before(until) {
				continue
			}
			out = append(out, rec)
		}
		pageNum = page.NextPage
	}

	if c.cfg.FetchStats {
		for i := range out {
			if err := c.fillStats(ctx, repo, &out[i]); err != nil {
				return out[:i], err
			}
		}
	}
	return out, nil
}

// fillStats reads one commit to get its line counts.
func (c *Client) fillStats(ctx context.Context, repo model.Repository, rec *model.CommitRecord) error {
	page, err := c.Get(ctx, repoPath(repo)+"/commits/"+url.PathEscape(rec.SourceID), nil)
	if err != nil {
		return fmt.Errorf("github: reading commit %s of %s: %w", rec.SourceID, repo.FullName, err)
	}
	var wire wireCommit
	if err := json.Unmarshal(page.Body, &wire); err != nil {
		return apperror.MalformedResponse("commit "+rec.SourceID, err)
	}
	full, err := wire.toModel(repo.FullName)
	if err != nil {
		return err
	}
	rec.Additions = full.Additions
	rec.Deletions = full.Deletions
	return nil
}
