// Package leetcode talks to the practice platform's GraphQL endpoint:
// the recent-submission feeds used for classification and the active
// daily challenge question.
package leetcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// StatusAccepted is the exact outcome label the provider uses for a
// passing submission.
const StatusAccepted = "Accepted"

// FallbackLink is returned by DailyProblem when the provider is
// unreachable; its empty slug suppresses any daily-bonus attempt.
const FallbackLink = "https://leetcode.com/problemset/all/"

// Submission is one entry of the recent-activity feed.
type Submission struct {
	Slug      string
	Status    string
	Timestamp int64 // epoch seconds
}

// DailyProblem describes the platform-wide daily challenge.
type DailyProblem struct {
	Link  string
	Slug  string
	ID    string
	Title string
}

// Client is a minimal GraphQL-over-HTTP client. The base URL is
// overridable for tests.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://leetcode.com/graphql/"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

const recentSubmissionsQuery = `
query recentSubmissions($username: String!, $limit: Int!) {
    recentSubmissionList(username: $username, limit: $limit) {
        titleSlug
        statusDisplay
        timestamp
    }
}`

const recentAcceptedQuery = `
query recentAcSubmissions($username: String!, $limit: Int!) {
  recentAcSubmissionList(username: $username, limit: $limit) {
    titleSlug
    timestamp
  }
}`

const dailyChallengeQuery = `
query questionOfToday {
  activeDailyCodingChallengeQuestion {
    link
    question {
      questionId
      titleSlug
      title
    }
  }
}`

// RecentSubmissions fetches the user's most recent submissions, both
// accepted and not. An empty session degrades the call to anonymous.
func (c *Client) RecentSubmissions(ctx context.Context, username, session string, limit int) ([]Submission, error) {
	var out struct {
		Data struct {
			List []feedEntry `json:"recentSubmissionList"`
		} `json:"data"`
	}
	vars := map[string]any{"username": username, "limit": limit}
	if err := c.post(ctx, username, session, "recentSubmissions", recentSubmissionsQuery, vars, &out); err != nil {
		return nil, err
	}
	return toSubmissions(out.Data.List), nil
}

// RecentAccepted fetches the user's most recent accepted submissions.
func (c *Client) RecentAccepted(ctx context.Context, username string, limit int) ([]Submission, error) {
	var out struct {
		Data struct {
			List []feedEntry `json:"recentAcSubmissionList"`
		} `json:"data"`
	}
	vars := map[string]any{"username": username, "limit": limit}
	if err := c.post(ctx, username, "", "recentAcSubmissions", recentAcceptedQuery, vars, &out); err != nil {
		return nil, err
	}
	subs := toSubmissions(out.Data.List)
	for i := range subs {
		subs[i].Status = StatusAccepted
	}
	return subs, nil
}

// DailyProblem fetches the active daily challenge. It never fails: on
// any provider error it returns the generic fallback with an empty slug.
func (c *Client) DailyProblem(ctx context.Context) DailyProblem {
	var out struct {
		Data struct {
			Active struct {
				Link     string `json:"link"`
				Question struct {
					ID    string `json:"questionId"`
					Slug  string `json:"titleSlug"`
					Title string `json:"title"`
				} `json:"question"`
			} `json:"activeDailyCodingChallengeQuestion"`
		} `json:"data"`
	}
	if err := c.post(ctx, "", "", "questionOfToday", dailyChallengeQuery, nil, &out); err != nil {
		return DailyProblem{Link: FallbackLink, Title: "Daily Problem"}
	}
	q := out.Data.Active.Question
	if q.Slug == "" {
		return DailyProblem{Link: FallbackLink, Title: "Daily Problem"}
	}
	date := time.Now().Format("2006-01-02")
	return DailyProblem{
		Link:  fmt.Sprintf("https://leetcode.com%s?envType=daily-question&envId=%s", out.Data.Active.Link, date),
		Slug:  q.Slug,
		ID:    q.ID,
		Title: q.Title,
	}
}

type feedEntry struct {
	Slug      string `json:"titleSlug"`
	Status    string `json:"statusDisplay"`
	Timestamp string `json:"timestamp"` // the API serializes epoch seconds as a string
}

func toSubmissions(entries []feedEntry) []Submission {
	subs := make([]Submission, 0, len(entries))
	for _, e := range entries {
		ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
		if err != nil {
			continue
		}
		subs = append(subs, Submission{Slug: e.Slug, Status: e.Status, Timestamp: ts})
	}
	return subs
}

func (c *Client) post(ctx context.Context, username, session, operation, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":         query,
		"variables":     vars,
		"operationName": operation,
	})
	if err != nil {
		return fmt.Errorf("leetcode: marshal %s: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("leetcode: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", "https://leetcode.com")
	req.Header.Set("Random-Uuid", uuid.NewString())
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36")
	if username != "" {
		req.Header.Set("Referer", fmt.Sprintf("https://leetcode.com/u/%s/", username))
	}
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "LEETCODE_SESSION", Value: session})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("leetcode: %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("leetcode: %s: status %d", operation, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("leetcode: decode %s: %w", operation, err)
	}
	return nil
}
