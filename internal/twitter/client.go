// Package twitter wraps the Twitter v2 recent-search and tweet-creation
// endpoints and owns the OAuth2 token lifecycle for one account.
package twitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jshapland/replybot/internal/store"
	"github.com/jshapland/replybot/internal/types"
)

const (
	defaultAPIBase  = "https://api.twitter.com/2"
	defaultTokenURL = "https://api.twitter.com/2/oauth2/token"
)

// Config holds the resolved credentials and query for one account's client.
// APIBaseURL and TokenURL default to the public endpoints when empty.
type Config struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	SearchQuery  string
	Scopes       []string
	APIBaseURL   string
	TokenURL     string
}

// Client talks to the search and tweet-creation endpoints. On a 401 it
// refreshes the access token once and retries the original request once; a
// second failure propagates. Refreshed tokens are persisted to the token
// store before the refresh is considered successful.
type Client struct {
	cfg      Config
	tokens   store.TokenStore
	token    *store.OAuth2Token
	http     *http.Client
	apiBase  string
	tokenURL string
}

// New loads the persisted token, seeding the store from the statically
// configured pair when no record exists, so first-run and post-refresh
// behavior share the same storage path.
func New(ctx context.Context, cfg Config, tokens store.TokenStore) (*Client, error) {
	token, err := tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == nil {
		token = &store.OAuth2Token{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
		}
		if err := tokens.Save(ctx, token); err != nil {
			return nil, fmt.Errorf("seed token store: %w", err)
		}
	}

	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	return &Client{
		cfg:      cfg,
		tokens:   tokens,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		apiBase:  apiBase,
		tokenURL: tokenURL,
	}, nil
}

type searchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// FetchRecent searches for posts matching the configured query, optionally
// restricted to IDs greater than sinceID. maxResults is clamped to the
// endpoint's [10, 100] bound. The remote ordering is relevance-ranked, so
// results are re-sorted by popularity score (ties broken by descending ID)
// before returning.
func (c *Client) FetchRecent(ctx context.Context, maxResults int, sinceID int64) ([]types.Post, error) {
	if maxResults < 10 {
		maxResults = 10
	}
	if maxResults > 100 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("query", c.cfg.SearchQuery)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("tweet.fields", "author_id,lang,created_at,public_metrics")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")
	params.Set("sort_order", "relevancy")
	if sinceID > 0 {
		params.Set("since_id", strconv.FormatInt(sinceID, 10))
	}

	body, err := c.request(ctx, http.MethodGet, c.apiBase+"/tweets/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	posts := make([]types.Post, 0, len(resp.Data))
	for _, item := range resp.Data {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			log.Printf("Skipping tweet with non-numeric ID %q", item.ID)
			continue
		}
		handle := usernames[item.AuthorID]
		if handle == "" {
			handle = "unknown"
		}
		posts = append(posts, types.Post{
			ID:           id,
			Text:         item.Text,
			AuthorHandle: handle,
			URL:          fmt.Sprintf("https://twitter.com/%s/status/%d", handle, id),
			LikeCount:    item.PublicMetrics.LikeCount,
			RetweetCount: item.PublicMetrics.RetweetCount,
			ReplyCount:   item.PublicMetrics.ReplyCount,
			QuoteCount:   item.PublicMetrics.QuoteCount,
		})
	}

	sort.Slice(posts, func(i, j int) bool {
		si, sj := posts[i].PopularityScore(), posts[j].PopularityScore()
		if si != sj {
			return si > sj
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

// PostReply creates a reply to the given post. Success is the absence of an
// error; the response body is not consumed.
func (c *Client) PostReply(ctx context.Context, postID int64, text string) error {
	payload := map[string]any{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": strconv.FormatInt(postID, 10),
		},
	}
	_, err := c.request(ctx, http.MethodPost, c.apiBase+"/tweets", payload)
	return err
}

// request executes one authorized API call, refreshing the token and
// retrying exactly once on a 401. A token known to be at or past its expiry
// is refreshed up front; if that fails the request proceeds anyway and the
// 401 path takes over.
func (c *Client) request(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	if c.token != nil && c.token.Expired() {
		if err := c.refreshToken(ctx); err != nil {
			log.Printf("Proactive token refresh failed: %v", err)
		}
	}

	status, body, err := c.do(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		log.Printf("Access token rejected, attempting refresh")
		if err := c.refreshToken(ctx); err != nil {
			return nil, err
		}
		status, body, err = c.do(ctx, method, rawURL, payload)
		if err != nil {
			return nil, err
		}
	}
	if status >= 400 {
		return nil, fmt.Errorf("twitter API error %d: %s", status, string(body))
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.token == nil || c.token.AccessToken == "" {
		return 0, nil, fmt.Errorf("twitter access token not available")
	}
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
	Scope        string  `json:"scope"`
}

// refreshToken exchanges the stored refresh token for a new credential pair
// and persists it before returning. A refresh that cannot be persisted is
// treated as failed: a restart must never discard a live token.
func (c *Client) refreshToken(ctx context.Context) error {
	if c.token == nil || c.token.RefreshToken == "" {
		return fmt.Errorf("refresh token not available; cannot refresh access token")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.token.RefreshToken)
	if len(c.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read refresh response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("token refresh failed (%d): %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("failed to parse refresh response: %w", err)
	}

	newToken := &store.OAuth2Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
	}
	if newToken.AccessToken == "" {
		newToken.AccessToken = c.token.AccessToken
	}
	if newToken.RefreshToken == "" {
		newToken.RefreshToken = c.token.RefreshToken
	}
	if tr.ExpiresIn > 0 {
		expiresAt := float64(time.Now().Unix()) + tr.ExpiresIn
		newToken.ExpiresAt = &expiresAt
	}

	if err := c.tokens.Save(ctx, newToken); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	c.token = newToken
	log.Printf("Obtained refreshed access token")
	return nil
}
