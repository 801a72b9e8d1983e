// Package github reads markdown documents from a GitHub repository directory.
package github

import (
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// Client wraps the GitHub API client with rate limiting support
type Client struct {
	*github.Client
}

// NewClient creates a rate-limited GitHub client. A non-empty token
// authenticates the client for the higher request quota.
func NewClient(token string) (*Client, error) {
	// Waits out primary and secondary rate limits instead of failing the sync.
	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	ghClient := github.NewClient(rateLimiter)
	if token != "" {
		ghClient = ghClient.WithAuthToken(token)
	}

	return &Client{Client: ghClient}, nil
}
