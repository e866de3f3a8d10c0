// Package ticketing creates issue-tracker tickets for auto-resolved
// anomalies. Ticket creation is best-effort: callers must tolerate an error
// or an empty id.
package ticketing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client is the ticketing collaborator contract.
type Client interface {
	CreateTicket(ctx context.Context, summary, description string) (string, error)
}

// Config holds Jira connection settings. The API token comes from the
// environment, never a config file.
type Config struct {
	URL        string `yaml:"url"`
	ProjectKey string `yaml:"project_key"`
	IssueType  string `yaml:"issue_type"`
	Username   string `yaml:"username"`
	APIToken   string `yaml:"-"`
}

// JiraClient creates tickets through the Jira REST v2 API.
type JiraClient struct {
	cfg    Config
	client *http.Client
}

func NewJiraClient(cfg Config) *JiraClient {
	if cfg.IssueType == "" {
		cfg.IssueType = "Task"
	}
	return &JiraClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type jiraIssueRequest struct {
	Fields jiraIssueFields `json:"fields"`
}

type jiraIssueFields struct {
	Project     jiraKeyRef  `json:"project"`
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	IssueType   jiraNameRef `json:"issuetype"`
}

type jiraKeyRef struct {
	Key string `json:"key"`
}

type jiraNameRef struct {
	Name string `json:"name"`
}

type jiraIssueResponse struct {
	Key string `json:"key"`
}

// CreateTicket files a ticket and returns the issue key.
func (c *JiraClient) CreateTicket(ctx context.Context, summary, description string) (string, error) {
	if c.cfg.URL == "" || c.cfg.ProjectKey == "" {
		return "", fmt.Errorf("jira not configured")
	}

	payload, err := json.Marshal(jiraIssueRequest{
		Fields: jiraIssueFields{
			Project:     jiraKeyRef{Key: c.cfg.ProjectKey},
			Summary:     summary,
			Description: description,
			IssueType:   jiraNameRef{Name: c.cfg.IssueType},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode jira issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.URL+"/rest/api/2/issue", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("jira returned %d: %s", resp.StatusCode, body)
	}

	var issue jiraIssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", fmt.Errorf("decode jira response: %w", err)
	}
	log.Info().Str("ticket", issue.Key).Msg("jira ticket created")
	return issue.Key, nil
}
