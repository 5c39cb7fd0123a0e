package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/protocol"
)

type languageToolChecker struct {
	endpoint string
	language string
	client   *http.Client
}

// NewLanguageToolChecker talks to a LanguageTool server's /v2/check endpoint.
func NewLanguageToolChecker(cfg config.GrammarConfig) Checker {
	return &languageToolChecker{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		language: cfg.Language,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

type ltResponse struct {
	Matches []ltMatch `json:"matches"`
}

type ltMatch struct {
	Message      string `json:"message"`
	Offset       int    `json:"offset"`
	Length       int    `json:"length"`
	Replacements []struct {
		Value string `json:"value"`
	} `json:"replacements"`
	Context struct {
		Text string `json:"text"`
	} `json:"context"`
	Rule struct {
		ID        string `json:"id"`
		IssueType string `json:"issueType"`
	} `json:"rule"`
}

func (c *languageToolChecker) Check(ctx context.Context, text string) ([]protocol.GrammarIssue, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v2/check", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grammar check unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("grammar check unavailable: languagetool returned status %s", resp.Status)
	}

	var decoded ltResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode languagetool response: %w", err)
	}

	issues := make([]protocol.GrammarIssue, 0, len(decoded.Matches))
	for _, match := range decoded.Matches {
		issue := protocol.GrammarIssue{
			Offset:   match.Offset,
			Length:   match.Length,
			Message:  match.Message,
			RuleID:   match.Rule.ID,
			Category: classifyMatch(match),
			Context:  match.Context.Text,
		}
		for _, replacement := range match.Replacements {
			issue.Replacements = append(issue.Replacements, replacement.Value)
		}
		issues = append(issues, issue)
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Offset < issues[j].Offset })
	return issues, nil
}

func classifyMatch(match ltMatch) string {
	if match.Rule.IssueType == "misspelling" {
		return protocol.CategoryTypos
	}
	return Classify(match.Rule.ID, match.Message)
}
