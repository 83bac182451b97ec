package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
)

// KnowledgeBaseClient requests workspace invites from the knowledge-base service.
type KnowledgeBaseClient struct {
	InviteURL string
	APIToken  string

	HTTPClient *http.Client
}

func NewKnowledgeBaseClientFromEnv() *KnowledgeBaseClient {
	return &KnowledgeBaseClient{
		InviteURL: strings.TrimSpace(env.GetEnv("KB_INVITE_URL", "")),
		APIToken:  strings.TrimSpace(env.GetEnv("KB_API_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *KnowledgeBaseClient) Configured() bool {
	return c.InviteURL != ""
}

type knowledgeBaseInvite struct {
	Email          string `json:"email"`
	UserID         uint   `json:"user_id"`
	SubscriptionID uint   `json:"subscription_id"`
}

// GrantKnowledgeBaseAccess sends an invite for email. The service answers 409
// when the address is already a member, which counts as granted.
func (c *KnowledgeBaseClient) GrantKnowledgeBaseAccess(ctx context.Context, email string, userID, subscriptionID uint) error {
	if !c.Configured() {
		return errors.New("KB_INVITE_URL is not configured")
	}
	payload, err := json.Marshal(knowledgeBaseInvite{Email: email, UserID: userID, SubscriptionID: subscriptionID})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.InviteURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return fmt.Errorf("knowledge base invite failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
