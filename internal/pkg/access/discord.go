package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

const defaultDiscordAPIBaseURL = "https://discord.com/api/v10"

const welcomeMessage = "Добро пожаловать! Роль подписчика выдана, закрытые каналы уже доступны."

// DiscordClient assigns guild roles through the Discord REST API.
type DiscordClient struct {
	BotToken      string
	GuildID       string
	DefaultRoleID string
	APIBaseURL    string

	HTTPClient *http.Client
}

func NewDiscordClientFromEnv() *DiscordClient {
	return &DiscordClient{
		BotToken:      strings.TrimSpace(env.GetEnv("DISCORD_BOT_TOKEN", "")),
		GuildID:       strings.TrimSpace(env.GetEnv("DISCORD_GUILD_ID", "")),
		DefaultRoleID: strings.TrimSpace(env.GetEnv("DISCORD_ROLE_ID", "")),
		APIBaseURL:    strings.TrimSpace(env.GetEnv("DISCORD_API_BASE_URL", defaultDiscordAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether the bot token and guild are set.
func (c *DiscordClient) Configured() bool {
	return c.BotToken != "" && c.GuildID != ""
}

// GrantChatRole adds the role to the guild member. A welcome DM is sent when
// welcome is set; failing to send it does not fail the grant.
func (c *DiscordClient) GrantChatRole(ctx context.Context, discordID, roleID string, welcome bool) error {
	if !c.Configured() {
		return errors.New("discord is not configured")
	}
	if strings.TrimSpace(roleID) == "" {
		roleID = c.DefaultRoleID
	}
	if roleID == "" {
		return errors.New("DISCORD_ROLE_ID is not configured")
	}

	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s",
		url.PathEscape(c.GuildID), url.PathEscape(discordID), url.PathEscape(roleID))
	if _, err := c.do(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, discordID, err)
	}

	if welcome {
		if err := c.sendDirectMessage(ctx, discordID, welcomeMessage); err != nil {
			log.Warnf("[Access] discord welcome message to %s failed: %v", discordID, err)
		}
	}
	return nil
}

func (c *DiscordClient) sendDirectMessage(ctx context.Context, discordID, text string) error {
	body, err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": discordID})
	if err != nil {
		return err
	}
	var channel struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &channel); err != nil || channel.ID == "" {
		return fmt.Errorf("unexpected dm channel response: %s", string(body))
	}
	_, err = c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channel.ID)+"/messages", map[string]string{"content": text})
	return err
}

func (c *DiscordClient) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.APIBaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.BotToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("discord request failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return body, nil
}
