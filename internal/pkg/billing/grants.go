package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/SubGate/app/models"
	"github.com/ManuelReschke/SubGate/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/errgroup"
)

const DefaultGrantTimeout = 15 * time.Second

const (
	SystemChatRole      = "chat_role"
	SystemKnowledgeBase = "knowledge_base"
	SystemFileStorage   = "file_storage"
)

// ChatRoleGranter assigns the subscriber role in the external chat service.
// roleID overrides the default role when the tariff carries one.
type ChatRoleGranter interface {
	GrantChatRole(ctx context.Context, discordID, roleID string, welcome bool) error
}

type KnowledgeBaseGranter interface {
	GrantKnowledgeBaseAccess(ctx context.Context, email string, userID, subscriptionID uint) error
}

type FileStorageGranter interface {
	GrantFileStorageAccess(ctx context.Context, email string, userID, subscriptionID uint) error
}

// GrantResult is the outcome of one external system grant.
type GrantResult struct {
	Attempted bool
	Granted   bool
	Err       error
}

// GrantReport holds the outcome of every system for one payment.
type GrantReport struct {
	ChatRole      GrantResult
	KnowledgeBase GrantResult
	FileStorage   GrantResult
}

// Flags returns prev with every attempted system replaced by its outcome.
// Skipped systems keep the value they had.
func (r GrantReport) Flags(prev models.AccessFlags) models.AccessFlags {
	out := prev
	if r.ChatRole.Attempted {
		out.ChatRole = r.ChatRole.Granted
	}
	if r.KnowledgeBase.Attempted {
		out.KnowledgeBase = r.KnowledgeBase.Granted
	}
	if r.FileStorage.Attempted {
		out.FileStorage = r.FileStorage.Granted
	}
	return out
}

func (r GrantReport) AnyAttempted() bool {
	return r.ChatRole.Attempted || r.KnowledgeBase.Attempted || r.FileStorage.Attempted
}

// Grants runs the three access grants concurrently. A failing, slow or
// panicking system never affects the others.
type Grants struct {
	Chat          ChatRoleGranter
	KnowledgeBase KnowledgeBaseGranter
	FileStorage   FileStorageGranter
	Timeout       time.Duration
}

// GrantAll grants access for the subscription owner. The welcome message of the
// chat service is suppressed on renewals.
func (g *Grants) GrantAll(ctx context.Context, sub *models.Subscription, renewal bool) GrantReport {
	var report GrantReport
	user := sub.User

	var eg errgroup.Group
	if g.Chat != nil && user.HasDiscord() {
		eg.Go(func() error {
			report.ChatRole = g.run(ctx, SystemChatRole, func(ctx context.Context) error {
				return g.Chat.GrantChatRole(ctx, user.DiscordID, sub.Tariff.ChatRoleID, !renewal)
			})
			return nil
		})
	}
	if g.KnowledgeBase != nil && user.HasEmail() {
		eg.Go(func() error {
			report.KnowledgeBase = g.run(ctx, SystemKnowledgeBase, func(ctx context.Context) error {
				return g.KnowledgeBase.GrantKnowledgeBaseAccess(ctx, user.Email, user.ID, sub.ID)
			})
			return nil
		})
	}
	if g.FileStorage != nil && user.HasStorageEmail() {
		eg.Go(func() error {
			report.FileStorage = g.run(ctx, SystemFileStorage, func(ctx context.Context) error {
				return g.FileStorage.GrantFileStorageAccess(ctx, user.StorageEmail, user.ID, sub.ID)
			})
			return nil
		})
	}
	_ = eg.Wait()
	return report
}

// run bounds fn by the grant timeout. A client that ignores its context is
// abandoned once the deadline passes.
func (g *Grants) run(parent context.Context, system string, fn func(ctx context.Context) error) GrantResult {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultGrantTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%s grant panicked: %v", system, r)
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("%s grant: %w", system, ctx.Err())
	}

	if err != nil {
		log.Warnf("[Access] %s grant failed: %v", system, err)
	}
	metrics.AccessGrants.WithLabelValues(system, metrics.Result(err)).Inc()
	return GrantResult{Attempted: true, Granted: err == nil, Err: err}
}
