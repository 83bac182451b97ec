package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuelReschke/SubGate/internal/pkg/cache"
	"github.com/gofiber/fiber/v2/log"
)

const (
	operatorsCacheKey = "operators:chat_ids"
	operatorsCacheTTL = 5 * time.Minute
)

// OperatorDirectory resolves operator chat ids, caching the list so a burst of
// notifications does not query the users table each time.
type OperatorDirectory struct {
	users UserRepository
	store cache.Store
}

func NewOperatorDirectory(users UserRepository, store cache.Store) *OperatorDirectory {
	return &OperatorDirectory{users: users, store: store}
}

// OperatorChatIDs returns the Telegram chat ids of all operators.
func (d *OperatorDirectory) OperatorChatIDs(ctx context.Context) ([]int64, error) {
	if d.store != nil {
		b, err := d.store.Get(ctx, operatorsCacheKey)
		if err == nil {
			var ids []int64
			if json.Unmarshal(b, &ids) == nil {
				return ids, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("[Billing] operator cache read failed: %v", err)
		}
	}

	users, err := d.users.ListOperators(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(users))
	for i := range users {
		if users[i].IsOperator() {
			ids = append(ids, *users[i].TelegramID)
		}
	}

	if d.store != nil {
		b, _ := json.Marshal(ids)
		if err := d.store.Set(ctx, operatorsCacheKey, b, operatorsCacheTTL); err != nil {
			log.Warnf("[Billing] operator cache write failed: %v", err)
		}
	}
	return ids, nil
}
