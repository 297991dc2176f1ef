package returns

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// kvStore is the durable key-value surface the draft store needs.
type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ReturnDraftKey(orderID string) string
}

// Store persists return drafts, one JSON array per order id.
type Store struct {
	kv   kvStore
	ttl  time.Duration
	logg *logger.Logger
}

// NewStore builds a draft store. A zero ttl keeps drafts until cleared.
func NewStore(kv kvStore, ttl time.Duration, logg *logger.Logger) (*Store, error) {
	if kv == nil {
		return nil, errors.New("key-value store required")
	}
	return &Store{kv: kv, ttl: ttl, logg: logg}, nil
}

// Load returns the order's draft, empty when none is stored. A value that cannot be
// decoded is deleted and read as an empty draft.
func (s *Store) Load(ctx context.Context, orderID string) ([]DraftItem, error) {
	key, err := s.key(orderID)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return []DraftItem{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return draft")
	}

	var items []DraftItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID), map[string]any{
				"error": err.Error(),
			}), "discarding unreadable return draft")
		}
		if delErr := s.kv.Del(ctx, key); delErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, delErr, "clear return draft")
		}
		return []DraftItem{}, nil
	}
	return sanitize(items), nil
}

// Save stores the draft. Saving an empty draft clears it instead of storing [].
func (s *Store) Save(ctx context.Context, orderID string, items []DraftItem) error {
	if len(items) == 0 {
		return s.Clear(ctx, orderID)
	}
	key, err := s.key(orderID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode return draft")
	}
	if err := s.kv.Set(ctx, key, string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save return draft")
	}
	return nil
}

// Clear removes the order's draft.
func (s *Store) Clear(ctx context.Context, orderID string) error {
	key, err := s.key(orderID)
	if err != nil {
		return err
	}
	if err := s.kv.Del(ctx, key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear return draft")
	}
	return nil
}

func (s *Store) key(orderID string) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.kv.ReturnDraftKey(orderID), nil
}
