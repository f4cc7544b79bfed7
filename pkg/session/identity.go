package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/duochat/duochat/pkg/logger"
)

// DefaultKey is the storage key the identifier lives under.
const DefaultKey = "userSession"

const (
	suffixLen = 9
	base36    = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// NewID returns a fresh identifier of the form user_<unix-millis>_<9 base36 chars>.
func NewID(now time.Time) (string, error) {
	suffix := make([]byte, suffixLen)
	max := big.NewInt(int64(len(base36)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("session: random suffix: %w", err)
		}
		suffix[i] = base36[n.Int64()]
	}
	return "user_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix), nil
}

// Ensure returns the identifier stored under key, creating and persisting
// one if the key is absent.
func Ensure(ctx context.Context, store Store, key string) (string, error) {
	if key == "" {
		key = DefaultKey
	}
	id, ok, err := store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id, err = NewID(time.Now())
	if err != nil {
		return "", err
	}
	if err := store.Set(ctx, key, id); err != nil {
		return "", err
	}
	logger.InfoCF("session", "Created session identifier", map[string]interface{}{"key": key})
	return id, nil
}

// Reset discards the stored identifier and creates a new one.
func Reset(ctx context.Context, store Store, key string) (string, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := store.Delete(ctx, key); err != nil {
		return "", err
	}
	return Ensure(ctx, store, key)
}
