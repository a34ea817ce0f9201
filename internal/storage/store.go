package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakashimaa/course-store/internal/domain"
)

var ErrNotFound = errors.New("key not found")

const (
	KeyCart          = "cart"
	KeyCartUpdatedAt = "cart_updated_at"
	KeyProfile       = "profile"
	KeyTheme         = "theme"
)

// OrdersKey names the order history bucket of an owner (uid or guest).
func OrdersKey(owner string) string {
	return "orders:" + owner
}

// LocalStore is a key/value namespace per profile. Values are opaque bytes, usually JSON.
type LocalStore interface {
	Get(ctx context.Context, profileID, key string) ([]byte, error)
	Set(ctx context.Context, profileID, key string, value []byte) error
	Delete(ctx context.Context, profileID, key string) error
}

func GetJSON(ctx context.Context, store LocalStore, profileID, key string, dst any) error {
	raw, err := store.Get(ctx, profileID, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}

	return nil
}

func SetJSON(ctx context.Context, store LocalStore, profileID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return store.Set(ctx, profileID, key, raw)
}

func SaveProfile(ctx context.Context, store LocalStore, profileID string, profile domain.UserProfile) error {
	return SetJSON(ctx, store, profileID, KeyProfile, profile)
}

func LoadProfile(ctx context.Context, store LocalStore, profileID string) (domain.UserProfile, error) {
	var profile domain.UserProfile
	err := GetJSON(ctx, store, profileID, KeyProfile, &profile)
	return profile, err
}

func SaveTheme(ctx context.Context, store LocalStore, profileID string, theme domain.Theme) error {
	return store.Set(ctx, profileID, KeyTheme, []byte(theme))
}

// LoadTheme falls back to light when nothing (or garbage) is stored.
func LoadTheme(ctx context.Context, store LocalStore, profileID string) (domain.Theme, error) {
	raw, err := store.Get(ctx, profileID, KeyTheme)
	if errors.Is(err, ErrNotFound) {
		return domain.ThemeLight, nil
	}
	if err != nil {
		return "", err
	}

	theme, err := domain.ParseTheme(string(raw))
	if err != nil {
		return domain.ThemeLight, nil
	}

	return theme, nil
}

func SaveTimestamp(ctx context.Context, store LocalStore, profileID, key string, t time.Time) error {
	return store.Set(ctx, profileID, key, []byte(t.UTC().Format(time.RFC3339Nano)))
}

func LoadTimestamp(ctx context.Context, store LocalStore, profileID, key string) (time.Time, error) {
	raw, err := store.Get(ctx, profileID, key)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", key, err)
	}

	return t, nil
}
