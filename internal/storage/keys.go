package storage

import (
	"fmt"
)

// directScope replaces the guild segment for direct messages
const directScope = "dm"

// Keys generates Redis keys with consistent naming
type Keys struct {
	prefix string
}

// NewKeys creates a new Keys generator
func NewKeys(prefix string) *Keys {
	return &Keys{prefix: prefix}
}

// RateLimitMinute returns the key for per-minute rate limiting
func (k *Keys) RateLimitMinute(guildID, userID string) string {
	return fmt.Sprintf("%s%s:ratelimit:%s:minute", k.prefix, scope(guildID), userID)
}

// RateLimitHour returns the key for per-hour rate limiting
func (k *Keys) RateLimitHour(guildID, userID string) string {
	return fmt.Sprintf("%s%s:ratelimit:%s:hour", k.prefix, scope(guildID), userID)
}

func scope(guildID string) string {
	if guildID == "" {
		return directScope
	}
	return guildID
}
