// Package telegram verifies Mini App init data signed by a Telegram bot.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash = errors.New("init data has no hash")
	ErrBadHash     = errors.New("init data hash mismatch")
	ErrExpired     = errors.New("init data is too old")
)

// Validate checks initData (the raw Telegram.WebApp.initData query string)
// against botToken. When maxAge is positive, auth_date must be no older than
// maxAge relative to now. It returns the parsed fields on success.
func Validate(initData, botToken string, maxAge time.Duration, now time.Time) (url.Values, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("parse init data: %w", err)
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}

	want := Sign(values, botToken)
	if !hmac.Equal([]byte(hash), []byte(want)) {
		return nil, ErrBadHash
	}

	if maxAge > 0 {
		sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse auth_date: %w", err)
		}
		if now.Sub(time.Unix(sec, 0)) > maxAge {
			return nil, ErrExpired
		}
	}
	return values, nil
}

// Sign computes the hex hash Telegram attaches to init data: HMAC-SHA256 of
// the sorted key=value lines (excluding hash), keyed by
// HMAC-SHA256("WebAppData", botToken).
func Sign(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
