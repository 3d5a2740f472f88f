package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	maxInitDataLen = 4096
	defaultMaxAge  = 24 * time.Hour
	maxClockSkew   = 5 * time.Minute
)

// Telegram validates Telegram WebApp init data signed with the bot token.
type Telegram struct {
	botToken string
	maxAge   time.Duration
	clock    clockwork.Clock
}

func NewTelegram(botToken string, maxAge time.Duration, clock clockwork.Clock) *Telegram {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Telegram{botToken: botToken, maxAge: maxAge, clock: clock}
}

func (t *Telegram) Identify(_ context.Context, initData string) (Identity, error) {
	if len(initData) > maxInitDataLen {
		return Identity{}, fmt.Errorf("init data too long: %w", ErrInvalidInitData)
	}

	values, ok := ValidateInitData(initData, t.botToken, t.maxAge, t.clock.Now())
	if !ok {
		return Identity{}, ErrInvalidInitData
	}

	raw := values.Get("user")
	if raw == "" {
		return Identity{}, ErrMissingUser
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, fmt.Errorf("decode user: %w", err)
	}
	if id.TelegramID == 0 {
		return Identity{}, ErrMissingUser
	}
	id.StartParam = values.Get("start_param")
	return id, nil
}

// ValidateInitData checks the init data hash and that auth_date is within maxAge
// of now. The secret key is HMAC-SHA256("WebAppData", botToken).
func ValidateInitData(initData, botToken string, maxAge time.Duration, now time.Time) (url.Values, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, false
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, false
	}
	values.Del("hash")

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, false
	}
	if !hmac.Equal(Sign(values, botToken), provided) {
		return nil, false
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, false
	}
	age := now.Sub(time.Unix(authDate, 0))
	if age > maxAge || age < -maxClockSkew {
		return nil, false
	}

	return values, true
}

// Sign computes the init data hash for values (without the hash field).
func Sign(values url.Values, botToken string) []byte {
	pairs := make([]string, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, k+"="+strings.Join(v, ""))
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(pairs, "\n")))
	return h.Sum(nil)
}
