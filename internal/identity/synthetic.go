package identity

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
)

// Synthetic issues demo identities without any signature check. Init data, when it
// carries a user, is trusted as is; otherwise a random id is generated.
type Synthetic struct{}

func NewSynthetic() *Synthetic { return &Synthetic{} }

func (Synthetic) Identify(_ context.Context, initData string) (Identity, error) {
	id := Identity{Username: "demo_user", FirstName: "Demo", Synthetic: true}

	if values, err := url.ParseQuery(initData); err == nil {
		if raw := values.Get("user"); raw != "" {
			var claimed Identity
			if json.Unmarshal([]byte(raw), &claimed) == nil && claimed.TelegramID > 0 {
				claimed.Synthetic = true
				claimed.StartParam = values.Get("start_param")
				return claimed, nil
			}
		}
		id.StartParam = values.Get("start_param")
	}

	id.TelegramID = randomID()
	return id, nil
}

// randomID is a positive id in [1, 1_000_000], the range demo users get.
func randomID() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[:8])%1_000_000) + 1
}
