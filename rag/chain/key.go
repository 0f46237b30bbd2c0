package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/smallnest/educhat/rag/fusion"
)

// Mode selects the answering style of a chain.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeELI5     Mode = "eli5"
)

// ErrInvalidMode is returned for a mode other than standard or eli5.
var ErrInvalidMode = errors.New("invalid mode: supported modes are standard, eli5")

// ParseMode validates a caller supplied mode. It is case sensitive.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w (got %q)", ErrInvalidMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeStandard || m == ModeELI5
}

// Key identifies a cached chain. Documents is the normalized document set
// encoded as a JSON array, so two requests naming the same documents in any
// order share a chain and no ID can be mistaken for two.
type Key struct {
	SessionID string
	Documents string
	Mode      Mode
}

// NewKey builds the key for a session, document set and mode.
func NewKey(sessionID string, documentIDs []string, mode Mode) Key {
	k := Key{SessionID: sessionID, Mode: mode}
	if ids := fusion.Normalize(documentIDs); len(ids) > 0 {
		b, _ := json.Marshal(ids)
		k.Documents = string(b)
	}
	return k
}

// DocumentIDs returns the sorted document IDs of the key.
func (k Key) DocumentIDs() []string {
	if k.Documents == "" {
		return nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(k.Documents), &ids); err != nil {
		return nil
	}
	return ids
}

// HasDocument reports whether id is part of the key's document set.
func (k Key) HasDocument(id string) bool {
	return slices.Contains(k.DocumentIDs(), id)
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SessionID, strings.Join(k.DocumentIDs(), ","), k.Mode)
}
