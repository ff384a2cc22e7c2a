package ids

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	actorIDRegex = regexp.MustCompile(`^[0-9a-hjkmnp-tv-z]{26}$`)

	ErrInvalidActorID = errors.New("invalid actor id")
)

// NewActorID mints the external identifier for an event or group actor.
// IDs are lowercase ULIDs: URL-safe, sortable, and free of characters
// that trip up remote ActivityPub implementations (no "-" or "_").
func NewActorID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return strings.ToLower(id.String()), nil
}

// ValidateActorID checks that value looks like an ID minted by NewActorID.
func ValidateActorID(value string) error {
	if !actorIDRegex.MatchString(strings.TrimSpace(value)) {
		return ErrInvalidActorID
	}
	return nil
}

// NewMessageHash returns the random hash segment of a message id
// (https://{domain}/{actor}/m/{hash}).
func NewMessageHash() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// NewEditToken returns the secret that authorizes edits and deletion of an
// event or group. Knowing the token is the whole authorization model.
func NewEditToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
