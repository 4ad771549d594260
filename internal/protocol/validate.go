package protocol

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Length bounds for join requests.
const (
	MaxRoomIDLength   = 100
	MaxNicknameLength = 50
)

// ErrInvalidJoin is wrapped by every JoinRequest validation failure.
var ErrInvalidJoin = errors.New("invalid join request")

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks the request bounds without touching any state.
func (r JoinRequest) Validate() error {
	switch n := utf8.RuneCountInString(r.RoomID); {
	case n == 0:
		return fmt.Errorf("%w: roomId is required", ErrInvalidJoin)
	case n > MaxRoomIDLength:
		return fmt.Errorf("%w: roomId exceeds %d characters", ErrInvalidJoin, MaxRoomIDLength)
	}

	switch n := utf8.RuneCountInString(r.Nickname); {
	case n == 0:
		return fmt.Errorf("%w: nickname is required", ErrInvalidJoin)
	case n > MaxNicknameLength:
		return fmt.Errorf("%w: nickname exceeds %d characters", ErrInvalidJoin, MaxNicknameLength)
	}

	if r.Color != "" && !colorPattern.MatchString(r.Color) {
		return fmt.Errorf("%w: color must be #RRGGBB", ErrInvalidJoin)
	}
	return nil
}
