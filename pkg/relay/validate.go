package relay

import (
	"regexp"

	"github.com/pkg/errors"
)

const MaxRoomNameLength = 128

var (
	ErrInvalidRoom = errors.New("invalid room name")

	roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ValidateRoom accepts 1 to 128 ASCII letters, digits or underscores.
func ValidateRoom(name string) error {
	if name == "" || len(name) > MaxRoomNameLength {
		return errors.Wrapf(ErrInvalidRoom, "length must be between 1 and %d", MaxRoomNameLength)
	}
	if !roomNamePattern.MatchString(name) {
		return errors.Wrapf(ErrInvalidRoom, "%q contains characters outside [A-Za-z0-9_]", name)
	}
	return nil
}
