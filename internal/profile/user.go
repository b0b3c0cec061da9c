package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/slotclaim/slotclaim/pkg/utils"
)

// User is the account the tool logs in as.
type User struct {
	Email         string
	Password      string
	ParticipantID string
}

// String masks the password so a User is safe to log or print.
func (u User) String() string {
	return fmt.Sprintf("User{email=%q, password=%q, participant_id=%q}", u.Email, utils.MaskSecret(u.Password), u.ParticipantID)
}

func (u User) Validate() error {
	var errs []error
	if u.Email == "" {
		errs = append(errs, errors.New("email is required"))
	}
	if u.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if u.ParticipantID == "" {
		errs = append(errs, errors.New("participant id is required"))
	}
	return errors.Join(errs...)
}

// Source yields the user profile.
type Source interface {
	Load(ctx context.Context) (User, error)
}

// passwordShift is the fixed offset applied to stored passwords.
const passwordShift = 8

// Rotate shifts every rune of s by n, or by -n when reverse is set. It is
// obfuscation only: anyone with the file can undo it.
func Rotate(s string, n int, reverse bool) string {
	if reverse {
		n = -n
	}
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, r+rune(n))
	}
	return string(out)
}
