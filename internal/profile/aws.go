package profile

import (
	"context"

	"github.com/slotclaim/slotclaim/internal/secrets"
)

// AWSStore reads the profile from a Secrets Manager secret shaped as
// {"email", "password", "participant_id"}. The password is stored as-is.
type AWSStore struct {
	resolver   *secrets.AWSResolver[User]
	secretName string
}

func NewAWSStore(resolver *secrets.AWSResolver[User], secretName string) *AWSStore {
	return &AWSStore{resolver: resolver, secretName: secretName}
}

func (s *AWSStore) Load(ctx context.Context) (User, error) {
	return s.resolver.Resolve(ctx, s.secretName, parseSecret)
}

func parseSecret(m map[string]string) (User, error) {
	u := User{
		Email:         m["email"],
		Password:      m["password"],
		ParticipantID: m["participant_id"],
	}
	if u.ParticipantID == "" {
		u.ParticipantID = m["prolific_id"]
	}
	return u, u.Validate()
}
