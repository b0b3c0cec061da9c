package profile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotclaim/slotclaim/internal/secrets"
	pkgsecrets "github.com/slotclaim/slotclaim/pkg/secrets"
)

func sampleUser() User {
	return User{Email: "me@example.com", Password: "hunter2", ParticipantID: "5f1a"}
}

// ─── Rotate ───────────────────────────────────────────────────────────────────

func TestRotate(t *testing.T) {
	assert.Equal(t, "pmttw", Rotate("hello", 8, false))
	assert.Equal(t, "hello", Rotate("pmttw", 8, true))
	assert.Equal(t, "", Rotate("", 8, false))

	for _, s := range []string{"p@ss w0rd!", "ünïcödé", "~~~"} {
		assert.Equal(t, s, Rotate(Rotate(s, 8, false), 8, true), s)
	}
}

// ─── FileStore ────────────────────────────────────────────────────────────────

func TestFileStore_SaveFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	s := NewFileStore(path)
	require.NoError(t, s.Save(context.Background(), sampleUser()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "{\n    \"email\": \"me@example.com\",\n    \"password\": \"p}v|mz:\",\n    \"prolific_id\": \"5f1a\"\n}"
	assert.Equal(t, want, string(data))
	assert.NotContains(t, string(data), "hunter2")
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "user.json"))
	assert.False(t, s.Exists())
	require.NoError(t, s.Save(context.Background(), sampleUser()))
	assert.True(t, s.Exists())

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), got)
}

func TestFileStore_Missing(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "user.json")).Load(context.Background())
	assert.ErrorIs(t, err, ErrNoProfile)
}

func TestFileStore_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"email":"me@example.com"}`), 0o600))
	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")
}

// ─── Prompting ────────────────────────────────────────────────────────────────

type scriptedPrompter struct {
	answers []string
	labels  []string
	secret  []bool
}

func (p *scriptedPrompter) Prompt(label string, secret bool) (string, error) {
	p.labels = append(p.labels, label)
	p.secret = append(p.secret, secret)
	if len(p.answers) == 0 {
		return "", errors.New("no more answers")
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func TestCreateOrLoad_PromptsAndSaves(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "user.json"))
	p := &scriptedPrompter{answers: []string{" me@example.com ", "hunter2", "5f1a"}}

	u, created, err := CreateOrLoad(context.Background(), zap.NewNop(), s, p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, sampleUser(), u)
	assert.Equal(t, []string{"E-mail", "Password", "Prolific ID"}, p.labels)
	assert.Equal(t, []bool{false, true, false}, p.secret, "only the password is hidden")

	loaded, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, u, loaded)
}

func TestCreateOrLoad_LoadsExisting(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "user.json"))
	require.NoError(t, s.Save(context.Background(), sampleUser()))
	p := &scriptedPrompter{}

	u, created, err := CreateOrLoad(context.Background(), zap.NewNop(), s, p)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sampleUser(), u)
	assert.Empty(t, p.labels, "no prompting when the file exists")
}

func TestCreateOrLoad_EmptyAnswerNotSaved(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "user.json"))
	p := &scriptedPrompter{answers: []string{"me@example.com", "", "5f1a"}}

	_, _, err := CreateOrLoad(context.Background(), zap.NewNop(), s, p)
	require.Error(t, err)
	assert.False(t, s.Exists())
}

func TestReaderPrompter(t *testing.T) {
	var out strings.Builder
	p := NewReaderPrompter(strings.NewReader("me@example.com\r\nhunter2\n5f1a"), &out)

	u, err := Ask(p)
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), u)
	assert.Equal(t, "E-mail:\n> Password:\n> Prolific ID:\n> ", out.String())

	_, err = p.Prompt("More", false)
	assert.Error(t, err, "EOF with no data is an error")
}

func TestUserString_MasksPassword(t *testing.T) {
	s := sampleUser().String()
	assert.Contains(t, s, "me@example.com")
	assert.Contains(t, s, "h******")
	assert.NotContains(t, s, "hunter2")
}

// ─── AWSStore ─────────────────────────────────────────────────────────────────

type mapProvider map[string]map[string]string

func (m mapProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return nil, errors.New("secret not found")
}

func TestAWSStore_Load(t *testing.T) {
	provider := mapProvider{"slotclaim/profile": {
		"email":          "me@example.com",
		"password":       "hunter2",
		"participant_id": "5f1a",
	}}
	r := secrets.NewAWSResolver(zap.NewNop(), provider, pkgsecrets.NewCache[User](time.Minute))

	u, err := NewAWSStore(r, "slotclaim/profile").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), u, "secret passwords are not rotated")
}

func TestAWSStore_LegacyKeyAndValidation(t *testing.T) {
	provider := mapProvider{
		"legacy":  {"email": "me@example.com", "password": "hunter2", "prolific_id": "5f1a"},
		"partial": {"email": "me@example.com"},
	}
	r := secrets.NewAWSResolver(zap.NewNop(), provider, pkgsecrets.NewCache[User](time.Minute))

	u, err := NewAWSStore(r, "legacy").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5f1a", u.ParticipantID)

	_, err = NewAWSStore(r, "partial").Load(context.Background())
	assert.Error(t, err)
}
