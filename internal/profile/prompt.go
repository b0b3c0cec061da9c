package profile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Prompter asks the operator for a single value.
type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// TermPrompter reads answers from a terminal, hiding secret input when the
// input is a TTY.
type TermPrompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func NewTermPrompter(in *os.File, out io.Writer) *TermPrompter {
	fd := int(in.Fd())
	return &TermPrompter{
		in:  bufio.NewReader(in),
		out: out,
		fd:  fd,
		tty: term.IsTerminal(fd),
	}
}

// NewReaderPrompter reads answers line by line from r; nothing is hidden.
func NewReaderPrompter(r io.Reader, out io.Writer) *TermPrompter {
	return &TermPrompter{in: bufio.NewReader(r), out: out, fd: -1}
}

func (p *TermPrompter) Prompt(label string, secret bool) (string, error) {
	fmt.Fprintf(p.out, "%s:\n> ", label)
	if secret && p.tty {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Ask collects a full profile from the operator.
func Ask(p Prompter) (User, error) {
	var u User
	var err error
	if u.Email, err = p.Prompt("E-mail", false); err != nil {
		return User{}, err
	}
	if u.Password, err = p.Prompt("Password", true); err != nil {
		return User{}, err
	}
	if u.ParticipantID, err = p.Prompt("Prolific ID", false); err != nil {
		return User{}, err
	}
	u.Email = strings.TrimSpace(u.Email)
	u.ParticipantID = strings.TrimSpace(u.ParticipantID)
	return u, u.Validate()
}

// CreateOrLoad loads the profile file, or prompts for a new profile and
// saves it when the file does not exist. created reports the latter.
func CreateOrLoad(ctx context.Context, logger *zap.Logger, store *FileStore, p Prompter) (u User, created bool, err error) {
	u, err = store.Load(ctx)
	if err == nil {
		logger.Info("profile.loaded", zap.String("path", store.Path()), zap.String("email", u.Email))
		return u, false, nil
	}
	if !errors.Is(err, ErrNoProfile) {
		return User{}, false, err
	}

	u, err = Ask(p)
	if err != nil {
		return User{}, false, fmt.Errorf("read profile: %w", err)
	}
	if err := store.Save(ctx, u); err != nil {
		return User{}, false, err
	}
	logger.Info("profile.created", zap.String("path", store.Path()), zap.String("email", u.Email))
	return u, true, nil
}
