package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"igengage/pkg/instagram"
	"igengage/pkg/models"
)

// ErrExit is returned by PromptTarget when the user asks to quit
var ErrExit = errors.New("exit requested")

// Prompter reads answers from the terminal. It implements
// session.CredentialProvider and session.SecondFactorProvider.
type Prompter struct {
	in           *bufio.Reader
	out          io.Writer
	fd           int // -1 when input is not a terminal
	readPassword func(fd int) ([]byte, error)
}

// NewPrompter reads from in and writes questions to out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Prompter{
		in:           bufio.NewReader(in),
		out:          out,
		fd:           fd,
		readPassword: term.ReadPassword,
	}
}

// Stdin prompts on the process terminal
func Stdin() *Prompter {
	return NewPrompter(os.Stdin, os.Stdout)
}

func (p *Prompter) line(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, question)
	input, err := p.in.ReadString('\n')
	if err == io.EOF {
		if input == "" {
			return "", ErrExit
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// hidden reads without echo on a terminal and falls back to a plain line
func (p *Prompter) hidden(ctx context.Context, question string) (string, error) {
	if p.fd < 0 {
		return p.line(ctx, question)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, question)
	secret, err := p.readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

// Account asks for the account name when none was configured
func (p *Prompter) Account(ctx context.Context) (string, error) {
	for {
		name, err := p.line(ctx, "Instagram username: ")
		if err != nil {
			return "", err
		}
		name = instagram.SanitizeUsername(name)
		if instagram.IsValidUsername(name) {
			return name, nil
		}
		fmt.Fprintln(p.out, "Invalid username, try again.")
	}
}

// Credentials implements session.CredentialProvider
func (p *Prompter) Credentials(ctx context.Context, account string) (instagram.Credentials, error) {
	if account == "" {
		var err error
		if account, err = p.Account(ctx); err != nil {
			return instagram.Credentials{}, err
		}
	}

	password, err := p.hidden(ctx, fmt.Sprintf("Password for %s: ", account))
	if err != nil {
		return instagram.Credentials{}, err
	}
	if password == "" {
		return instagram.Credentials{}, errors.New("empty password")
	}
	return instagram.Credentials{Username: account, Password: password}, nil
}

// SecondFactorCode implements session.SecondFactorProvider
func (p *Prompter) SecondFactorCode(ctx context.Context, challenge *instagram.TwoFactorChallenge) (string, error) {
	question := "Verification code: "
	if challenge != nil && challenge.ObfuscatedPhone != "" {
		question = fmt.Sprintf("Verification code sent to %s: ", challenge.ObfuscatedPhone)
	}

	code, err := p.hidden(ctx, question)
	if err != nil {
		return "", err
	}
	code = strings.ReplaceAll(code, " ", "")
	if code == "" {
		return "", errors.New("empty verification code")
	}
	return code, nil
}

// PromptTarget asks for a post URL. It returns ErrExit on "exit" or end of input.
func (p *Prompter) PromptTarget(ctx context.Context) (string, error) {
	for {
		answer, err := p.line(ctx, "\nPost URL (or 'exit'): ")
		if err != nil {
			return "", err
		}
		switch strings.ToLower(answer) {
		case "":
			continue
		case "exit", "quit", "q":
			return "", ErrExit
		default:
			return answer, nil
		}
	}
}

// PromptCaps asks for both caps. Blank keeps def, 0 means no cap.
func (p *Prompter) PromptCaps(ctx context.Context, def models.Caps) (models.Caps, error) {
	likes, err := p.limit(ctx, "Max likes", def.MaxLikes)
	if err != nil {
		return models.Caps{}, err
	}
	comments, err := p.limit(ctx, "Max comments", def.MaxComments)
	if err != nil {
		return models.Caps{}, err
	}
	return models.Caps{MaxLikes: likes, MaxComments: comments}, nil
}

func (p *Prompter) limit(ctx context.Context, label string, def models.Limit) (models.Limit, error) {
	for {
		answer, err := p.line(ctx, fmt.Sprintf("%s [%s, 0 = all]: ", label, def))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		n, err := strconv.Atoi(answer)
		if err == nil {
			return models.LimitFromInput(n), nil
		}
		fmt.Fprintln(p.out, "Please enter a number.")
	}
}

// Confirm asks a yes/no question, defaulting to no
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := p.line(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
