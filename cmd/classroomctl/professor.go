package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/repository"
	"github.com/stemsi/exstem-classroom/internal/service"
	"golang.org/x/term"
)

const minPasswordLen = 6

func createProfessorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-professor",
		Short: "Create a professor account (prompts for anything not given)",
		RunE:  runCreateProfessor,
	}
	f := cmd.Flags()
	f.String("name", "", "Display name")
	f.String("email", "", "Login email")
	f.String("password", "", "Password (or CLASSROOM_PASSWORD); prompted without echo when empty")
	return cmd
}

func runCreateProfessor(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "=== Create Professor ===")

	name, err := valueOrPrompt(in, out, v.GetString("name"), "Name: ")
	if err != nil {
		return err
	}
	email, err := valueOrPrompt(in, out, v.GetString("email"), "Email: ")
	if err != nil {
		return err
	}
	password := v.GetString("password")
	if password == "" {
		fmt.Fprint(out, "Password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}

	ctx := cmd.Context()
	e, err := connect(ctx, false)
	if err != nil {
		return err
	}
	defer e.close()

	professors := repository.NewProfessorRepository(e.docs)
	auth := service.NewAuthService(e.cfg, nil, professors)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	p := &model.Professor{Name: name, Email: email, PasswordHash: hash}
	if err := professors.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("a professor with email %s already exists", email)
		}
		return err
	}

	fmt.Fprintf(out, "Created professor %q (%s) with id %s\n", p.Name, p.Email, p.ID)
	return nil
}

// valueOrPrompt returns v when set, otherwise reads one non-empty line.
func valueOrPrompt(in *bufio.Reader, out io.Writer, v, label string) (string, error) {
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(label, ": "))
	}
	return line, nil
}
