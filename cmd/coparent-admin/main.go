// Command coparent-admin manages users and accounts directly in the store.
//
//	coparent-admin create-user -email dana@example.com -name Dana
//	coparent-admin create-account -owner dana@example.com -name Home
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"coparent/internal/auth"
	"coparent/internal/backend"
	"coparent/internal/cli"
	"coparent/internal/config"
	"coparent/internal/log"
	"coparent/internal/services"
)

func main() {
	cli.LoadEnvFile()
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: coparent-admin <create-user|create-account> [flags]")
		return errors.New("missing command")
	}

	store, cleanup, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	switch args[0] {
	case "create-user":
		return createUser(ctx, store, args[1:], stdin, stdout, stderr)
	case "create-account":
		return createAccount(ctx, store, args[1:], stdout, stderr)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func openStore(ctx context.Context) (backend.Store, func(), error) {
	bcfg, err := backend.FromAppConfig(config.Load())
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(log.Discard()).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	cleanup := func() {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
	}
	return res.Store, cleanup, nil
}

func createUser(ctx context.Context, store backend.Store, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "Email address used to sign in")
	name := fs.String("name", "", "Display name")
	passwordFlag := fs.String("password", "", "Password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || strings.TrimSpace(*name) == "" {
		fs.PrintDefaults()
		return errors.New("missing required flags: email, name")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	// Register applies the same checks as sign-up through the API.
	tokens := auth.NewTokenIssuer("admin-cli-unused-secret", time.Minute)
	authService := services.NewAuthService(store, tokens, nil, nil, log.Discard())
	session, err := authService.Register(ctx, *email, password, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "User %s created with ID %s\n", session.User.Email, session.User.ID)
	return nil
}

func createAccount(ctx context.Context, store backend.Store, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.SetOutput(stderr)
	owner := fs.String("owner", "", "Email of the owning user")
	name := fs.String("name", "", "Account name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *owner == "" || *name == "" {
		fs.PrintDefaults()
		return errors.New("missing required flags: owner, name")
	}

	u, err := store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(*owner)))
	if err != nil {
		return fmt.Errorf("find owner: %w", err)
	}
	a, err := services.NewAccountService(store, nil, log.Discard()).CreateAccount(ctx, u.ID, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Account %q created with ID %s\n", a.Name, a.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
