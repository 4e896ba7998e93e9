package commands

import (
	"context"
	"errors"
	"fmt"

	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/store"
	"github.com/lqhuy/ferry/internal/ui"
)

// Token executes the token command.
func Token(args []string) error {
	if len(args) == 0 {
		tokenHelp()
		return nil
	}

	switch args[0] {
	case "issue":
		if len(args) != 2 {
			return fmt.Errorf("usage: ferryd token issue <username>")
		}
		return tokenIssue(args[1])
	case "-h", "--help", "help":
		tokenHelp()
		return nil
	default:
		tokenHelp()
		return fmt.Errorf("unknown token subcommand: %s", args[0])
	}
}

func tokenIssue(username string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	token, err := st.IssueToken(context.Background(), username)
	if errors.Is(err, store.ErrUserNotFound) {
		return fmt.Errorf("user %q not found; add one with 'ferryd user add %s'", username, username)
	}
	if err != nil {
		return ferrors.StoreError("issue token", err)
	}

	fmt.Println(token)
	fmt.Println(ui.Colors.Dim + "Clients authenticate with: ferry config set token " + token + ui.Colors.Reset)
	return nil
}

func tokenHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferryd token" + c.Reset + " - Issue bearer tokens")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd token issue" + c.Reset + " <username>")
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  Mints a new opaque token bound to the named user. Tokens never")
	fmt.Println("  expire; revoke by deleting the row from the tokens table.")
}
