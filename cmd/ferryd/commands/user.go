package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/lqhuy/ferry/internal/config"
	ferrors "github.com/lqhuy/ferry/internal/errors"
	"github.com/lqhuy/ferry/internal/store"
	"github.com/lqhuy/ferry/internal/ui"
)

// User executes the user command.
func User(args []string) error {
	if len(args) == 0 {
		userHelp()
		return nil
	}

	switch args[0] {
	case "add":
		return userAdd(args[1:])
	case "list":
		return userList()
	case "-h", "--help", "help":
		userHelp()
		return nil
	default:
		userHelp()
		return fmt.Errorf("unknown user subcommand: %s", args[0])
	}
}

func userAdd(args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	password := fs.String("password", "", "optional password for the downstream web login")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ferryd user add <username> [--password <pw>]")
	}
	username := fs.Arg(0)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.CreateUser(context.Background(), username, *password)
	if errors.Is(err, store.ErrUserExists) {
		return fmt.Errorf("user %q already exists", username)
	}
	if err != nil {
		return ferrors.StoreError("create user", err)
	}

	fmt.Printf("Created user %s (id %d)\n", username, id)
	fmt.Println(ui.Colors.Dim + "Issue a client token with: ferryd token issue " + username + ui.Colors.Reset)
	return nil
}

func userList() error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return ferrors.StoreError("list users", err)
	}
	if len(users) == 0 {
		fmt.Println("No users yet. Add one with 'ferryd user add <username>'.")
		return nil
	}
	for _, u := range users {
		fmt.Printf("%4d  %-24s %s\n", u.ID, u.Username, u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// openStore opens the relay database named in the configuration.
func openStore() (*store.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, ferrors.ConfigError("Failed to load configuration", err)
	}
	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, ferrors.StoreError("open database", err)
	}
	return st, nil
}

func userHelp() {
	c := ui.Colors
	fmt.Println(c.Bold + c.Green + "ferryd user" + c.Reset + " - Manage relay accounts")
	fmt.Println()
	fmt.Println(c.Bold + "Usage:" + c.Reset)
	fmt.Println("  " + c.Green + "ferryd user add" + c.Reset + " <username> [--password <pw>]")
	fmt.Println("  " + c.Green + "ferryd user list" + c.Reset)
	fmt.Println()
	fmt.Println(c.Bold + "Description:" + c.Reset)
	fmt.Println("  Accounts authenticate clients through bearer tokens; the optional")
	fmt.Println("  password is only used by the downstream web login.")
}
