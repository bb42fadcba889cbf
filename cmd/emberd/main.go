package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/emberchat/ember/internal/daemon"
	"github.com/emberchat/ember/internal/session"
)

func main() {
	userFlag := flag.String("user", "", "user id (overrides config default)")
	flag.Parse()

	userID := session.Resolve(*userFlag)
	if err := session.ValidateUserID(userID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			UserID: userID,
			Token:  os.Getenv("EMBER_TOKEN"),
		}),
	)

	app.Run()
}
