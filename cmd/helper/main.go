package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
	auth "github.com/valunds/valunds-auth-golang"
	"github.com/valunds/valunds-auth-golang/internal/helpers"
)

func main() {
	app := &cli.App{
		Name: "Valunds Auth Helper",
		Commands: []*cli.Command{
			runGenerateSecret,
			runCheckPassword,
		},
	}

	app.RunAndExitOnError()
}

var runGenerateSecret = &cli.Command{
	Name:  "generate-secret",
	Usage: "generate a cookie signing secret for the web demo",
	Action: func(cmd *cli.Context) error {
		secret, err := helpers.GenerateToken(32)
		if err != nil {
			return err
		}

		fmt.Printf("VALUNDS_COOKIE_SECRET=%s\n", secret)

		return nil
	},
}

var runCheckPassword = &cli.Command{
	Name:      "check-password",
	Usage:     "score a password the way the registration form does",
	ArgsUsage: "<password>",
	Action: func(cmd *cli.Context) error {
		strength := auth.CheckPasswordStrength(cmd.Args().First())

		fmt.Printf("score: %d/5\n", strength.Score)
		if len(strength.Feedback) > 0 {
			fmt.Printf("feedback: %s\n", strings.Join(strength.Feedback, ", "))
		}

		return nil
	},
}
