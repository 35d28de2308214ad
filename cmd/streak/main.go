// Command streak drives the engine from a terminal with a personal access
// token instead of the browser sign-in:
//
//	streak sync                 refresh from GitHub and print the streak
//	streak status               print the streak (refreshes when stale)
//	streak day 2024-01-05       list one day's commits
//	streak timezone -- -300     set the UTC offset in minutes
//
// Every command resolves the token's GitHub account first, so the local
// database always holds the user and their credential.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/sakif/commit-streak/internal/app"
	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/config"
	"github.com/sakif/commit-streak/internal/model"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "reading .env: %v\n", err)
		os.Exit(1)
	}

	cliApp := &cli.App{
		Name:  "streak",
		Usage: "Track your daily GitHub commit streak",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				Aliases: []string{"t"},
				Usage:   "GitHub personal access token",
				EnvVars: []string{"GITHUB_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"CONFIG_PATH"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log requests and retries to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "fetch new commits from GitHub and update the streak",
				Action: withSession(runSync),
			},
			{
				Name:   "status",
				Usage:  "show the current streak",
				Action: withSession(runStatus),
			},
			{
				Name:      "day",
				Usage:     "list the commits of one day",
				ArgsUsage: "<YYYY-MM-DD>",
				Action:    withSession(runDay),
			},
			{
				Name:      "timezone",
				Usage:     "set the UTC offset (minutes) days are counted in",
				ArgsUsage: "<minutes>",
				Action:    withSession(runTimezone),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// session is what every command works with: the wired app and the user the
// token belongs to.
type session struct {
	app  *app.App
	user *model.User
	out  io.Writer
}

func withSession(fn func(ctx context.Context, c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		token := c.String("token")
		if token == "" {
			return cli.Exit("a GitHub token is required (--token or GITHUB_TOKEN)", 2)
		}

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if c.Bool("verbose") {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		a, err := app.New(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		user, err := connect(ctx, a, token)
		if err != nil {
			return err
		}
		return fn(ctx, c, &session{app: a, user: user, out: os.Stdout})
	}
}

// connect resolves the token's account and stores it with the token.
func connect(ctx context.Context, a *app.App, token string) (*model.User, error) {
	client, err := a.Clients.For(model.Credential{Token: token})
	if err != nil {
		return nil, err
	}
	ghUser, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}
	return a.Auth.Connect(ctx, &auth.GitHubUser{
		ID:        ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}, token)
}

func runSync(ctx context.Context, c *cli.Context, s *session) error {
	res, err := s.app.Activity.Refresh(ctx, s.user.ID)
	if err != nil {
		return err
	}
	printStreak(s.out, s.user, res)
	return nil
}

func runStatus(ctx context.Context, c *cli.Context, s *session) error {
	res, err := s.app.Activity.GetStreak(ctx, s.user.ID)
	if err != nil {
		return err
	}
	printStreak(s.out, s.user, res)
	return nil
}

func runDay(ctx context.Context, c *cli.Context, s *session) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: streak day <YYYY-MM-DD>", 2)
	}
	res, err := s.app.Activity.GetCommitsForDay(ctx, s.user.ID, c.Args().First())
	if err != nil {
		return err
	}
	printDay(s.out, res)
	return nil
}

func runTimezone(ctx context.Context, c *cli.Context, s *session) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: streak timezone <minutes>", 2)
	}
	minutes, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("offset must be whole minutes, got %q", c.Args().First()), 2)
	}
	user, err := s.app.Activity.SetTimezone(ctx, s.user.ID, minutes)
	if err != nil {
		return err
	}
	printTimezone(s.out, user)
	return nil
}
