package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/service"
)

var (
	bold    = color.New(color.Bold)
	green   = color.New(color.FgGreen, color.Bold)
	yellow  = color.New(color.FgYellow)
	red     = color.New(color.FgRed, color.Bold)
	cyan    = color.New(color.FgCyan)
	faint   = color.New(color.Faint)
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
)

func printStreak(w io.Writer, user *model.User, res *service.StreakResult) {
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("GitHub:"), user.Login)
	fmt.Fprintf(w, "%s %s (UTC%s)\n", bold.Sprint("Today:"), res.Today, formatOffset(user.UTCOffsetMinutes))

	switch {
	case res.Current == 0 && res.Broken:
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Current streak:"), red.Sprint("0 days, streak broken"))
	case res.Current == 0:
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Current streak:"), yellow.Sprint("0 days"))
	default:
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Current streak:"), green.Sprint(plural(res.Current, "day")))
	}
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Longest streak:"), plural(res.State.LongestStreak, "day"))
	if !res.State.LastActiveDay.IsZero() {
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("Last active:"), res.State.LastActiveDay)
	}

	if res.AtRisk {
		yellow.Fprintln(w, "No commits yet today: commit before midnight to keep the streak.")
	}
	if res.Stale {
		yellow.Fprintln(w, "GitHub could not be reached; showing the last known streak.")
	}
	if res.Partial {
		yellow.Fprintln(w, "Some repositories could not be read; recent days may be incomplete.")
	}
}

func printDay(w io.Writer, res *service.DayResult) {
	fmt.Fprintf(w, "%s %s  %s %s\n",
		bold.Sprint(res.Date),
		plural(len(res.Commits), "commit"),
		success.Sprintf("+%d", res.Additions),
		failure.Sprintf("-%d", res.Deletions),
	)
	for _, c := range res.Commits {
		fmt.Fprintf(w, "  %s %s %s %s\n",
			faint.Sprint(c.AuthoredAt.Format(time.Kitchen)),
			cyan.Sprint(shortSHA(c.SourceID)),
			c.Repository,
			firstLine(c.Message),
		)
	}
	if !res.Complete {
		faint.Fprintln(w, "(day not final yet)")
	}
	if res.Stale || res.Partial {
		yellow.Fprintln(w, "Some commits may be missing: GitHub could not be fully read.")
	}
}

func printTimezone(w io.Writer, user *model.User) {
	fmt.Fprintf(w, "Days are now counted in UTC%s.\n", formatOffset(user.UTCOffsetMinutes))
}

// printError turns the engine's error kinds into advice.
func printError(err error) {
	msg := err.Error()
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrCredentialInvalid):
		msg = "GitHub rejected the token. Create a new one with the repo scope."
	case errors.Is(err, apperror.ErrRateLimitExceeded) && errors.As(err, &appErr) && !appErr.RetryAt.IsZero():
		msg = fmt.Sprintf("GitHub rate limit exhausted; try again after %s.", appErr.RetryAt.Local().Format(time.Kitchen))
	case errors.Is(err, apperror.ErrUpstreamUnavailable):
		msg = "GitHub is not responding right now; try again later."
	case errors.As(err, &appErr) && appErr.Message != "":
		msg = appErr.Message
	}
	red.Fprintf(os.Stderr, "error: ")
	fmt.Fprintln(os.Stderr, msg)
}

// formatOffset renders minutes as ±HH:MM.
func formatOffset(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("%s%02d:%02d", sign, minutes/60, minutes%60)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
