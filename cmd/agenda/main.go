// Command agenda talks to the calendar assistant from a terminal and moves
// events in and out of iCalendar files.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/johpaz/smart-calendar-assistant/internal/app"
	"github.com/johpaz/smart-calendar-assistant/internal/calendar"
	"github.com/johpaz/smart-calendar-assistant/internal/config"
	"github.com/johpaz/smart-calendar-assistant/internal/dialogue"
	"github.com/johpaz/smart-calendar-assistant/internal/domain"
)

func main() {
	config.LoadDotEnv()

	cliApp := &cli.App{
		Name:  "agenda",
		Usage: "Chat with Agente Sofía and manage the agenda from the terminal.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			chatCommand(),
			eventsCommand(),
			exportCommand(),
			importCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// open loads configuration and builds the agenda with a stderr logger.
func open(c *cli.Context, opts app.Options) (*app.App, error) {
	level, err := config.ParseLogLevel(c.String("log-level"))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return app.New(c.Context, cfg, logger, opts)
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive conversation.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Value: "cli", Usage: "conversation key to store the session under"},
		},
		Action: func(c *cli.Context) error {
			agenda, err := open(c, app.Options{})
			if err != nil {
				return err
			}
			defer agenda.Close()

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return chat(c.Context, agenda.Router, c.String("user"), os.Stdin, os.Stdout, interactive)
		},
	}
}

// chat reads one message per line until EOF or "/salir".
func chat(ctx context.Context, router *dialogue.Router, user string, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "tú> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/salir" {
			return nil
		}

		reply := router.Handle(ctx, user, line)
		fmt.Fprintf(out, "sofía> %s\n", reply.Message)
		if len(reply.Events) > 0 {
			printEvents(out, reply.Events)
		}
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "List events between two dates (YYYY-MM-DD).",
		ArgsUsage: "START [END]",
		Action: func(c *cli.Context) error {
			start, end, err := rangeArgs(c)
			if err != nil {
				return err
			}
			agenda, err := open(c, app.Options{SkipAssistant: true})
			if err != nil {
				return err
			}
			defer agenda.Close()

			events, err := agenda.Events.QueryRange(c.Context, start, end)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintf(c.App.Writer, "No hay eventos entre %s y %s.\n", start, end)
				return nil
			}
			printEvents(c.App.Writer, events)
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write events between two dates as iCalendar.",
		ArgsUsage: "START [END]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "file to write (default stdout)"},
		},
		Action: func(c *cli.Context) error {
			start, end, err := rangeArgs(c)
			if err != nil {
				return err
			}
			agenda, err := open(c, app.Options{SkipAssistant: true})
			if err != nil {
				return err
			}
			defer agenda.Close()

			events, err := agenda.Events.QueryRange(c.Context, start, end)
			if err != nil {
				return err
			}

			out := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := calendar.Export(out, events, calendar.ExportOptions{Location: agenda.Location}); err != nil {
				if errors.Is(err, calendar.ErrNoEvents) {
					return fmt.Errorf("no events between %s and %s", start, end)
				}
				return err
			}
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Load events from an iCalendar file.",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-occurrences", Value: 500, Usage: "cap on occurrences expanded from one recurring entry"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Show what would be imported without storing it."},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one file")
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			agenda, err := open(c, app.Options{SkipAssistant: true})
			if err != nil {
				return err
			}
			defer agenda.Close()

			parsed, err := calendar.Import(f, calendar.ImportOptions{
				Location:       agenda.Location,
				MaxOccurrences: c.Int("max-occurrences"),
			})
			if err != nil {
				return fmt.Errorf("parse calendar: %w", err)
			}
			for _, s := range parsed.Skipped {
				slog.Warn("Skipped calendar entry", "uid", s.UID, "reason", s.Reason)
			}

			var created, conflicts int
			for _, ne := range parsed.Events {
				if c.Bool("dry-run") {
					fmt.Fprintf(c.App.Writer, "%s\t%s %s-%s\n", ne.Name, ne.Date, ne.Start, ne.End)
					continue
				}
				_, err := agenda.Events.Create(c.Context, ne)
				switch {
				case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidEvent):
					conflicts++
					slog.Warn("Event not imported", "name", ne.Name, "date", ne.Date, "error", err)
				case err != nil:
					return err
				default:
					created++
				}
			}
			fmt.Fprintf(c.App.Writer, "Importados: %d, omitidos: %d, con conflicto: %d\n",
				created, len(parsed.Skipped), conflicts)
			return nil
		},
	}
}

func rangeArgs(c *cli.Context) (domain.Date, domain.Date, error) {
	if c.NArg() < 1 || c.NArg() > 2 {
		return domain.Date{}, domain.Date{}, fmt.Errorf("expected START [END]")
	}
	start, err := domain.ParseDate(c.Args().Get(0))
	if err != nil {
		return domain.Date{}, domain.Date{}, err
	}
	end := start
	if c.NArg() == 2 {
		if end, err = domain.ParseDate(c.Args().Get(1)); err != nil {
			return domain.Date{}, domain.Date{}, err
		}
	}
	return start, end, domain.ValidateRange(start, end)
}

func printEvents(out io.Writer, events []domain.Event) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENTO\tFECHA\tINICIO\tFIN")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Date, e.Start, e.End)
	}
	_ = tw.Flush()
}
