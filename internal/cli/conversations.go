package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/internal/conversation"
)

// ConversationsCommand returns a command for conversation administration
func ConversationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "conversations",
		Aliases: []string{"conv"},
		Usage:   "Conversation operations",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List conversations, most recently updated first",
				Action: conversationsListAction,
			},
			{
				Name:      "show",
				Usage:     "Print a conversation",
				ArgsUsage: "<id>",
				Action:    conversationsShowAction,
			},
			{
				Name:      "export",
				Usage:     "Export a conversation to a file",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json, markdown, csv or html"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Destination file (default: export directory)"},
				},
				Action: conversationsExportAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete a conversation",
				ArgsUsage: "<id>",
				Action:    conversationsDeleteAction,
			},
			{
				Name:      "suggest",
				Usage:     "Suggest follow-up questions",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "n", Value: 3, Usage: "Number of suggestions"},
				},
				Action: conversationsSuggestAction,
			},
		},
	}
}

func requireID(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one conversation id")
	}
	return ctx.Args().First(), nil
}

func conversationsListAction(ctx *cli.Context) error {
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	entries, err := c.store.List(ctx.Context)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(ctx.App.Writer, "No conversations")
		return nil
	}
	current, err := c.store.Current(ctx.Context)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTITLE\tMESSAGES\tUPDATED")
	for _, e := range entries {
		marker := ""
		if current != nil && current.ID == e.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, e.ID, e.Title, strconv.Itoa(e.MessageCount), humanize.Time(e.UpdatedAt))
	}
	return tw.Flush()
}

func conversationsShowAction(ctx *cli.Context) error {
	id, err := requireID(ctx)
	if err != nil {
		return err
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	conv, err := c.store.Get(ctx.Context, id)
	if err != nil {
		return err
	}

	w := ctx.App.Writer
	fmt.Fprintf(w, "%s (%s)\n", conv.Title, conv.ID)
	fmt.Fprintf(w, "Created %s, %s %s\n\n", humanize.Time(conv.CreatedAt), humanize.Comma(int64(len(conv.Messages))), plural(len(conv.Messages), "message", "messages"))
	for _, m := range conv.Messages {
		fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content)
		if m.ProcessingTime != nil {
			fmt.Fprintf(w, "  processed in %s seconds\n", strconv.FormatFloat(*m.ProcessingTime, 'f', 2, 64))
		}
	}
	return nil
}

func conversationsExportAction(ctx *cli.Context) error {
	id, err := requireID(ctx)
	if err != nil {
		return err
	}
	format, err := conversation.ParseFormat(ctx.String("format"))
	if err != nil {
		return err
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	path, err := c.store.Export(ctx.Context, id, format, ctx.String("out"))
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, path)
	return nil
}

func conversationsDeleteAction(ctx *cli.Context) error {
	id, err := requireID(ctx)
	if err != nil {
		return err
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	ok, err := c.store.Delete(ctx.Context, id)
	if err != nil && !errors.Is(err, conversation.ErrIndexWrite) {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", conversation.ErrNotFound, id)
	}
	fmt.Fprintf(ctx.App.Writer, "Deleted %s\n", id)
	return err
}

func conversationsSuggestAction(ctx *cli.Context) error {
	id, err := requireID(ctx)
	if err != nil {
		return err
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	questions, err := c.store.SuggestFollowUps(ctx.Context, id, ctx.Int("n"))
	if err != nil {
		return err
	}
	for _, q := range questions {
		fmt.Fprintf(ctx.App.Writer, "- %s\n", q)
	}
	return nil
}
