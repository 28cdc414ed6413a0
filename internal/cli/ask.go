package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/financial_qa/internal/qa"
)

// AskCommand returns a command that answers one question
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a question about the dataset",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "conversation", Usage: "Conversation id (default: start a new one)"},
			&cli.StringFlag{Name: "dataset", Value: "default", Usage: "Dataset id", EnvVars: []string{"DATASET_ID"}},
		},
		Action: askAction,
	}
}

func askAction(ctx *cli.Context) error {
	question := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}
	c, err := loadComponents(ctx)
	if err != nil {
		return err
	}
	answerer, err := qa.NewAnswerer(c.cfg.LLM, c.log)
	if err != nil {
		return err
	}
	session, err := qa.NewSession(c.cache, c.store, ctx.String("dataset"), answerer, qa.WithLogger(c.log))
	if err != nil {
		return err
	}

	reply, err := session.Ask(ctx.Context, question, ctx.String("conversation"))
	if err != nil {
		return err
	}

	w := ctx.App.Writer
	fmt.Fprintln(w, reply.Message.Content)
	source := "computed"
	if reply.FromCache {
		source = "cached"
	}
	if reply.Message.ProcessingTime != nil {
		fmt.Fprintf(w, "\n(%s in %.2fs, conversation %s)\n", source, *reply.Message.ProcessingTime, reply.ConversationID)
	}
	if len(reply.FollowUps) > 0 {
		fmt.Fprintln(w, "\nYou might also ask:")
		for _, q := range reply.FollowUps {
			fmt.Fprintf(w, "- %s\n", q)
		}
	}
	return nil
}
