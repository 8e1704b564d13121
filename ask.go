package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question answered from the project's documents",
		Long: `Answer a question using only the documents synced for the project. The
project comes from --project or the nearest document-sync.json. The
answer lists the documents it was drawn from.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the pending request")

	project, err := resolveProjectName(cc.Flags.Project)
	if err != nil {
		return err
	}

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	svc, err := sess.Assistant()
	if err != nil {
		return err
	}

	reply, err := svc.Ask(ctx, strings.Join(args, " "), project)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, reply)
	}

	fmt.Println(renderAnswer(reply.Text, reply.Citations))

	return nil
}

func newQuestionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "questions",
		Short: "Suggest example questions for the project's documents",
		Args:  cobra.NoArgs,
		RunE:  runQuestions,
	}
}

func runQuestions(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger, "the pending request")

	project, err := resolveProjectName(cc.Flags.Project)
	if err != nil {
		return err
	}

	sess, err := NewSession(ctx, cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	svc, err := sess.Assistant()
	if err != nil {
		return err
	}

	questions, err := svc.ExampleQuestions(ctx, project)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, questions)
	}

	fmt.Println(headingStyle.Render("Try asking:"))

	for _, q := range questions {
		fmt.Printf("  - %s\n", q)
	}

	return nil
}
