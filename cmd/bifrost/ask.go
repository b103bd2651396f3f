package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question about the captured detections",
		ArgsUsage: "[question]",
		Action:    askAction,
	}
}

func askAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collections, err := db.Index().ListCollections(c.Context)
	if err != nil {
		return err
	}
	names := make([]string, len(collections))
	for i, col := range collections {
		names[i] = col.Name
	}
	fmt.Fprintf(c.App.Writer, "Available collections: %s\n", strings.Join(names, ", "))

	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		fmt.Fprint(c.App.Writer, "Ask a question about the captured data: ")
		reader := bufio.NewReader(c.App.Reader)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return errors.New("a question is required")
		}
		question = strings.TrimSpace(line)
	}
	if question == "" {
		return errors.New("a question is required")
	}

	retriever, err := db.NewRetriever(cfg.RetrievalOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	resp, err := retriever.Answer(c.Context, question)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Context: %s\n", resp.Context)
	fmt.Fprintf(c.App.Writer, "Answer: %s\n", resp.Answer)
	return nil
}
