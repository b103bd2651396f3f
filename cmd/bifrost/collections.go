package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
)

func collectionsCommand() *cli.Command {
	return &cli.Command{
		Name:   "collections",
		Usage:  "List stored collections",
		Action: collectionsAction,
	}
}

func collectionsAction(c *cli.Context) error {
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

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENTRIES\tDIMENSION\tCREATED")
	for _, col := range collections {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", col.Name, col.Count, col.Dimension, col.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
