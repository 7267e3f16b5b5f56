package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/storage/snapshot"
)

// ExportCommand returns the export command.
func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a snapshot of a table (every table with --all)",
		ArgsUsage: "[TABLE]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Export every table and prune old snapshots",
			},
		},
		Action: exportTable,
	}
}

// ImportCommand returns the import command.
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Commit the rows of a snapshot file as the next version of its table",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "table",
				Usage: "Import into this table instead of the one recorded in the file",
			},
		},
		Action: importTable,
	}
}

// SnapshotsCommand returns the snapshots command.
func SnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshots",
		Usage:     "List snapshots, newest first",
		ArgsUsage: "[TABLE]",
		Action:    listSnapshots,
	}
}

func exportTable(c *cli.Context) error {
	s := getSession(c)
	ctx := s.commandContext(c, "export")

	if !c.Bool("all") {
		if err := requireArgs(c, 1, "TABLE"); err != nil {
			return err
		}
	}

	return s.withEngine(ctx, func(e *storage.Engine) error {
		if c.Bool("all") {
			infos, err := e.TriggerSnapshot(ctx)
			if err != nil {
				return err
			}
			return s.print(infos)
		}
		info, err := e.Export(ctx, c.Args().First())
		if err != nil {
			return err
		}
		return s.print(info)
	})
}

func importTable(c *cli.Context) error {
	if err := requireArgs(c, 1, "FILE"); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "import")

	return s.withEngine(ctx, func(e *storage.Engine) error {
		table, info, err := e.Import(ctx, c.Args().First(), c.String("table"))
		if err != nil {
			return err
		}
		name := c.String("table")
		if name == "" {
			name = info.Table
		}
		return s.print(commitView{
			Table:   name,
			Op:      "import",
			Applied: true,
			Version: table.Version(),
		})
	})
}

func listSnapshots(c *cli.Context) error {
	s := getSession(c)
	ctx := s.commandContext(c, "snapshots")

	return s.withEngine(ctx, func(e *storage.Engine) error {
		mgr := e.Snapshots()

		names := c.Args().Slice()
		if len(names) == 0 {
			var err error
			if names, err = mgr.Tables(); err != nil {
				return err
			}
		}

		all := []*snapshot.Info{}
		for _, name := range names {
			infos, err := mgr.List(name)
			if err != nil {
				return err
			}
			all = append(all, infos...)
		}
		return s.print(all)
	})
}
