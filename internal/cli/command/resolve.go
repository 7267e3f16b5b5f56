package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/core/service"
	"github.com/yndnr/tablesync/internal/storage"
)

// ResolveCommand returns the resolve command.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Print a record with its references expanded",
		ArgsUsage: "TABLE KEY",
		Description: `Rows are records whose fields are either {"value": ...} or
{"ref": {"table": ..., "key": ...}}. Every reference is replaced by the
record it points at, recursively. Every table of the backend can be
referenced.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "max-depth",
				Usage: "Maximum reference depth",
				Value: service.DefaultMaxDepth,
			},
		},
		Action: resolve,
	}
}

func resolve(c *cli.Context) error {
	if err := requireArgs(c, 2, "TABLE KEY"); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "resolve")
	ref := domain.Reference{Table: c.Args().Get(0), Key: c.Args().Get(1)}

	return s.withEngine(ctx, func(e *storage.Engine) error {
		names, err := e.Tables(ctx)
		if err != nil {
			return err
		}

		tables := make(service.Tables, len(names))
		for _, name := range names {
			tables[name] = service.NewTableService(bind[domain.Record](s, e, name))
		}

		obj, err := service.ConstructObjectFromTables(ctx, tables, ref, service.WithMaxDepth(c.Int("max-depth")))
		if err != nil {
			return err
		}
		return s.print(obj)
	})
}
