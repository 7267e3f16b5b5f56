package command

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tablesync/internal/core/domain"
	"github.com/yndnr/tablesync/internal/core/service"
	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/pkg/lazyseq"
)

// rowView is one row as printed by the CLI.
type rowView struct {
	Table   string          `json:"table"`
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version uint64          `json:"version,omitempty" table:"wide"`
}

// commitView reports a single-key write.
type commitView struct {
	Table   string `json:"table"`
	Key     string `json:"key"`
	Op      string `json:"op"`
	Applied bool   `json:"applied"`
	Version uint64 `json:"version"`
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print the value stored at a key",
		ArgsUsage: "TABLE KEY",
		Action:    tableGet,
	}
}

// SetCommand returns the set command.
func SetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Store a JSON value at a key",
		ArgsUsage: "TABLE KEY JSON",
		Action:    tableSet,
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"del", "rm"},
		Usage:     "Remove a key",
		ArgsUsage: "TABLE KEY",
		Action:    tableDelete,
	}
}

// GetAllCommand returns the getall command.
func GetAllCommand() *cli.Command {
	return &cli.Command{
		Name:      "getall",
		Usage:     "Print several keys; fails if any key is missing",
		ArgsUsage: "TABLE KEY...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum reads in flight (0 = unbounded)",
			},
		},
		Action: tableGetAll,
	}
}

// TablesCommand returns the tables command.
func TablesCommand() *cli.Command {
	return &cli.Command{
		Name:  "tables",
		Usage: "List tables holding at least one version",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rows",
				Usage: "Print every row of every table",
			},
		},
		Action: tableList,
	}
}

func tableGet(c *cli.Context) error {
	if err := requireArgs(c, 2, "TABLE KEY"); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "get")
	name, key := c.Args().Get(0), c.Args().Get(1)

	return s.withEngine(ctx, func(e *storage.Engine) error {
		svc := service.NewTableService(bind[json.RawMessage](s, e, name))
		val, err := svc.Get(ctx, key)
		if err != nil {
			return err
		}
		return s.print(rowView{Table: name, Key: key, Value: val})
	})
}

func tableSet(c *cli.Context) error {
	if err := requireArgs(c, 3, "TABLE KEY JSON"); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "set")
	name, key := c.Args().Get(0), c.Args().Get(1)

	val, err := parseValue(c.Args().Get(2))
	if err != nil {
		return err
	}

	return s.withEngine(ctx, func(e *storage.Engine) error {
		svc := service.NewTableService(bind[json.RawMessage](s, e, name), service.WithEqual(rawEqual))
		res, err := svc.Set(ctx, key, val)
		if err != nil {
			return err
		}
		return s.print(commitView{
			Table:   name,
			Key:     key,
			Op:      "set",
			Applied: res.Applied,
			Version: res.Canonical.Version(),
		})
	})
}

func tableDelete(c *cli.Context) error {
	if err := requireArgs(c, 2, "TABLE KEY"); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "delete")
	name, key := c.Args().Get(0), c.Args().Get(1)

	return s.withEngine(ctx, func(e *storage.Engine) error {
		svc := service.NewTableService(bind[json.RawMessage](s, e, name))
		res, err := svc.Delete(ctx, key)
		if err != nil {
			return err
		}
		return s.print(commitView{
			Table:   name,
			Key:     key,
			Op:      "delete",
			Applied: res.Applied,
			Version: res.Canonical.Version(),
		})
	})
}

func tableGetAll(c *cli.Context) error {
	if err := requireArgs(c, 2, "TABLE KEY..."); err != nil {
		return err
	}
	s := getSession(c)
	ctx := s.commandContext(c, "getall")
	name, keys := c.Args().First(), c.Args().Tail()

	return s.withEngine(ctx, func(e *storage.Engine) error {
		svc := service.NewTableService(bind[json.RawMessage](s, e, name))
		vals, err := service.GetAll[json.RawMessage](ctx, svc, keys, service.WithConcurrency(c.Int("concurrency")))
		if err != nil {
			return err
		}
		pairs := lazyseq.Zip(lazyseq.FromSlice(keys), lazyseq.FromSlice(vals))
		rows := lazyseq.Map(pairs, func(p lazyseq.Pair[string, json.RawMessage]) rowView {
			return rowView{Table: name, Key: p.First, Value: p.Second}
		})
		return s.print(lazyseq.Collect(rows))
	})
}

func tableList(c *cli.Context) error {
	s := getSession(c)
	ctx := s.commandContext(c, "tables")

	return s.withEngine(ctx, func(e *storage.Engine) error {
		names, err := e.Tables(ctx)
		if err != nil {
			return err
		}
		if !c.Bool("rows") {
			return s.print(names)
		}

		var rows []rowView
		for _, name := range names {
			table, err := bind[json.RawMessage](s, e, name).Sync(ctx, nil)
			if err != nil {
				return err
			}
			rows = append(rows, tableRows(name, table)...)
		}
		return s.print(rows)
	})
}

func tableRows(name string, table domain.Table[json.RawMessage]) []rowView {
	rows := make([]rowView, 0, table.Len())
	for _, key := range table.Keys() {
		val, _ := table.Get(key)
		rows = append(rows, rowView{Table: name, Key: key, Value: val, Version: table.Version()})
	}
	return rows
}

// parseValue validates a JSON argument and returns it in the compact,
// HTML-escaped form encoding/json stores.
func parseValue(arg string) (json.RawMessage, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(arg)); err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("value is not JSON: %q", arg)).WithCause(err)
	}
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, compact.Bytes())
	return json.RawMessage(escaped.Bytes()), nil
}

func rawEqual(a, b json.RawMessage) bool {
	return bytes.Equal(a, b)
}
