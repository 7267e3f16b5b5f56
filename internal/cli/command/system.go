package command

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tablesync/internal/config"
	"github.com/yndnr/tablesync/internal/infra/buildinfo"
)

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return getSession(c).print(buildinfo.Get())
		},
	}
}

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration with secrets masked",
		Action: func(c *cli.Context) error {
			s := getSession(c)
			return s.print(config.Sanitize(s.cfg))
		},
		Subcommands: []*cli.Command{
			{
				Name:  "schema",
				Usage: "Print the JSON Schema of the configuration file",
				Action: func(c *cli.Context) error {
					enc := json.NewEncoder(c.App.Writer)
					enc.SetIndent("", "  ")
					return enc.Encode(config.Schema())
				},
			},
		},
	}
}
