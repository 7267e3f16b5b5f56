// Package command defines the tablesync command line.
//
// It uses urfave/cli/v2. Every command loads the configuration, opens the
// configured storage engine, runs against it and closes it again:
//
//   - root.go: application, global flags and per-run session
//   - table.go: get, set, delete, getall, tables
//   - resolve.go: reference resolution across tables
//   - snapshot.go: export, import, snapshots
//   - watch.go: reactive view of one table with metrics and reload
//   - system.go: version, config
package command
