// Package output renders tablesync CLI results.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: aligned text tables for rows, snapshot listings and structs
//   - json.go: indented JSON
//   - yaml.go: YAML, with JSON row values rendered as plain YAML
//
// Row values are stored as raw JSON; every formatter prints them as the
// value they encode rather than as bytes.
package output
