// Package confloader loads tablesync configuration.
//
// The loader is built on koanf and layers several sources over a
// struct that already holds the defaults:
//
//   - Configuration files: YAML
//   - Environment variables: TABLESYNC_<SECTION>__<KEY>
//   - Maps: command-line flag overrides
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables
//  3. Configuration files
//  4. Default values
//
// Watcher reports configuration file changes through fsnotify so a running
// process can re-read the file.
package confloader
