// Package buildinfo reports the tablesync build.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/tablesync/internal/infra/buildinfo.Version=v1.0.0"
//
// When a value is not injected, Get falls back to the module and VCS
// information the Go toolchain embeds in the binary.
package buildinfo
