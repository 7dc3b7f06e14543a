// Package buildinfo exposes build-time version information for the ussal
// binaries.
//
// Version, Commit and BuildTime are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/ussal-go/internal/infra/buildinfo.Version=v1.0.0"
//
// Fields left unset fall back to the module build info embedded by the Go
// toolchain.
package buildinfo
