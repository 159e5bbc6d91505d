// Package buildinfo exposes build information for layerkv.
//
// Version data is injected via ldflags:
//
//	go build -ldflags "-X github.com/layerkv/layerkv/internal/infra/buildinfo.Version=v1.0.0"
//
// Fields left unset fall back to what the Go toolchain embedded in the
// binary (module version, VCS revision and time, Go version).
package buildinfo
