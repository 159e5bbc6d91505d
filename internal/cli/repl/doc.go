// Package repl implements the interactive command loop of layerkv.
//
//   - repl.go: read, normalise and dispatch lines from the terminal
//   - console.go: the line-atomic stdout shared with background output
//   - history.go: command history persistence
package repl
