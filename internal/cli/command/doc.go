// Package command defines the layerkv command line.
//
//   - run:     open a store, join (or start) the relay and read commands
//   - relay:   serve the relay that connects store processes
//   - status:  query the ops endpoint of a running store
//   - version: print build information
//
// Configuration is layered: defaults, then the YAML file named by --config,
// then LAYERKV_* environment variables, then flags.
package command
