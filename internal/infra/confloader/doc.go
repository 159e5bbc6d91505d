// Package confloader loads layerkv configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Command-line flags (LoadMap / WithFlags)
//  2. LAYERKV_ environment variables
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Watcher reports changes to the configuration file so that reloadable
// settings such as the log level can be applied without a restart.
package confloader
