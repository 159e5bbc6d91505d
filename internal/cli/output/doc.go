// Package output renders command results for the layerkv CLI.
//
// Results can be printed as a table (the default), JSON or YAML. JSON and
// YAML share field names: the YAML formatter goes through the JSON encoding,
// so `json` struct tags apply to both.
package output
