// Package cmd implements the command-line interface for the cedar
// key-value store. It provides a hierarchical command structure for
// inspecting and manipulating a store directory from the shell.
//
// The package is organized into subpackages:
//
//   - kv: Commands for key-value store operations (get, set, expire, etc.)
//     plus a local micro-benchmark
//   - util: Shared utilities for command-line processing and configuration
//     (internal use)
//
// See cedar -help for a list of all commands.
package cmd
