// Package main hosts the bookshelf CLI.
//
// Commands talk to the daemon over its HTTP API: content scans and taxonomy
// syncs stream their progress back to the terminal, while library, rules and
// model commands are simple request/response calls. Configuration resolution
// and the daemon address live in commandContext so subcommands only deal
// with presentation.
package main
