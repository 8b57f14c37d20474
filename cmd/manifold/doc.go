// Package main hosts the manifold CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the four worker processes, the trigger
// dispatch loop, DA submission, one-shot delivery runs, status inspection,
// and configuration scaffolding. It centralizes configuration resolution,
// process locking, and structured logging setup so subcommands can focus on
// user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
