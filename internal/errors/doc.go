// Package errors provides structured errors for viewstate.
//
// Every error carries a stable code (e.g. "E101") that maps to a short
// message, a longer explanation and a category. Codes let tests and callers
// match failures with errors.Is without comparing message text.
//
// # Error Categories
//
//   - reactive: programmer errors in the reactivity layer (readonly writes,
//     foreign runtimes, unsupported values). These are raised as panics.
//   - scheduler: propagation problems detected while flushing jobs.
//   - config: invalid binding configuration files.
//   - scenario: invalid replay scenarios.
//   - cli: command line usage errors.
//
// # Usage
//
//	err := errors.New("E101").WithDetail("key \"count\"")
//	fmt.Println(err.FormatCompact())
//	// E101: write to readonly reactive value
//
// Errors created from the same code match each other with errors.Is:
//
//	errors.Is(err, errors.ErrReadonly) // true
package errors
