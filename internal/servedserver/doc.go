// Package servedserver implements served, the package application
// daemon: it runs install/remove transactions through the DOWNLOAD ->
// VERIFY -> APPLY -> COMMIT state machine, and answers get_command
// lookups for the exec wrapper that runs installed commands.
//
// Unlike cvd's one-envelope-per-exchange commands, install and remove
// keep their connection open for the lifetime of the transaction and
// stream transaction_io_progress envelopes ahead of the final result,
// so a caller can render a progress bar.
package servedserver
