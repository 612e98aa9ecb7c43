// Package provision registers and edits tasks against the record store.
//
// Every operation follows the same cycle: validate input, load the target
// period snapshot, plan in memory, write the whole period back with the loaded
// version. A version conflict reloads and recomputes, up to RetryMax attempts.
// Validation and scheduling failures abort before any write.
package provision
