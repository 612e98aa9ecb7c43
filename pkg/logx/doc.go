// Package logx wraps zerolog for the provisioner.
//
// Console lines are human readable with a short file:line caller, the log file
// gets JSON lines, and an optional chat sink forwards warnings to Telegram
// under a rate limit. Service.Apply swaps sinks at runtime.
package logx
