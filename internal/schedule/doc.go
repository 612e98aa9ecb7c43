// Package schedule computes delivery dates for subtasks.
//
// Allocator finds the latest business day at or before a base date that still
// has capacity for a kind. Planner staggers a task's kinds backward from its
// deadline in precedence order and runs the allocator for each.
//
// Both are pure: they read the period's records and never write. Callers
// persist the resulting records as one all-or-nothing document write.
package schedule
