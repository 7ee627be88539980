// Package reconcile turns a group's expenses and chores into net balances,
// a settlement plan and fairness scores.
//
// Every function here is pure: it reads its arguments, never mutates them,
// performs no I/O and never fails. Amounts are integer cents throughout.
// Ids that do not belong to the member list are ignored.
package reconcile
