// Package enrollment implements the operator actions on a single
// enrollment: inspection, its delivery history, pause and resume.
//
// Pause and resume are status compare-and-sets and never touch the current
// step, so they compose safely with a scheduler run in flight. A paused
// enrollment can still be exited by a reply, bounce or complaint.
package enrollment
