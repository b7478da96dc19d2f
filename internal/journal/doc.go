// Package journal stores the bay's event history in the bay_events table.
//
// The controller never reads the journal back; it exists for operators and
// for post-incident analysis. Writes go through Writer, which queues entries
// and inserts them from its own goroutine so the control loop never waits on
// the disk.
package journal
