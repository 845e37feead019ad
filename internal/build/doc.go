// Package build coordinates build cycles: the Scheduler serializes cycles and
// coalesces change signals, the Service executes one generate-and-publish
// cycle, and Periodic feeds time-based triggers into the Scheduler.
//
// All execution paths (one-shot CLI, watch daemon, tests) route through
// Service.RunCycle so the publish protocol and cycle bookkeeping behave
// identically everywhere.
package build
