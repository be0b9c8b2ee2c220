// Package enrollment implements enrollment accounting: the state machine
// that turns verified provider events into status transitions and counter
// increments, plus the lifecycle operations used by the workflow
// orchestrator (create, correlate, pause, resume, complete, advance).
//
// The central correctness property lives here: counter updates are expressed
// as a single conditional repository operation, never read-modify-write in
// application code. Terminal statuses (bounced, unsubscribed) absorb all
// later events without mutating anything.
//
// Repository implementations live in repository/postgres/.
package enrollment
