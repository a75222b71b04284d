// Package sequence implements the drip-sequence execution engine: the pure
// step selector, the dispatcher that hands one step to the email provider,
// and the scheduler that advances every active enrollment once per tick.
//
// The package depends only on the repository and sender interfaces declared
// here. Implementations live in repository/postgres/, repository/memory/ and
// esp/.
package sequence
