// Command brewctl manages recipes, inventory, and batches of a
// fermented-beverage production database.
//
// Every command opens the configured store, runs one service operation,
// and closes it again. With the sqlite driver the database file is locked
// for the duration of the command so concurrent invocations cannot
// interleave writes.
package main
