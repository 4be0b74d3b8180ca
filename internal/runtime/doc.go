// Package runtime is the process-local hosting runtime for one node.
//
// A System wraps one protoactor actor system and hosts named units on it. Each
// unit is an actor with an unbounded FIFO mailbox, so a unit never handles two
// messages at once and handles them in the order they were told.
//
// Lifecycle of a unit:
// - PreStart (optional) runs on the unit before the first message
//
// - messages are handled one at a time
//
// - Stop poisons the unit: messages queued before it are handled, messages told
// after the unit has stopped become dead letters
//
// - PostStop (optional) runs last, then Done is closed
//
// Terminate stops every unit and waits for all of them.
package runtime
