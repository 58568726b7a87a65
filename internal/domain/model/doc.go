/*
Package model defines the immutable trace records shipped to the collector.

# Records

  - Block: one span of execution (method call, published event, remote call,
    listener invocation). Created once, never mutated.
  - BlockLog: one event inside exactly one block, chained to the previous log
    through ParentLogID.

# Event Kinds

A BlockLog carries a sealed Event value:

  - PlainEvent{Level}: INFO, WARN, ERROR. Never references a block.
  - BlockReference{Kind, Block}: TRACE_PRIMARY, TRACE_PARALLEL, PUBLISH_EVENT,
    REMOTE_TRACE, LISTEN_EVENT. Always references a block.

The two shapes make an invalid combination (a plain event with a referenced
block, or a reference without one) unrepresentable through the constructors.
*/
package model
