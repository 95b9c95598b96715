/*
Package events defines the commerce domain events carried on the bus.

Each event family (product, order, user, marketing, notification) is a closed set of variant types.
A variant knows its routing key through Topic and hands itself to the family's handler interface
through Dispatch, so a handler that misses a variant does not compile.
*/
package events
