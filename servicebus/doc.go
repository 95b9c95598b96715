/*
Package servicebus provides the in-process topic broker: a router that matches routing keys against
wildcard bindings, one FIFO queue per bound name, and a dispatcher that feeds queued messages to handlers.
It stays decoupled from external transports via the contract/bus interfaces.
*/
package servicebus
