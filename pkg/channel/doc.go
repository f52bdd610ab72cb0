/*
Package channel implements the two logical connections to the injected peer.

The command channel carries synchronous request/response exchanges. It owns
the correlation table: every in-flight command holds a unique correlation
identifier, a single reader goroutine matches responses to waiting callers,
and unmatched responses are discarded. Timeouts and caller cancellation are
local to one send; I/O errors and malformed frames fault the channel and
fail every outstanding command.

The event channel carries a one-directional stream of notifications. One
read loop decodes frames and fans them out to subscribers, each with its own
bounded delivery queue. When a subscriber falls behind, the oldest pending
event for that subscriber is dropped (and counted) so one slow consumer
cannot stall the read loop or other subscribers. A fault or disconnect
closes every subscription with a terminal stream-ended signal.

The channels are independent transports with independent failure domains:
neither ever blocks the other.
*/
package channel
