/*
Copyright 2023-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package latestonlychannel

// Wrap pipes inputCh to a new channel while guaranteeing the sender side
// never blocks: while the consumer is slow, newer values displace the one
// waiting to be delivered, so the consumer only ever observes the most
// recent value.  This is the delivery discipline for configuration
// snapshots, where an overtaken topology has no value to anyone.  Close the
// input channel to release the pipe.
func Wrap[T any](inputCh <-chan T) <-chan T {
	outputCh := make(chan T)

	go func() {
		defer close(outputCh)

		for {
			pending, ok := <-inputCh
			if !ok {
				return
			}

			// keep replacing the pending value with anything newer until
			// the consumer takes it; this bounds deliveries on the output
			// by the number of values received on the input
		SendLoop:
			for {
				select {
				case outputCh <- pending:
					break SendLoop
				case newer, ok := <-inputCh:
					if !ok {
						return
					}
					pending = newer
				}
			}
		}
	}()

	return outputCh
}
