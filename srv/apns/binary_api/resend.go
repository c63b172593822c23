/*
 * Copyright 2011-2013 Nan Deng
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package binary_api

import (
	"github.com/uniqush/apnsgate/push"
)

// resendSet computes which retained messages must be retransmitted after
// the gateway rejected message id failedID. The gateway guarantees that
// every message sent after the failing one was dropped, so the answer is
// "everything sent after failedID" - but message ids are issued from a
// bounded range and wrap, so once the counter has looped past the oldest
// retained entry, "after" has to be computed modulo the id space.
//
// nextID is the id the next message would be sent with, i.e. the current
// counter value. minID and maxID delimit the id range. The returned
// messages are in original send order.
func resendSet(history *sentHistory, failedID, nextID, minID, maxID uint32) ([]sentMessage, push.Error) {
	if uint32(history.len()) > maxID-minID {
		// More retained messages than distinct ids: ordering is ambiguous
		// and nothing can safely be resent.
		return nil, push.NewAmbiguousResendError(history.len(), int(maxID-minID))
	}

	looped := uint32(history.len()) > nextID-minID
	maxIDToResend := maxID
	if looped {
		// The counter wrapped since the oldest retained entry. Messages
		// with ids at the top of the range but below maxIDToResend were
		// sent before the wrap; ids issued after the wrap sit just above
		// minID.
		numberBeyondMin := nextID - minID
		maxIDToResend = maxID - (uint32(history.len()) - numberBeyondMin)
	}

	var resends []sentMessage
	history.each(func(m sentMessage) {
		resend := false
		if looped {
			if m.msgID > failedID {
				if m.msgID < maxIDToResend || failedID > nextID {
					resend = true
				}
			} else {
				if m.msgID < maxIDToResend && failedID > maxIDToResend {
					resend = true
				}
			}
		} else if m.msgID > failedID {
			resend = true
		}
		if resend {
			resends = append(resends, m)
		}
	})
	return resends, nil
}
