/*
 * Copyright 2011 Nan Deng
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package push contains the types shared by every push channel: the uniform
// send capability, the caller-facing callback contracts and the error
// taxonomy used to report everything that happens on a channel.
package push

// StatusUnsubscribe is the status code, shared across channels, meaning that
// a device token is permanently invalid and the caller should stop sending
// to it.
const StatusUnsubscribe uint8 = 8

// FailureFunc is called once per rejected notification with the status code
// reported by the push service and the device token it was sent to. The
// token is empty when the service did not identify a specific message.
type FailureFunc func(status uint8, devToken string)

// FeedbackRecord is one server-reported device token that should no longer
// receive notifications, together with the time the service decided so.
type FeedbackRecord struct {
	Timestamp uint32
	DevToken  string // transport-safe base64, as accepted by Channel.Send
}

// FeedbackFunc receives one batch of feedback records, in stream order,
// each time the feedback service has been drained.
type FeedbackFunc func(records []FeedbackRecord)

// Channel is the uniform capability every push channel exposes: deliver a
// payload to a set of device identifiers. Delivery is asynchronous;
// rejections surface through the channel's configured FailureFunc, not
// through a return value.
type Channel interface {
	Send(devTokens []string, payload []byte)

	// Finalize shuts the channel down, cancelling its timers and closing
	// its connections. No Send may be issued afterwards.
	Finalize()
}
