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

package push

import (
	"fmt"
)

// Error is a specialized error. Everything worth reporting by the gateway
// machinery flows through an error channel as one of these, so that the
// owner of that channel can decide how to log or react to it.
type Error interface {
	error
	isPushError() // Placeholder function to distinguish these from error class
}

type implementsPushError struct{}

func (*implementsPushError) isPushError() {}

var _ Error = &InfoReport{}
var _ Error = &ErrorReport{}
var _ Error = &TokenDecodeError{}
var _ Error = &MessageTooLargeError{}
var _ Error = &FrameEncodeError{}
var _ Error = &ConnectionError{}
var _ Error = &GatewayRejection{}
var _ Error = &AmbiguousResendError{}

// InfoReport is not an actual error.
// But it is worthy to be reported to the user.
type InfoReport struct {
	implementsPushError
	info string
}

func (e *InfoReport) Error() string {
	return e.info
}

// NewInfo returns an InfoReport for the given message (with a severity of 'info')
func NewInfo(msg string) *InfoReport {
	return &InfoReport{info: msg}
}

// NewInfof returns an InfoReport for the given format string and arguments (with a severity of 'info')
func NewInfof(f string, v ...interface{}) *InfoReport {
	return &InfoReport{info: fmt.Sprintf(f, v...)}
}

// ErrorReport is like InfoReport, but has a higher severity.
type ErrorReport struct {
	implementsPushError
	msg string
}

func (e *ErrorReport) Error() string {
	return e.msg
}

// NewError returns an ErrorReport for the given error message (with a severity of 'error')
func NewError(msg string) *ErrorReport {
	return &ErrorReport{msg: msg}
}

// NewErrorf returns an ErrorReport for the given format string and arguments (with a severity of 'error')
func NewErrorf(f string, v ...interface{}) *ErrorReport {
	return &ErrorReport{msg: fmt.Sprintf(f, v...)}
}

/*********************/

// TokenDecodeError indicates that a caller-supplied device token was not
// valid base64. The notification is discarded, never queued or retried.
type TokenDecodeError struct {
	implementsPushError
	DevToken string
	Reason   error
}

func (e *TokenDecodeError) Error() string {
	return fmt.Sprintf("Unable to decode device token %v: %v. Discarding message", e.DevToken, e.Reason)
}

// NewTokenDecodeError creates a TokenDecodeError for the given token and underlying decode error.
func NewTokenDecodeError(devToken string, reason error) *TokenDecodeError {
	return &TokenDecodeError{DevToken: devToken, Reason: reason}
}

/*********************/

// MessageTooLargeError indicates that an encoded frame exceeded the maximum
// the gateway accepts. The notification is discarded, never queued or retried.
type MessageTooLargeError struct {
	implementsPushError
	Length int
	Limit  int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("The message size (%v) exceeds the maximum permitted by the gateway (%v). Discarding message", e.Length, e.Limit)
}

// NewMessageTooLargeError creates a MessageTooLargeError with the offending and permitted lengths.
func NewMessageTooLargeError(length, limit int) *MessageTooLargeError {
	return &MessageTooLargeError{Length: length, Limit: limit}
}

/*********************/

// FrameEncodeError indicates that a notification could not be framed at all,
// e.g. because the token or payload does not fit its length field.
type FrameEncodeError struct {
	implementsPushError
	Details string
}

func (e *FrameEncodeError) Error() string {
	return fmt.Sprintf("Unable to frame message: %v. Discarding message", e.Details)
}

// NewFrameEncodeError creates a FrameEncodeError with the given details.
func NewFrameEncodeError(details string) *FrameEncodeError {
	return &FrameEncodeError{Details: details}
}

/*********************/

// ConnectionError indicates a transient failure dialing or writing to the
// gateway. It is absorbed by the reconnect machinery and is never fatal.
type ConnectionError struct {
	implementsPushError
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("Connection Error: %v", e.Err)
}

// NewConnectionError creates a ConnectionError wrapping err.
func NewConnectionError(err error) *ConnectionError {
	return &ConnectionError{Err: err}
}

/*********************/

// GatewayRejection is a decoded error response from the gateway for a
// previously sent message. DevToken is empty if the failing message id was
// no longer retained in the sent history.
type GatewayRejection struct {
	implementsPushError
	Status   uint8
	MsgID    uint32
	DevToken string
}

func (e *GatewayRejection) Error() string {
	return fmt.Sprintf("Error code %v received when sending message id %v", e.Status, e.MsgID)
}

// NewGatewayRejection creates a GatewayRejection for the given status, message id and device token.
func NewGatewayRejection(status uint8, msgID uint32, devToken string) *GatewayRejection {
	return &GatewayRejection{Status: status, MsgID: msgID, DevToken: devToken}
}

/*********************/

// AmbiguousResendError indicates that more messages are retained in the sent
// history than there are distinct message ids, so the set of messages sent
// after a failing id cannot be determined. The resend is skipped.
type AmbiguousResendError struct {
	implementsPushError
	HistorySize int
	IDRange     int
}

func (e *AmbiguousResendError) Error() string {
	return fmt.Sprintf("Can't resend messages as the number of cached sent messages (%v) is higher than the number of distinct message ids (%v). The number of sent messages stored should be decreased, or the range of message ids increased", e.HistorySize, e.IDRange)
}

// NewAmbiguousResendError creates an AmbiguousResendError with the history size and the size of the id space.
func NewAmbiguousResendError(historySize, idRange int) *AmbiguousResendError {
	return &AmbiguousResendError{HistorySize: historySize, IDRange: idRange}
}
