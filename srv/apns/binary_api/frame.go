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

// Package binary_api implements the APNS binary provider protocol (over an
// encrypted TCP socket): the notification and error-response wire formats,
// the persistent gateway connection with its backlog and sent-message
// history, the retrospective resend of messages sent after a failed one,
// and the feedback-service client.
package binary_api

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/uniqush/apnsgate/push"
)

const (
	// notificationCommand is the command byte of every outbound frame.
	notificationCommand uint8 = 1

	// DefaultMaxFrameSize is the largest total frame the gateway accepts.
	DefaultMaxFrameSize = 256

	// errorResponseLength is the fixed size of a gateway error response.
	errorResponseLength = 6

	// messageTTL is added to the send time to form the frame's expiry.
	messageTTL = time.Hour
)

// notification is a decoded outbound frame. Only tests and the mock
// gateway decode notifications; production code just encodes them.
type notification struct {
	command  uint8
	msgID    uint32
	expiry   uint32
	devToken []byte
	payload  []byte
}

// encodeNotification frames a notification for the wire:
// command(1) | id(4,BE) | expiry(4,BE) | tokenLen(2,BE) | token |
// payloadLen(2,BE) | payload.
func encodeNotification(msgID uint32, expiry uint32, token, payload []byte) []byte {
	buffer := bytes.NewBuffer(make([]byte, 0, 11+len(token)+len(payload)))
	binary.Write(buffer, binary.BigEndian, notificationCommand)
	binary.Write(buffer, binary.BigEndian, msgID)
	binary.Write(buffer, binary.BigEndian, expiry)
	binary.Write(buffer, binary.BigEndian, uint16(len(token)))
	buffer.Write(token)
	binary.Write(buffer, binary.BigEndian, uint16(len(payload)))
	buffer.Write(payload)
	return buffer.Bytes()
}

// decodeNotification reads one notification frame from r. It is the inverse
// of encodeNotification.
func decodeNotification(r io.Reader) (*notification, error) {
	n := new(notification)
	if err := binary.Read(r, binary.BigEndian, &n.command); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &n.msgID); err != nil {
		return nil, fmt.Errorf("failed to read msg id: %v", err)
	}
	if err := binary.Read(r, binary.BigEndian, &n.expiry); err != nil {
		return nil, fmt.Errorf("failed to read expiry: %v", err)
	}
	var tokenLen uint16
	if err := binary.Read(r, binary.BigEndian, &tokenLen); err != nil {
		return nil, fmt.Errorf("failed to read token length: %v", err)
	}
	n.devToken = make([]byte, int(tokenLen))
	if _, err := io.ReadFull(r, n.devToken); err != nil {
		return nil, fmt.Errorf("failed to read token: %v", err)
	}
	var payloadLen uint16
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("failed to read payload length: %v", err)
	}
	n.payload = make([]byte, int(payloadLen))
	if _, err := io.ReadFull(r, n.payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %v", err)
	}
	return n, nil
}

// buildFrame decodes the transport-safe device token and frames the payload
// with the given message id. The expiry is now plus the fixed TTL. All
// failures mean the notification is discarded: it must be neither queued
// nor retained in the sent history.
func buildFrame(msgID uint32, devToken string, payload []byte, now time.Time, maxFrameSize int) ([]byte, push.Error) {
	token, err := base64.StdEncoding.DecodeString(devToken)
	if err != nil {
		return nil, push.NewTokenDecodeError(devToken, err)
	}
	if len(token) > 0xffff {
		return nil, push.NewFrameEncodeError(fmt.Sprintf("device token of %v bytes does not fit its length field", len(token)))
	}
	if len(payload) > 0xffff {
		return nil, push.NewFrameEncodeError(fmt.Sprintf("payload of %v bytes does not fit its length field", len(payload)))
	}
	expiry := uint32(now.Unix()) + uint32(messageTTL/time.Second)
	frame := encodeNotification(msgID, expiry, token, payload)
	if len(frame) > maxFrameSize {
		return nil, push.NewMessageTooLargeError(len(frame), maxFrameSize)
	}
	return frame, nil
}
