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

// Package common contains the data types shared between the binary protocol
// machinery and the APNS service facade.
package common

import (
	"github.com/uniqush/apnsgate/push"
)

// APNSResult is one decoded 6-byte error response from the gateway, or a
// reader-side error if the connection broke before a response was decoded.
// The gateway stays silent for successful pushes; a result only ever
// reports trouble.
type APNSResult struct {
	MsgID  uint32
	Status uint8
	Err    push.Error
}
