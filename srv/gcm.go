/*
 * Copyright 2011-2013 Nan Deng
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

// Package srv holds the HTTP-POST push channels. They have no protocol
// state machine: build a JSON body, POST it, inspect the response.
package srv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/uniqush/apnsgate/push"
)

const gcmServiceURL = "https://android.googleapis.com/gcm/send"

// gcmTokenErrors are the per-token error strings meaning the registration
// id is permanently invalid.
var gcmTokenErrors = map[string]bool{
	"InvalidRegistration": true,
	"NotRegistered":       true,
}

// HTTPClient is a mockable interface for the part of http.Client the GCM
// channel uses.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ HTTPClient = &http.Client{}

// GCMService is the HTTP-POST channel to GCM. It satisfies the same
// uniform capability as the binary gateway channel: send a payload to a
// set of device identifiers, reporting rejected ones through the failure
// callback.
type GCMService struct {
	client     HTTPClient
	serviceURL string
	apiKey     string
	onFailure  push.FailureFunc
	errChan    chan<- push.Error
}

var _ push.Channel = &GCMService{}

// NewGCMService builds the channel with the given API key.
func NewGCMService(apiKey string, onFailure push.FailureFunc, errChan chan<- push.Error) *GCMService {
	return &GCMService{
		client:     &http.Client{Timeout: 30 * time.Second},
		serviceURL: gcmServiceURL,
		apiKey:     apiKey,
		onFailure:  onFailure,
		errChan:    errChan,
	}
}

// OverrideClient overrides the HTTP client. It is used only for unit testing.
func (s *GCMService) OverrideClient(client HTTPClient) {
	s.client = client
}

// OverrideServiceURL overrides the endpoint. It is used only for unit testing.
func (s *GCMService) OverrideServiceURL(url string) {
	s.serviceURL = url
}

type gcmRequest struct {
	RegistrationIDs []string        `json:"registration_ids"`
	Data            json.RawMessage `json:"data"`
}

type gcmResult struct {
	Error string `json:"error"`
}

type gcmResponse struct {
	Failure int         `json:"failure"`
	Results []gcmResult `json:"results"`
}

// Send posts the payload to GCM for the given registration ids. The payload
// must be a JSON object. Permanently invalid ids are reported via the
// failure callback with push.StatusUnsubscribe.
func (s *GCMService) Send(regIDs []string, payload []byte) {
	if len(regIDs) == 0 {
		return
	}
	body, err := json.Marshal(&gcmRequest{
		RegistrationIDs: regIDs,
		Data:            json.RawMessage(payload),
	})
	if err != nil {
		s.errChan <- push.NewFrameEncodeError(fmt.Sprintf("unable to build GCM request body: %v", err))
		return
	}

	req, err := http.NewRequest("POST", s.serviceURL, bytes.NewReader(body))
	if err != nil {
		s.errChan <- push.NewErrorf("Unable to build GCM request: %v", err)
		return
	}
	req.Header.Set("Authorization", "key="+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.errChan <- push.NewConnectionError(err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.errChan <- push.NewErrorf("Did not receive 200 response from GCM: %v", resp.StatusCode)
		return
	}

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		s.errChan <- push.NewErrorf("Unable to read GCM response: %v", err)
		return
	}
	var parsed gcmResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		s.errChan <- push.NewErrorf("Unable to parse response (%s) from GCM: %v", data, err)
		return
	}
	if parsed.Failure == 0 {
		return
	}
	for i, result := range parsed.Results {
		if i >= len(regIDs) {
			break
		}
		if gcmTokenErrors[result.Error] {
			s.errChan <- push.NewGatewayRejection(push.StatusUnsubscribe, 0, regIDs[i])
			if s.onFailure != nil {
				s.onFailure(push.StatusUnsubscribe, regIDs[i])
			}
		} else if result.Error != "" {
			s.errChan <- push.NewErrorf("GCM error %v for registration id %v", result.Error, regIDs[i])
		}
	}
}

// Finalize closes idle connections.
func (s *GCMService) Finalize() {
	if client, isClient := s.client.(*http.Client); isClient {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
}
