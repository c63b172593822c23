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

package main

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/uniqush/log"

	"github.com/uniqush/apnsgate/push"
	"github.com/uniqush/apnsgate/srv/apns"
	"github.com/uniqush/apnsgate/test_util"
)

// newTestFrontend wires a frontend to a service whose gateway is
// unreachable; sends just land in the backlog, which is all the handler
// cares about.
func newTestFrontend(t *testing.T) (*WebFrontend, *apns.Service) {
	errChan := make(chan push.Error, 1000)
	service := apns.NewService(apns.ServiceConfig{
		CertFile: "conf/no-such.cert",
		KeyFile:  "conf/no-such.key",
		Addr:     "localhost:1",
	}, errChan)
	logger := log.NewLogger(ioutil.Discard, "[Test]", log.LOGLEVEL_SILENT)
	return NewWebFrontend("localhost:0", service, "apnsgate test", logger), service
}

func postForm(frontend *WebFrontend, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/push", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	frontend.push(rec, req)
	return rec
}

func TestPushHandlerQueuesNotifications(t *testing.T) {
	frontend, service := newTestFrontend(t)
	defer service.Finalize()

	rec := postForm(frontend, "devtoken=abc&devtoken=def&payload=%7B%7D")
	test_util.ExpectEquals(t, http.StatusAccepted, rec.Code, "wrong status code")
	test_util.ExpectStringEquals(t, "queued 2\n", rec.Body.String(), "wrong response body")
}

func TestPushHandlerRejectsMissingFields(t *testing.T) {
	frontend, service := newTestFrontend(t)
	defer service.Finalize()

	rec := postForm(frontend, "payload=%7B%7D")
	test_util.ExpectEquals(t, http.StatusBadRequest, rec.Code, "a push without tokens should be rejected")

	rec = postForm(frontend, "devtoken=abc")
	test_util.ExpectEquals(t, http.StatusBadRequest, rec.Code, "a push without a payload should be rejected")
}

func TestPushHandlerIsPostOnly(t *testing.T) {
	frontend, service := newTestFrontend(t)
	defer service.Finalize()

	req := httptest.NewRequest("GET", "/push", nil)
	rec := httptest.NewRecorder()
	frontend.push(rec, req)
	test_util.ExpectEquals(t, http.StatusMethodNotAllowed, rec.Code, "GET should not push")
}

func TestVersionHandler(t *testing.T) {
	frontend, service := newTestFrontend(t)
	defer service.Finalize()

	req := httptest.NewRequest("GET", "/version", nil)
	rec := httptest.NewRecorder()
	frontend.printVersion(rec, req)
	test_util.ExpectStringEquals(t, "apnsgate test\n", rec.Body.String(), "wrong version body")
}
