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
	"fmt"
	"net/http"

	"github.com/uniqush/log"

	"github.com/uniqush/apnsgate/srv/apns"
)

// WebFrontend is a minimal REST surface over the push channel, mainly for
// operational poking: POST /push queues a notification, GET /version
// reports the running version.
type WebFrontend struct {
	addr    string
	service *apns.Service
	version string
	logger  log.Logger
}

func NewWebFrontend(addr string, service *apns.Service, version string, logger log.Logger) *WebFrontend {
	return &WebFrontend{
		addr:    addr,
		service: service,
		version: version,
		logger:  logger,
	}
}

func (f *WebFrontend) push(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("bad form: %v", err), http.StatusBadRequest)
		return
	}
	devTokens := r.PostForm["devtoken"]
	payload := r.PostFormValue("payload")
	if len(devTokens) == 0 || payload == "" {
		http.Error(w, "devtoken and payload are required", http.StatusBadRequest)
		return
	}
	f.service.Send(devTokens, []byte(payload))
	f.logger.Infof("[%v] queued a push to %v devices", r.RemoteAddr, len(devTokens))
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "queued %v\n", len(devTokens))
}

func (f *WebFrontend) printVersion(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%v\n", f.version)
}

// Run serves until the listener fails. Delivery failures do not surface
// here; they go to the configured failure callback like any other send.
func (f *WebFrontend) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/push", f.push)
	mux.HandleFunc("/version", f.printVersion)
	f.logger.Infof("Web frontend listening on %v", f.addr)
	srv := &http.Server{Addr: f.addr, Handler: mux}
	return srv.ListenAndServe()
}
