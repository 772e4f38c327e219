// Copyright (c) 2018 Western Digital Corporation or its affiliates.  All rights reserved.
// SPDX-License-Identifier: MIT

// Package failures implements the failure service: a process-wide failure
// configuration with a RESTful API for reading and changing it, used to
// inject disk faults into a running simulation from outside the process.
//
// Components register a failure handler under a key; the handler is called
// whenever the value of that key is set or reset. The value is an opaque
// json.RawMessage interpreted by the handler (the controller's disk_kill
// handler, for example, takes a slot index). A GET on the service returns
// the whole configuration; a POST replaces it, with keys missing from the
// posted object reset to null.
//
//	curl <addr>/__failure__
//	curl <addr>/__failure__ -XPOST -d '{"disk_kill": 2}'
package failures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
)

// DefaultFailureServicePath is the path that the failure service handler
// will be mounted on, by default.
const DefaultFailureServicePath = "/__failure__"

var config = configuration{
	configs:  make(map[string]*json.RawMessage),
	handlers: make(map[string]func(json.RawMessage) error),
}

// Init mounts the failure service on the default path on the default http mux.
func Init() {
	InitWithPathAndMux(http.DefaultServeMux, DefaultFailureServicePath)
}

// InitWithPathAndMux mounts the failure service on the given path and mux.
func InitWithPathAndMux(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, failureHTTPHandler)
}

// Register registers a failure handler to a given key of failure
// configuration. You can not register a failure handler to a key which has
// already been registered.
func Register(key string, handler func(json.RawMessage) error) error {
	return config.register(key, handler)
}

func failureHTTPHandler(writer http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case "GET":
		doGet(writer, req)
	case "POST":
		doPost(writer, req)
	default:
		replyError(writer, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
	}
}

func doGet(writer http.ResponseWriter, req *http.Request) {
	enc := json.NewEncoder(writer)
	enc.Encode(&config)
}

func doPost(writer http.ResponseWriter, req *http.Request) {
	jsonData, err := ioutil.ReadAll(req.Body)
	if err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	var updates map[string]*json.RawMessage
	dec := json.NewDecoder(bytes.NewBuffer(jsonData))
	if err = dec.Decode(&updates); err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err = config.applyUpdates(updates); err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}
}

func replyError(w http.ResponseWriter, errorStr string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprintln(w, errorStr)
}
