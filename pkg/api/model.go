// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api defines the wire model shared between the reporting client
// and the collector service.
//
// The types here are the protocol: field names are stable, optional fields
// are pointers so that absent values serialize as null rather than zero
// values. A Throwable is a tree and is treated as immutable once captured;
// deobfuscation builds new trees instead of rewriting stored ones.
package api

import "time"

// Orientation is the device screen orientation at capture time.
type Orientation string

const (
	OrientationPortrait  Orientation = "Portrait"
	OrientationLandscape Orientation = "Landscape"
	OrientationUndefined Orientation = "Undefined"
)

// StackFrame is a single element of a stack trace.
//
// All fields except IsNativeMethod are optional: obfuscated or native
// frames legitimately omit them.
type StackFrame struct {
	FileName       *string `json:"fileName"`
	LineNumber     *int    `json:"lineNumber"`
	ClassName      *string `json:"className"`
	MethodName     *string `json:"methodName"`
	IsNativeMethod bool    `json:"isNativeMethod"`
}

// Throwable is a portable exception tree: name, messages, the stack frames
// of this level, and an optional cause forming a recursive chain.
type Throwable struct {
	Name             *string      `json:"name"`
	Message          *string      `json:"message"`
	LocalizedMessage *string      `json:"localizedMessage"`
	StackTrace       []StackFrame `json:"stackTrace"`
	Cause            *Throwable   `json:"cause"`
}

// DeviceState captures the volatile device conditions at crash time.
type DeviceState struct {
	FreeMemory  int64       `json:"freeMemory"`
	TotalMemory int64       `json:"totalMemory"`
	Orientation Orientation `json:"orientation"`
}

// Crash is one captured exception event. The UUID is generated on the
// client at capture time and is the crash's identity everywhere; the
// throwable content may later be replaced by a deobfuscated tree, but the
// UUID never changes.
type Crash struct {
	UUID         string      `json:"uuid" binding:"required"`
	IsFatal      bool        `json:"isFatal"`
	InForeground bool        `json:"inForeground"`
	DateTime     time.Time   `json:"dateTime"`
	Throwable    Throwable   `json:"throwable"`
	DeviceState  DeviceState `json:"deviceState"`
}

// AppData identifies the application build a crash came from.
// Records are deduplicated by full-field equality.
type AppData struct {
	PackageName    string `json:"packageName" binding:"required"`
	AppName        string `json:"appName"`
	AppVersionCode int64  `json:"appVersionCode"`
	AppVersionName string `json:"appVersionName"`
}

// DeviceData identifies the device model a crash came from.
// Records are deduplicated by full-field equality.
type DeviceData struct {
	DeviceName             string `json:"deviceName"`
	Manufacturer           string `json:"manufacturer"`
	Brand                  string `json:"brand"`
	Model                  string `json:"model"`
	BuildID                string `json:"buildId"`
	OperationSystemVersion int    `json:"operationSystemVersion"`
}

// UploadRequest is the body of POST api/dev-v1/crash. The binding tags
// are the request validation: the collector binds the body with gin,
// which rejects batches missing a package name or a crash uuid before
// they reach the service.
type UploadRequest struct {
	DeviceData *DeviceData `json:"deviceData"`
	AppData    AppData     `json:"appData"`
	Crashes    []Crash     `json:"crashes" binding:"dive"`
}

// LibraryVersionHeader carries the client library version on uploads.
const LibraryVersionHeader = "X-Library-Version"

// VersionPath is the versioned API path segment.
const VersionPath = "dev-v1"
