// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists crash reports, crash groups and obfuscation
// mappings in Badger.
package store

import (
	"time"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// CrashRecord is a stored crash joined with its dimensions.
type CrashRecord struct {
	Crash      api.Crash       `json:"crash"`
	AppData    api.AppData     `json:"appData"`
	DeviceData *api.DeviceData `json:"deviceData,omitempty"`
	GroupID    string          `json:"groupId"`
}

// CrashGroup is the aggregate view over all crashes sharing a group id.
// Throwable is the representative throwable of the group's first stored
// member, projected down to the fields members actually share.
type CrashGroup struct {
	GroupID         string       `json:"groupId"`
	PackageName     string       `json:"packageName"`
	Throwable       Similarities `json:"throwable"`
	IsFatal         bool         `json:"isFatal"`
	NumberOfCrashes int64        `json:"numberOfCrashes"`
}

// Similarities is the projection of a throwable onto the fields shared
// by all members of a crash group. Volatile per-crash detail (file
// names, localized messages) is omitted.
type Similarities struct {
	Name       *string           `json:"name,omitempty"`
	Message    *string           `json:"message,omitempty"`
	StackTrace []SimilarityFrame `json:"stackTrace"`
	Cause      *Similarities     `json:"cause,omitempty"`
}

// SimilarityFrame is the stable subset of a stack frame.
type SimilarityFrame struct {
	ClassName      *string `json:"className,omitempty"`
	MethodName     *string `json:"methodName,omitempty"`
	LineNumber     *int    `json:"lineNumber,omitempty"`
	IsNativeMethod bool    `json:"isNativeMethod"`
}

// App is one distinct application known to the store.
type App struct {
	PackageName string `json:"packageName"`
	AppName     string `json:"appName"`
}

// CrashFilter narrows GetCrashes. Zero-valued fields match everything.
type CrashFilter struct {
	PackageName    string
	AppVersionCode *int64
	AppVersionName string
	From           *time.Time
	To             *time.Time
}

// matches applies the filter to one record. Time bounds are inclusive.
func (f CrashFilter) matches(rec *storedCrash) bool {
	if f.PackageName != "" && rec.AppData.PackageName != f.PackageName {
		return false
	}
	if f.AppVersionCode != nil && rec.AppData.AppVersionCode != *f.AppVersionCode {
		return false
	}
	if f.AppVersionName != "" && rec.AppData.AppVersionName != f.AppVersionName {
		return false
	}
	if f.From != nil && rec.Crash.DateTime.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.Crash.DateTime.After(*f.To) {
		return false
	}
	return true
}

// similaritiesOf projects a throwable tree to its group-stable fields.
func similaritiesOf(t *api.Throwable) *Similarities {
	if t == nil {
		return nil
	}
	frames := make([]SimilarityFrame, len(t.StackTrace))
	for i, f := range t.StackTrace {
		frames[i] = SimilarityFrame{
			ClassName:      f.ClassName,
			MethodName:     f.MethodName,
			LineNumber:     f.LineNumber,
			IsNativeMethod: f.IsNativeMethod,
		}
	}
	return &Similarities{
		Name:       t.Name,
		Message:    t.Message,
		StackTrace: frames,
		Cause:      similaritiesOf(t.Cause),
	}
}
