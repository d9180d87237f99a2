// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collector

import "github.com/FlowMo7/Koarl/services/collector/store"

// GroupType selects which crash groups a listing returns.
type GroupType string

const (
	GroupTypeAll      GroupType = "all"
	GroupTypeFatal    GroupType = "fatal"
	GroupTypeNonFatal GroupType = "nonfatal"
)

// ParseGroupType validates the ?type= query parameter; the empty
// string means all.
func ParseGroupType(s string) (GroupType, bool) {
	switch GroupType(s) {
	case "", GroupTypeAll:
		return GroupTypeAll, true
	case GroupTypeFatal:
		return GroupTypeFatal, true
	case GroupTypeNonFatal:
		return GroupTypeNonFatal, true
	default:
		return "", false
	}
}

// ErrorResponse is the uniform error body of the collector API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// AppsResponse lists the applications known to the collector.
type AppsResponse struct {
	Apps []store.App `json:"apps"`
}

// CrashGroupsResponse lists the crash groups of one application.
type CrashGroupsResponse struct {
	Groups []store.CrashGroup `json:"groups"`
}

// CrashGroupResponse is one group with its member crashes.
type CrashGroupResponse struct {
	Group   store.CrashGroup    `json:"group"`
	Crashes []store.CrashRecord `json:"crashes"`
}

// CrashResponse is a single stored crash.
type CrashResponse struct {
	Crash store.CrashRecord `json:"crash"`
}

// MappingVersionsResponse lists the version codes an application has
// uploaded mappings for.
type MappingVersionsResponse struct {
	VersionCodes []int64 `json:"versionCodes"`
}
