// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collector

import (
	"github.com/gin-gonic/gin"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// RegisterRoutes registers the collector endpoints with the router.
//
// Description:
//
//	Client endpoint:
//
//	  POST api/dev-v1/crash - upload a crash batch
//
//	Dashboard endpoints:
//
//	  GET api/dev-v1/apps - list known applications
//	  GET api/dev-v1/apps/:packageName/groups - list crash groups
//	  GET api/dev-v1/apps/:packageName/groups/:groupId - group detail
//	  GET api/dev-v1/apps/:packageName/crashes/:uuid - single crash
//	  PUT api/dev-v1/apps/:packageName/mappings/:versionCode - upload mapping
//	  GET api/dev-v1/apps/:packageName/mappings - list mapping versions
//
//	Health endpoint:
//
//	  GET /health - liveness probe
//
// Inputs:
//
//	router - The Gin engine to mount on.
//	handlers - The handlers instance.
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	v1 := router.Group("api/" + api.VersionPath)
	{
		v1.POST("/crash", handlers.HandleUploadCrashes)

		v1.GET("/apps", handlers.HandleGetApps)
		v1.GET("/apps/:packageName/groups", handlers.HandleGetCrashGroups)
		v1.GET("/apps/:packageName/groups/:groupId", handlers.HandleGetCrashGroup)
		v1.GET("/apps/:packageName/crashes/:uuid", handlers.HandleGetCrash)

		v1.PUT("/apps/:packageName/mappings/:versionCode", handlers.HandleUploadMapping)
		v1.GET("/apps/:packageName/mappings", handlers.HandleGetMappingVersions)
	}

	router.GET("/health", handlers.HandleHealth)
}
