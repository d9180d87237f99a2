// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "koarld",
		Short: "Koarl crash report collector",
		Long: `koarld collects crash reports uploaded by applications using the Koarl
reporting library, deobfuscates them when a ProGuard/R8 mapping is
available, groups them by similarity and serves them to dashboards.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand())
	return root
}
