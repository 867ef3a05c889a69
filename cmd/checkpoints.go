/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gotidal/checkpoint"
)

// CheckpointsCmd represents the checkpoints command
var CheckpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage saved functional and gradient caches",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the checkpoints with both cache images present",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ListCheckpoints(checkpointDir())
	},
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete base...",
	Short: "Delete the cache images of the named checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			mgr *checkpoint.Manager
		)
		if mgr, err = checkpoint.NewManager(checkpointDir()); err != nil {
			return
		}
		for _, base := range args {
			if err = mgr.Delete(base); err != nil {
				return
			}
			fmt.Printf("Deleted checkpoint \"%s\"\n", base)
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(CheckpointsCmd)
	CheckpointsCmd.AddCommand(checkpointsListCmd, checkpointsDeleteCmd)
}

func checkpointDir() string {
	if dir := viper.GetString("basePath"); len(dir) != 0 {
		return dir
	}
	return "."
}

func ListCheckpoints(dir string) (err error) {
	var (
		mgr   *checkpoint.Manager
		bases []string
	)
	if mgr, err = checkpoint.NewManager(dir); err != nil {
		return
	}
	if bases, err = mgr.List(); err != nil {
		return
	}
	for _, base := range bases {
		fwd, adj := mgr.Paths(base)
		fmt.Printf("%s\t%s\t%s\n", base, fwd, adj)
	}
	return
}
