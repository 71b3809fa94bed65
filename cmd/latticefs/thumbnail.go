package main

import (
	"github.com/latticefs/core/pkg/jobs"
	"github.com/latticefs/core/pkg/types"
	"github.com/spf13/cobra"
)

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail <location-path>",
	Short: "Generate webp thumbnails for identified images (and optionally videos) under a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, stop, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer stop()

		loc, err := findLocationByPath(e.Store, args[0])
		if err != nil {
			return err
		}

		subPath, _ := cmd.Flags().GetString("subpath")
		background, _ := cmd.Flags().GetBool("background")
		video, _ := cmd.Flags().GetBool("video")
		force, _ := cmd.Flags().GetBool("force")

		return submitAndWait(e.Runtime, e.Store, jobs.KindThumbnailer, jobs.ThumbnailerInit{
			LocationID:   loc.ID,
			LocationPath: loc.Path,
			SubPath:      subPath,
			ThumbDir:     e.Config.ThumbnailDir(),
			Background:   background,
			VideoSupport: video,
		}, force)
	},
}

func init() {
	thumbnailCmd.Flags().String("subpath", types.RootMaterializedPath, "Materialized sub-path to restrict thumbnailing to")
	thumbnailCmd.Flags().Bool("background", false, "Yield between files instead of running flat out")
	thumbnailCmd.Flags().Bool("video", false, "Also attempt video frame thumbnails (unsupported in this build)")
	thumbnailCmd.Flags().Bool("force", false, "Submit even if an identical job is already queued or running")
}
