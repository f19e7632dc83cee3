package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"blueprint/internal/blueprint"
)

var statusFlags struct {
	watch    bool
	interval time.Duration
}

var statusCmd = &cobra.Command{
	Use:   "status <blueprint-id>",
	Short: "Show the state of a blueprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.BoolVar(&statusFlags.watch, "watch", false, "poll until the blueprint reaches a terminal status")
	f.DurationVar(&statusFlags.interval, "interval", 2*time.Second, "poll interval for --watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newClient()
	out := cmd.OutOrStdout()
	var last blueprint.Status
	for {
		doc, err := client.GetBlueprint(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get blueprint: %w", err)
		}
		if !statusFlags.watch {
			printDocument(out, doc)
			return nil
		}
		if doc.Status != last {
			fmt.Fprintf(out, "%s  %s\n", time.Now().Format(time.TimeOnly), doc.Status)
			last = doc.Status
		}
		if doc.Status.Terminal() {
			printDocument(out, doc)
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(statusFlags.interval):
		}
	}
}

func printDocument(out io.Writer, doc blueprint.Document) {
	fmt.Fprintf(out, "Blueprint:  %s\n", doc.ID)
	fmt.Fprintf(out, "Engagement: %s\n", doc.EngagementID)
	fmt.Fprintf(out, "Status:     %s\n", doc.Status)
	if doc.RenderedArtifact != nil {
		fmt.Fprintf(out, "Rendered:   %s\n", doc.RenderedArtifact.StoragePath)
	}
	if doc.ArtifactBundle != nil {
		fmt.Fprintf(out, "Bundle:     %s\n", doc.ArtifactBundle.StoragePath)
		if doc.ArtifactBundle.DownloadURL != "" {
			fmt.Fprintf(out, "Download:   %s\n", doc.ArtifactBundle.DownloadURL)
		}
	}
	if doc.Error != nil {
		fmt.Fprintf(out, "Error:      [%s] %s\n", doc.Error.Stage, doc.Error.Message)
	}
}
