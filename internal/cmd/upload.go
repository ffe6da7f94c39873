package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
	"github.com/zfogg/daredrop/pkg/storage"
)

var uploadChallenge string

var uploadCmd = &cobra.Command{
	Use:   "upload <video-file>",
	Short: "Upload a challenge completion video",
	Long: `Upload a recorded video for a challenge. The video is scanned after
it is stored; blocked videos are deleted and flagged videos are published
only after you confirm, pending moderator review.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		store, err := storage.NewFromConfig(cmd.Context())
		if err != nil {
			return err
		}

		formatter.PrintInfo("Uploading %s (%d bytes)...", args[0], len(data))
		res, err := service.NewVideoUpload(a.deps, store).Upload(cmd.Context(), data, uploadChallenge)
		if err != nil {
			return err
		}

		if output.GetOutputFormat() == output.FormatJSON {
			return output.Print("", res.Video)
		}
		if res.Video != nil && res.Video.ReviewStatus == models.ReviewPending {
			formatter.PrintWarning("Video uploaded and waiting for moderator review")
		} else {
			formatter.PrintSuccess("Video uploaded")
		}
		return output.PrintRecord("Upload", map[string]interface{}{
			"key":   res.Key,
			"url":   res.URL,
			"state": string(res.Outcome.State),
		})
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadChallenge, "challenge", "", "ID of the challenge the video completes")
	_ = uploadCmd.MarkFlagRequired("challenge")
}
