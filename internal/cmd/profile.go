package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var (
	profileUsername string
	profileFullName string
	profileBio      string
	profileAvatar   string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Your profile and creator stats",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile",
	Long:  "Show your profile. The profile is created from your email on first use.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		user, err := service.NewProfile(a.deps).Load(cmd.Context())
		if err != nil {
			return err
		}
		return printProfile(user)
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Edit your profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch models.ProfilePatch
		flags := cmd.Flags()
		if flags.Changed("username") {
			patch.Username = &profileUsername
		}
		if flags.Changed("name") {
			patch.FullName = &profileFullName
		}
		if flags.Changed("bio") {
			patch.Bio = &profileBio
		}
		if flags.Changed("avatar") {
			patch.AvatarURL = &profileAvatar
		}
		if patch.Empty() {
			return fmt.Errorf("nothing to update; pass --username, --name, --bio or --avatar")
		}

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		profile := service.NewProfile(a.deps)
		before, err := profile.Load(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := profile.Update(cmd.Context(), patch); err != nil {
			return err
		}
		a.deps.Dispatcher.Wait()

		after, _ := profile.Current()
		if after != patch.Merge(before) {
			return fmt.Errorf("profile update did not take effect")
		}
		formatter.PrintSuccess("Profile updated")
		return printProfile(after)
	},
}

var profileStatsCmd = &cobra.Command{
	Use:   "stats [user-id]",
	Short: "Show video, like and follower counts",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		userID := a.deps.Session.UserID
		if len(args) == 1 {
			userID = args[0]
		}
		stats, err := service.UserAnalytics(cmd.Context(), a.gateway, userID)
		if err != nil {
			return err
		}
		if output.GetOutputFormat() == output.FormatJSON {
			return output.Print("", stats)
		}
		return output.PrintRecord("Creator stats", map[string]interface{}{
			"videos":    stats.TotalVideos,
			"likes":     stats.TotalLikes,
			"followers": stats.TotalFollowers,
			"following": stats.TotalFollowing,
		})
	},
}

func printProfile(u models.User) error {
	if output.GetOutputFormat() == output.FormatJSON {
		return output.Print("", u)
	}
	return output.PrintRecord("Profile", map[string]interface{}{
		"id":        u.ID,
		"username":  u.Username,
		"name":      u.FullName,
		"bio":       u.Bio,
		"points":    u.Points,
		"completed": u.ChallengesCompleted,
	})
}

func init() {
	profileUpdateCmd.Flags().StringVar(&profileUsername, "username", "", "New username")
	profileUpdateCmd.Flags().StringVar(&profileFullName, "name", "", "Display name")
	profileUpdateCmd.Flags().StringVar(&profileBio, "bio", "", "Profile bio")
	profileUpdateCmd.Flags().StringVar(&profileAvatar, "avatar", "", "Avatar image URL")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileUpdateCmd)
	profileCmd.AddCommand(profileStatsCmd)
}
