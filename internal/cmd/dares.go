package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/models"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/prompter"
	"github.com/zfogg/daredrop/pkg/service"
)

var (
	dareLat float64
	dareLng float64
)

var daresCmd = &cobra.Command{
	Use:   "dares",
	Short: "Personalized dare suggestions",
}

var daresSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show dares picked for you",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		dares := service.NewDares(a.deps)
		items := dares.Suggest(cmd.Context(), dareLocation(cmd))
		if fallback, _ := dares.Fallback(); fallback {
			formatter.PrintWarning("Suggestions are unavailable right now, showing popular dares instead")
		}
		return printDares(items)
	},
}

var daresAcceptCmd = &cobra.Command{
	Use:   "accept [suggestion-id]",
	Short: "Accept a dare and turn it into a challenge",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		dares := service.NewDares(a.deps)
		items := dares.Suggest(cmd.Context(), dareLocation(cmd))
		if len(items) == 0 {
			return fmt.Errorf("no dares to accept")
		}

		id := ""
		if len(args) == 1 {
			id = args[0]
		} else {
			options := make([]string, len(items))
			for i, s := range items {
				options[i] = fmt.Sprintf("%s (%s, %d pts)", s.Title, s.Difficulty, s.Points)
			}
			choice, err := prompter.PromptSelect("Pick a dare", options)
			if err != nil {
				return err
			}
			id = items[choice].ID
		}

		challenge, err := dares.Accept(cmd.Context(), id)
		if err != nil {
			return err
		}
		formatter.PrintSuccess("Dare accepted: %s", challenge.Title)
		return nil
	},
}

func dareLocation(cmd *cobra.Command) *models.Location {
	if !cmd.Flags().Changed("lat") && !cmd.Flags().Changed("lng") {
		return nil
	}
	return &models.Location{Lat: dareLat, Lng: dareLng}
}

func printDares(items []models.DareSuggestion) error {
	rows := make([][]string, 0, len(items))
	for _, s := range items {
		rows = append(rows, []string{
			s.ID,
			formatter.Truncate(s.Title, 32),
			s.Category,
			s.Difficulty,
			fmt.Sprintf("%d", s.Points),
			formatter.Truncate(s.Reason, 30),
		})
	}
	return output.PrintList("Dares", items, []string{"ID", "TITLE", "CATEGORY", "DIFFICULTY", "POINTS", "WHY"}, rows)
}

func init() {
	for _, c := range []*cobra.Command{daresSuggestCmd, daresAcceptCmd} {
		c.Flags().Float64Var(&dareLat, "lat", 0, "Latitude for location-based dares")
		c.Flags().Float64Var(&dareLng, "lng", 0, "Longitude for location-based dares")
	}

	daresCmd.AddCommand(daresSuggestCmd)
	daresCmd.AddCommand(daresAcceptCmd)
}
