package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/daredrop/pkg/formatter"
	"github.com/zfogg/daredrop/pkg/localstore"
	"github.com/zfogg/daredrop/pkg/output"
	"github.com/zfogg/daredrop/pkg/service"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search users, challenges, videos and hashtags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.close()

		search, closeStore, err := newSearch(a)
		if err != nil {
			return err
		}
		defer closeStore()

		results, err := search.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(results))
		for _, r := range results {
			rows = append(rows, []string{string(r.Type), r.ID, formatter.Truncate(r.Title, 32), formatter.Truncate(r.Subtitle, 40)})
		}
		return output.PrintList("Results", results, []string{"TYPE", "ID", "TITLE", "DETAIL"}, rows)
	},
}

var searchRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent and trending searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		search, closeStore, err := newSearch(a)
		if err != nil {
			return err
		}
		defer closeStore()

		recent, err := search.Recent()
		if err != nil {
			return err
		}
		if output.GetOutputFormat() == output.FormatJSON {
			return output.Print("", map[string][]string{"recent": recent, "trending": search.Trending()})
		}
		if len(recent) == 0 {
			formatter.PrintInfo("No recent searches")
		}
		for _, q := range recent {
			fmt.Println("  " + q)
		}
		formatter.PrintInfo("Trending: %s", strings.Join(search.Trending(), ", "))
		return nil
	},
}

var searchClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget recent searches",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.close()

		search, closeStore, err := newSearch(a)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := search.ClearRecent(); err != nil {
			return err
		}
		formatter.PrintSuccess("Recent searches cleared")
		return nil
	},
}

func newSearch(a *app) (*service.Search, func(), error) {
	store, err := openState()
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() { _ = store.Close() }
	return service.NewSearch(a.gateway, localstore.NewRecentSearches(store)), closeStore, nil
}

func init() {
	searchCmd.AddCommand(searchRecentCmd)
	searchCmd.AddCommand(searchClearCmd)
}
