package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/youlearn/youlearn-progress/internal/application/query"
)

var statsCmd = &cobra.Command{
	Use:   "stats USER_ID",
	Short: "Print a learner's stats as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rt, err := wire(cmd.Context(), cfg, newLogger(cfg))
		if err != nil {
			return err
		}
		defer rt.Close()

		seriesDays, _ := cmd.Flags().GetInt("series-days")
		calendarDays, _ := cmd.Flags().GetInt("calendar-days")
		stats, err := rt.app.GetStats.Handle(cmd.Context(), query.GetStatsQuery{
			UserID:       args[0],
			SeriesDays:   seriesDays,
			CalendarDays: calendarDays,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	statsCmd.Flags().Int("series-days", query.DefaultSeriesDays, "Days in the daily XP series")
	statsCmd.Flags().Int("calendar-days", query.DefaultCalendarDays, "Days in the activity calendar")
}
