package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rtzll/yt2md/internal"
)

// channelsCmd lists the configured channels and, optionally, the LLM plan
// each category resolves to
var channelsCmd = &cobra.Command{
	Use:   "channels [category]",
	Short: "List configured channels by category",
	Example: `  # All categories
  yt2md channels

  # One category with its resolved LLM strategy
  yt2md channels IT --strategies`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := internal.NewChannelConfigStore(config.ChannelsFile, config.ChannelsMaxAge)
		categories, err := store.Categories()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			categories = []string{args[0]}
		}
		showStrategies, _ := cmd.Flags().GetBool("strategies")

		for _, category := range categories {
			channels, err := store.ChannelsByCategory(category)
			if err != nil {
				return err
			}
			if len(channels) == 0 {
				return fmt.Errorf("no channels configured for category %q", category)
			}
			fmt.Printf("%s (%d)\n", category, len(channels))
			for _, ch := range channels {
				line := fmt.Sprintf("  %s [%s] %s -> %s", ch.Name, ch.ID, ch.LanguageCode, ch.OutputLanguage)
				if len(ch.TitleFilters) > 0 {
					line += " filters: " + strings.Join(ch.TitleFilters, ", ")
				}
				fmt.Println(line)
			}

			if showStrategies {
				strategy, err := store.StrategyConfig(category)
				if err != nil {
					return err
				}
				t := strategy.Thresholds()
				unit := strategy.LengthUnit
				if unit == "" {
					unit = internal.LengthUnitWords
				}
				fmt.Printf("  strategy (%s, short<=%d, medium<=%d):\n", unit, t.ShortMax, t.MediumMax)
				for _, length := range []internal.LengthCategory{internal.LengthShort, internal.LengthMedium, internal.LengthLong} {
					plan, ok := strategy.StrategyByLength[length]
					if !ok {
						plan = internal.DefaultPlan
					}
					fmt.Printf("    %-6s %s, fallback %s\n", length, plan.Primary, plan.Fallback)
				}
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	channelsCmd.Flags().Bool("strategies", false, "Also show the LLM strategy each category resolves to")
	rootCmd.AddCommand(channelsCmd)
}
