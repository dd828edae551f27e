package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var historyDays int

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Look up one quote through the provider fallback chain",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

func init() {
	quoteCmd.Flags().IntVar(&historyDays, "history", 0, "also fetch this many days of daily history")
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	appDep, err := NewAppDependency(ctx, WithMemoryQueue())
	if err != nil {
		return err
	}
	defer appDep.Close()

	_, services, err := appDep.Services(ctx)
	if err != nil {
		return err
	}

	quote := services.ProviderOrchestrator.GetStockData(ctx, args[0])
	if quote == nil {
		return fmt.Errorf("quote for %s unavailable from every provider", args[0])
	}

	out := map[string]interface{}{"quote": quote}
	if historyDays > 0 {
		out["history"] = services.ProviderOrchestrator.GetHistoricalData(ctx, args[0], historyDays)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
