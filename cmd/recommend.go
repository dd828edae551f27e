package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"portfolio-advisor/internal/dto"
)

var profilePath string

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate recommendations for a profile file and print them as JSON",
	RunE:  runRecommend,
}

func init() {
	recommendCmd.Flags().StringVarP(&profilePath, "file", "f", "", "path to a user profile JSON file")
	_ = recommendCmd.MarkFlagRequired("file")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	var profile dto.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return fmt.Errorf("failed to parse profile: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	appDep, err := NewAppDependency(ctx, WithMemoryQueue())
	if err != nil {
		return err
	}
	defer appDep.Close()

	profile.Normalize()
	if err := profile.Validate(appDep.validator); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	_, services, err := appDep.Services(ctx)
	if err != nil {
		return err
	}

	result, err := services.RecommendationGenerator.Generate(ctx, profile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
