package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/aggregate"
	"github.com/formstat/formstat/internal/decay"
	"github.com/formstat/formstat/internal/form"
	"github.com/formstat/formstat/internal/model"
	"github.com/formstat/formstat/internal/storage"
)

const analyzeSystemPrompt = `You are a sports performance analyst. You are given structured data from a
form-tracking tool and a question about a player or team.

Rules:
- Answer ONLY from the data provided. Never invent or estimate statistics.
- Always cite specific numbers when making a claim.
- If the data is insufficient to answer confidently, say so explicitly.
- Be concise and actionable — focus on what the numbers actually show.
- Avoid generic coaching advice unless it directly explains a pattern in the data.

Data glossary:
- aggregate: per-column weighted means over all matches strictly before the
  cutoff date. Weight = exp(-alpha * age_in_days), so recent matches count
  more. It is a recency-weighted form summary, not a season average.
- alpha: the decay rate. 0.1 halves a match's influence roughly every 7 days.
- recent_observations: the raw per-match rows, most recent last. Missing
  fields were simply not recorded that match.
- form (teams): win/draw/loss record and decayed averages over the last few
  matches before the date. points = 3*wins + draws.
- Columns ending in "Total"/"Successful" come from paired counts such as
  dribbles attempted vs won; their ratio is a success rate.`

var (
	analyzeModel  string
	analyzeAPIKey string
	analyzeCutoff string
	analyzeLast   int
	analyzeWindow int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <entity> <question>",
	Short: "AI-powered grounded analysis (requires ANTHROPIC_API_KEY)",
	Long: `Build a compact JSON document from an entity's stored data (decayed
aggregate, recent observations, and team form for teams) and ask a
question about it. The answer is grounded in that document only.

Example:
  formstat analyze alderete "What has improved over the last month?"`,
	Args: cobra.ExactArgs(2),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "claude-haiku-4-5-20251001", "Anthropic model to use")
	analyzeCmd.Flags().StringVar(&analyzeAPIKey, "api-key", "", "Anthropic API key (falls back to $ANTHROPIC_API_KEY)")
	analyzeCmd.Flags().StringVar(&analyzeCutoff, "cutoff", "", "aggregate cutoff YYYY-MM-DD (default: include all history)")
	analyzeCmd.Flags().IntVar(&analyzeLast, "last", 5, "recent observation rows to include")
	analyzeCmd.Flags().IntVar(&analyzeWindow, "window", form.DefaultWindow, "form window for teams")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	entityID, question := args[0], args[1]

	cutoff, err := parseCutoff(analyzeCutoff)
	if err != nil {
		return err
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	contextJSON, err := buildEntityContext(db, entityID, cutoff)
	if err != nil {
		return err
	}

	return callAnthropic(cmd.Context(), analyzeAPIKey, analyzeModel, contextJSON, question)
}

// buildEntityContext serialises an entity's stored data into compact JSON.
func buildEntityContext(db *storage.DB, entityID string, cutoff time.Time) (string, error) {
	info, err := db.GetEntity(entityID)
	if err != nil {
		return "", fmt.Errorf("query entity: %w", err)
	}

	doc := map[string]interface{}{
		"entity": entityID,
		"cutoff": model.DayOf(cutoff).Format(time.DateOnly),
	}

	if info != nil {
		doc["type"] = string(info.Type)
		doc["observations"] = info.Observations
		doc["date_range"] = info.FirstDate + ".." + info.LastDate

		rows, err := db.LoadEntityObservations(entityID)
		if err != nil {
			return "", fmt.Errorf("load observations: %w", err)
		}
		if len(rows) > 0 {
			table, err := model.NewTable(rows)
			if err != nil {
				return "", fmt.Errorf("build table: %w", err)
			}
			vec, err := aggregate.Aggregate(table, entityID, cutoff, aggregate.Options{})
			if err == nil {
				doc["alpha"] = decay.DefaultAlpha
				doc["aggregate"] = vec.Map()
			} else if !errors.Is(err, aggregate.ErrNoHistory) {
				return "", fmt.Errorf("aggregate: %w", err)
			}

			if len(rows) > analyzeLast {
				rows = rows[len(rows)-analyzeLast:]
			}
			type obsEntry struct {
				Date   string             `json:"date"`
				Values map[string]float64 `json:"values"`
			}
			recent := make([]obsEntry, len(rows))
			for i, r := range rows {
				recent[i] = obsEntry{Date: r.Date.Format(time.DateOnly), Values: r.Values}
			}
			doc["recent_observations"] = recent
		}
	}

	matches, err := db.LoadTeamMatches(entityID)
	if err != nil {
		return "", fmt.Errorf("load matches: %w", err)
	}
	if len(matches) > 0 {
		f, err := form.Compute(matches, entityID, cutoff, form.Options{Window: analyzeWindow})
		if err == nil {
			doc["form"] = map[string]interface{}{
				"matches_included":  f.MatchesIncluded,
				"wins":              f.Wins,
				"draws":             f.Draws,
				"losses":            f.Losses,
				"points":            f.Points(),
				"avg_goals_for":     f.AvgGoalsFor,
				"avg_goals_against": f.AvgGoalsAgainst,
				"avg_goal_diff":     f.AvgGoalDiff,
				"avg_shot_accuracy": f.AvgShotAccuracy,
			}
		} else if !errors.Is(err, aggregate.ErrNoHistory) {
			return "", fmt.Errorf("compute form: %w", err)
		}
	}

	if info == nil && len(matches) == 0 {
		return "", fmt.Errorf("no data found for entity %q", entityID)
	}

	b, err := json.Marshal(doc)
	return string(b), err
}

// callAnthropic streams a response from the Anthropic API and prints it to stdout.
func callAnthropic(ctx context.Context, apiKey, modelID, dataJSON, question string) error {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no API key: set ANTHROPIC_API_KEY or use --api-key")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	userMsg := fmt.Sprintf("DATA:\n%s\n\nQUESTION: %s", dataJSON, question)

	fmt.Fprintln(os.Stdout, "\n─── AI Analysis ─────────────────────────────────────")

	stream := client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: analyzeSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMsg)),
		},
	})

	for stream.Next() {
		evt := stream.Current()
		if evt.Type == "content_block_delta" {
			delta := evt.AsContentBlockDelta()
			if delta.Delta.Type == "text_delta" {
				fmt.Fprint(os.Stdout, delta.Delta.AsTextDelta().Text)
			}
		}
	}
	fmt.Fprintln(os.Stdout, "\n─────────────────────────────────────────────────────")

	if err := stream.Err(); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "401") || strings.Contains(errStr, "authentication") {
			return fmt.Errorf("API authentication failed — check your API key")
		}
		return fmt.Errorf("streaming error: %w", err)
	}
	return nil
}
