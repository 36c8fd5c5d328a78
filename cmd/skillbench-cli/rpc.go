package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bcrosbie/skillbench/internal/orchestrate"
	"github.com/bcrosbie/skillbench/internal/rpccontract"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server and store health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := dial(cmd.Context(), opts.timeout)
			if err != nil {
				return err
			}
			defer done()
			health, err := callStruct(ctx, conn, rpccontract.MethodGetHealth, &emptypb.Empty{})
			if err != nil {
				return err
			}
			return printJSON(health)
		},
	}
}

func newRecommendCmd() *cobra.Command {
	var (
		agent string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "recommend <task description>",
		Short: "Recommend the best benchmarked skill for a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := dial(cmd.Context(), opts.timeout)
			if err != nil {
				return err
			}
			defer done()

			request, err := structpb.NewStruct(map[string]any{
				"task":  strings.Join(args, " "),
				"agent": agent,
				"limit": limit,
			})
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			result, err := callStruct(ctx, conn, rpccontract.MethodRecommend, request)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(result)
			}
			printRecommendation(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "any", "agent family: any, codex, claude or gemini")
	cmd.Flags().IntVar(&limit, "limit", 3, "number of candidates to show (max 5)")
	return cmd
}

func printRecommendation(result map[string]any) {
	best, _ := result["recommendation"].(map[string]any)
	benchmark, _ := result["benchmarkContext"].(map[string]any)

	fmt.Println(titleStyle.Render("Recommended: " + str(best, "slug")))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("strategy %s, agent %s, %d approved of %d skills",
		str(result, "strategy"), str(benchmark, "agentFilter"),
		int(num(benchmark, "approvedSkills")), int(num(benchmark, "totalSkills")))))

	candidates, _ := result["candidates"].([]any)
	rows := make([][]string, 0, len(candidates))
	for i, raw := range candidates {
		candidate, _ := raw.(map[string]any)
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			str(candidate, "slug"),
			fixed(num(candidate, "finalScore"), 4),
			fixed(num(candidate, "retrievalScore"), 4),
			fixed(num(candidate, "averageBenchmarkScore"), 2),
			fmt.Sprint(int(num(candidate, "scoreCount"))),
			str(candidate, "benchmarkAgent"),
		})
	}
	fmt.Println(renderTable([]string{"#", "Skill", "Final", "Retrieval", "Benchmark", "Scores", "Agent"}, rows))
}

func newSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List catalog skills with their benchmark averages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, conn, done, err := dial(cmd.Context(), opts.timeout)
			if err != nil {
				return err
			}
			defer done()
			items, err := callList(ctx, conn, rpccontract.MethodListSkills, &emptypb.Empty{})
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(items)
			}

			rows := make([][]string, 0, len(items))
			for _, raw := range items {
				skill, _ := raw.(map[string]any)
				review, _ := skill["securityReview"].(map[string]any)
				status := str(review, "status")
				if status == "approved" {
					status = okStyle.Render(status)
				} else {
					status = warnStyle.Render(status)
				}
				rows = append(rows, []string{
					str(skill, "slug"),
					status,
					joinStrings(skill["agents"]),
					fmt.Sprint(int(num(skill, "scoreCount"))),
					fixed(num(skill, "averageOverallScore"), 2),
				})
			}
			fmt.Println(renderTable([]string{"Skill", "Review", "Agents", "Scores", "Avg overall"}, rows))
			return nil
		},
	}
}

func newTrialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trial",
		Short: "Inspect, record and orchestrate benchmark trials",
	}
	cmd.AddCommand(newTrialGetCmd())
	cmd.AddCommand(newTrialRecordCmd())
	cmd.AddCommand(newTrialOrchestrateCmd())
	return cmd
}

func newTrialGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <trial-id>",
		Short: "Show a trial with its events and score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, conn, done, err := dial(cmd.Context(), opts.timeout)
			if err != nil {
				return err
			}
			defer done()
			request, err := structpb.NewStruct(map[string]any{"id": args[0]})
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			detail, err := callStruct(ctx, conn, rpccontract.MethodGetTrial, request)
			if err != nil {
				return err
			}
			return printJSON(detail)
		},
	}
}

func newTrialRecordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record <trial.json>",
		Short: "Record a trial result from a JSON file (requires --token)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := readStruct(args[0])
			if err != nil {
				return err
			}
			ctx, conn, done, err := dial(cmd.Context(), opts.timeout)
			if err != nil {
				return err
			}
			defer done()
			result, err := callStruct(ctx, conn, rpccontract.MethodExecuteTrial, request)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newTrialOrchestrateCmd() *cobra.Command {
	var request orchestrate.Request
	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Run a benchmark case in several evaluation modes (requires --token)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			encoded, err := json.Marshal(request)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			payload := &structpb.Struct{}
			if err := payload.UnmarshalJSON(encoded); err != nil {
				return fmt.Errorf("build request: %w", err)
			}

			// Every mode may use the full trial timeout.
			budget := time.Duration(orchestrate.ClampTimeout(request.TimeoutSeconds, orchestrate.MaxTimeoutSeconds)) * time.Second
			budget = budget*time.Duration(max(1, len(request.Modes))) + opts.timeout
			ctx, conn, done, err := dial(cmd.Context(), budget)
			if err != nil {
				return err
			}
			defer done()
			result, err := callStruct(ctx, conn, rpccontract.MethodOrchestrate, payload)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&request.BenchmarkCaseID, "case", "", "benchmark case id")
	cmd.Flags().StringVar(&request.OracleSkillID, "oracle-skill", "", "skill id for oracle_skill mode")
	cmd.Flags().StringVar(&request.Agent, "agent", "", "agent family")
	cmd.Flags().StringVar(&request.Model, "model", "", "model name")
	cmd.Flags().Int64Var(&request.Seed, "seed", 0, "seed passed to the executor")
	cmd.Flags().StringVar(&request.RunID, "run-id", "", "benchmark run id")
	cmd.Flags().StringSliceVar(&request.Modes, "modes", []string{"baseline", "oracle_skill", "library_selection"}, "evaluation modes")
	cmd.Flags().IntVar(&request.TimeoutSeconds, "trial-timeout", 0, "per-mode timeout in seconds (0 uses the case default)")
	return cmd
}

func readStruct(path string) (*structpb.Struct, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	payload := &structpb.Struct{}
	if err := payload.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%s is not a JSON object: %w", path, err)
	}
	return payload, nil
}
