package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tendant/motion-compare/internal/results"
	"github.com/tendant/motion-compare/internal/storage"
	"github.com/tendant/motion-compare/internal/workflows"
	"github.com/tendant/motion-compare/pkg/client"
	"github.com/tendant/motion-compare/pkg/compare"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <video>...",
		Short: "Report person presence and movement for local videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.ensurePipeline()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(args))
			for _, path := range args {
				v, err := p.Detector.DetectMovement(cmd.Context(), path)
				if err != nil {
					rows = append(rows, []string{filepath.Base(path), "-", "-", "-", "-", "-", err.Error()})
					continue
				}
				rows = append(rows, []string{
					filepath.Base(path),
					strconv.Itoa(v.Frames),
					strconv.Itoa(v.Detections),
					strconv.FormatFloat(v.Score, 'f', 5, 64),
					yesNo(v.PersonPresent),
					yesNo(v.IsMoving),
					v.Status.String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Video", "Frames", "Poses", "Displacement", "Person", "Moving", "Status"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newEmbedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <video>",
		Short: "Compute the aggregate embedding of a local video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.ensurePipeline()
			if err != nil {
				return err
			}
			vec, err := p.Engine.Embed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var norm float64
			for _, v := range vec {
				norm += float64(v) * float64(v)
			}
			head := len(vec)
			if head > 8 {
				head = 8
			}
			rows := [][]string{
				{"Dimensions", strconv.Itoa(len(vec))},
				{"L2 norm", strconv.FormatFloat(math.Sqrt(norm), 'f', 4, 64)},
				{"Head", fmt.Sprint(vec[:head])},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

// pathSource treats the video URL as a local path
type pathSource struct{}

func (pathSource) Fetch(_ context.Context, ref storage.VideoRef) (*storage.LocalVideo, error) {
	if _, err := os.Stat(ref.URL); err != nil {
		return nil, fmt.Errorf("%s: %w", ref.URL, storage.ErrNotFound)
	}
	return storage.NewLocalVideo(ref.URL, nil), nil
}

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var ledgerPath string
	var recordID int64

	cmd := &cobra.Command{
		Use:   "compare <coach-video> <user-video>",
		Short: "Run the full comparison on two local videos",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.ensurePipeline()
			if err != nil {
				return err
			}

			var sink results.Sink = results.Discard{}
			if ledgerPath != "" {
				ledger, err := results.OpenLedger(cmd.Context(), ledgerPath)
				if err != nil {
					return err
				}
				defer ledger.Close()
				sink = ledger
			}

			wf := workflows.NewComparisonWorkflow(pathSource{}, p.Detector, p.Engine, sink, nil, ctx.logger)
			res, err := wf.Execute(&workflows.WorkflowContext{
				Ctx:     cmd.Context(),
				RunID:   uuid.NewString(),
				Request: compare.Request{
					CoachData: compare.CoachData{ExerciseURL: args[0]},
					UserData:  compare.UserData{ExerciseURL: args[1], UserExerciseID: recordID},
				},
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger to record the accuracy in")
	cmd.Flags().Int64Var(&recordID, "record", 1, "Record id used for the ledger entry")
	return cmd
}

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var ledgerPath string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List accuracies stored in a SQLite ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ledgerPath == "" {
				cfg, err := ctx.config()
				if err != nil {
					return err
				}
				ledgerPath = filepath.Join(cfg.StorageDir, "results.db")
			}
			ledger, err := results.OpenLedger(cmd.Context(), ledgerPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			records, err := ledger.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					strconv.FormatInt(r.RecordID, 10),
					strconv.FormatFloat(r.Accuracy, 'f', 2, 64),
					r.UpdatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Record", "Accuracy", "Updated"},
				rows,
				[]columnAlignment{alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "", "SQLite ledger path (default STORAGE_DIR/results.db)")
	return cmd
}

func newSubmitCommand() *cobra.Command {
	var (
		server string
		token  string
		async  bool
		req    compare.Request
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send a comparison request to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(server).WithToken(token)
			if async {
				resp, err := c.CompareAsync(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Run ID", "Seen"},
					[][]string{{resp.RunID, strconv.Itoa(resp.DedupeSeenCount)}},
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			}
			res, err := c.Compare(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&server, "server", "http://localhost:7000", "Comparison server base URL")
	f.StringVar(&token, "token", os.Getenv("COMPARE_TOKEN"), "Bearer token")
	f.BoolVar(&async, "async", false, "Enqueue instead of waiting for the result")
	f.Int64Var(&req.CoachData.ExerciseID, "exercise-id", 0, "Coach exercise id")
	f.StringVar(&req.CoachData.ExerciseURL, "coach-url", "", "Coach video URL")
	f.Int64Var(&req.CoachData.CoachID, "coach-id", 0, "Coach id")
	f.Int64Var(&req.UserData.CoachExerciseID, "coach-exercise-id", 0, "Exercise id referenced by the user")
	f.StringVar(&req.UserData.ExerciseURL, "user-url", "", "User video URL")
	f.Int64Var(&req.UserData.UserExerciseID, "user-exercise-id", 0, "User exercise record id")
	f.Int64Var(&req.UserData.UserID, "user-id", 0, "User id")
	cmd.MarkFlagRequired("coach-url")
	cmd.MarkFlagRequired("user-url")
	cmd.MarkFlagRequired("user-exercise-id")
	return cmd
}

func printResult(cmd *cobra.Command, res *compare.Result) {
	accuracy := "-"
	if res.Accuracy != nil {
		accuracy = strconv.FormatFloat(*res.Accuracy, 'f', 2, 64)
	}
	rows := [][]string{
		{"Status", string(res.Status)},
		{"Accuracy", accuracy},
	}
	if res.Message != "" {
		rows = append(rows, []string{"Message", res.Message})
	}
	if res.RunID != "" {
		rows = append(rows, []string{"Run ID", res.RunID})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
