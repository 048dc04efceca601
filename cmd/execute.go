package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var executeCmd = &cobra.Command{
	Use:     "execute",
	Short:   "Execute SQL through the capped, time-limited pool",
	Long:    `Runs a single statement, or every statement of a script, the same way notebook cells are executed, and prints the JSON results.`,
	Example: `./db_query_playground execute --dialect tidb --database test --sql "SELECT * FROM bakery"`,
	RunE:    runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
	sqlText, _ := cmd.Flags().GetString("sql")
	sqlFile, _ := cmd.Flags().GetString("file")
	outFile, _ := cmd.Flags().GetString("out_file")
	save, _ := cmd.Flags().GetBool("save")

	var statements []string
	switch {
	case sqlText != "" && sqlFile != "":
		return fmt.Errorf("--sql and --file are mutually exclusive")
	case sqlText != "":
		statements = []string{sqlText}
	case sqlFile != "":
		stmts, err := utils.ReadSQLStatementsFromFile(sqlFile)
		if err != nil {
			return err
		}
		statements = stmts
	default:
		return fmt.Errorf("one of --sql or --file is required")
	}
	if outFile == "" && save {
		outFile = utils.GetDefaultOutputFilePath(cfg.Database.DBName, "execute")
	}

	db, err := setupDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	executor := newExecutor(db, nil)
	results := make([]database.ExecuteSQLResult, 0, len(statements))
	failed := 0
	for _, stmt := range statements {
		res := executor.Execute(cmd.Context(), stmt)
		if !res.OK() {
			failed++
			logger.Warn("Statement failed", zap.String("sql", stmt), zap.String("error", res.Error))
		}
		results = append(results, res)
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := writeOutput(data, outFile); err != nil {
		return err
	}
	logger.Info("Execute operation completed", zap.Int("statements", len(statements)), zap.Int("failed", failed))
	return nil
}

func init() {
	executeCmd.Flags().String("sql", "", "Statement to execute")
	executeCmd.Flags().StringP("file", "f", "", "Script whose statements are executed one by one")
	executeCmd.Flags().StringP("out_file", "o", "", "File path to save results to (optional, prints to stdout otherwise)")
	executeCmd.Flags().Bool("save", false, "Save results to <database>_results.json when --out_file is not set")
}
