package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/playground"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Compile a chart query request, and optionally run it",
	Long: `Reads a query request (data source, x/y/color dimensions and filters) as JSON,
compiles it to SQL for the configured dialect and prints the statement. With
--dry-run=false the statement is executed and the result is printed instead.`,
	Example: `./db_query_playground query --dialect tidb --request ./request.json --dry-run=false`,
	RunE:    runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	requestFile, _ := cmd.Flags().GetString("request")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	outFile, _ := cmd.Flags().GetString("out_file")
	save, _ := cmd.Flags().GetBool("save")

	raw, err := utils.ReadJSONFile(requestFile)
	if err != nil {
		return err
	}
	var req query.QueryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("failed to decode query request: %w", err)
	}

	if dryRun {
		handler, err := database.GetDialectHandler(cfg.Database.Dialect)
		if err != nil {
			return err
		}
		sql, ok := query.NewCompiler(handler, logger).Compile(req)
		if !ok {
			fmt.Println("-- no dimension selected, nothing to run")
			return nil
		}
		fmt.Println(sql)
		return nil
	}

	if outFile == "" && save {
		outFile = utils.GetDefaultOutputFilePath(cfg.Database.DBName, "query")
	}

	db, err := setupDatabase(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	svc := playground.NewService(newExecutor(db, nil), query.NewCompiler(db.Handler, logger), nil, logger)
	res, err := svc.Query(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res.Error != "" {
		logger.Warn("Query failed", zap.String("error", res.Error))
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return writeOutput(data, outFile)
}

func init() {
	queryCmd.Flags().StringP("request", "r", "-", "JSON file holding the query request (\"-\" reads stdin)")
	queryCmd.Flags().Bool("dry-run", true, "Print the compiled SQL without executing it")
	queryCmd.Flags().StringP("out_file", "o", "", "File path to save the result to (optional, prints to stdout otherwise)")
	queryCmd.Flags().Bool("save", false, "Save the result to <database>_query_result.json when --out_file is not set")
}
