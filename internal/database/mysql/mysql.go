package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// mysqlHandler serves TiDB and MySQL. They differ in the process list they
// expose and in whether approximate distinct counts exist.
type mysqlHandler struct {
	query.MySQLDialect
	processList string
}

var _ database.DialectHandler = (*mysqlHandler)(nil)

var (
	tidbHandler      = mysqlHandler{MySQLDialect: query.TiDB, processList: "INFORMATION_SCHEMA.CLUSTER_PROCESSLIST"}
	mysqlOnlyHandler = mysqlHandler{MySQLDialect: query.MySQLDialect{}, processList: "INFORMATION_SCHEMA.PROCESSLIST"}
)

func (h mysqlHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.User == "" || cfg.Password == "" || cfg.DBName == "" || cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, pass, db, instance)")
	}
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName

	d, err := cloudsqlconn.NewDialer(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	network := fmt.Sprintf("cloudsql-%s", instanceConnectionName)

	mysql.RegisterDialContext(network,
		func(ctx context.Context, addr string) (net.Conn, error) {
			conn, dialErr := d.Dial(ctx, instanceConnectionName, opts...)
			if dialErr != nil {
				zap.L().Error("Cloud SQL dial failed",
					zap.String("instance", instanceConnectionName),
					zap.Error(dialErr))
			}
			return conn, dialErr
		})

	mysqlCfg := h.driverConfig(cfg)
	mysqlCfg.Net = network
	mysqlCfg.Addr = instanceConnectionName

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		mysql.DeregisterDialContext(network)
		d.Close()
		return nil, fmt.Errorf("sql.Open failed for CloudSQL MySQL: %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	mysqlCfg := h.driverConfig(cfg)
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dbPool, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard mysql): %w", err)
	}
	return dbPool, nil
}

func (h mysqlHandler) driverConfig(cfg config.DatabaseConfig) *mysql.Config {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.DBName = cfg.DBName
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.ParseTime = true
	mysqlCfg.Timeout = cfg.ConnectTimeout
	return mysqlCfg
}

// TaskLookupSQL finds the connection currently running an exact statement text.
func (h mysqlHandler) TaskLookupSQL() string {
	return fmt.Sprintf("SELECT CAST(ID AS CHAR) FROM %s WHERE INFO = ? LIMIT 1", h.processList)
}

// KillTaskSQL inlines the id: KILL does not accept placeholders.
func (h mysqlHandler) KillTaskSQL(taskID string) (string, []any, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(taskID), 10, 64)
	if err != nil {
		return "", nil, &database.ErrInvalidTaskID{TaskID: taskID}
	}
	return fmt.Sprintf("KILL %d", id), nil, nil
}

func (h mysqlHandler) WarningCountSQL() string {
	return "SELECT @@warning_count"
}

var dataTypes = map[string]database.DataType{
	"TINYINT":    database.DataTypeInt,
	"SMALLINT":   database.DataTypeInt,
	"MEDIUMINT":  database.DataTypeInt,
	"INT":        database.DataTypeInt,
	"BIGINT":     database.DataTypeInt,
	"YEAR":       database.DataTypeInt,
	"FLOAT":      database.DataTypeFloat,
	"DOUBLE":     database.DataTypeFloat,
	"DECIMAL":    database.DataTypeFloat,
	"DATE":       database.DataTypeDatetime,
	"DATETIME":   database.DataTypeDatetime,
	"TIMESTAMP":  database.DataTypeDatetime,
	"CHAR":       database.DataTypeString,
	"VARCHAR":    database.DataTypeString,
	"TEXT":       database.DataTypeString,
	"TINYTEXT":   database.DataTypeString,
	"MEDIUMTEXT": database.DataTypeString,
	"LONGTEXT":   database.DataTypeString,
	"BLOB":       database.DataTypeString,
	"TINYBLOB":   database.DataTypeString,
	"MEDIUMBLOB": database.DataTypeString,
	"LONGBLOB":   database.DataTypeString,
	"BINARY":     database.DataTypeString,
	"VARBINARY":  database.DataTypeString,
	"ENUM":       database.DataTypeString,
	"SET":        database.DataTypeString,
}

// MapDataType maps the names reported by the go-sql-driver/mysql column types.
func (h mysqlHandler) MapDataType(databaseTypeName string) (database.DataType, error) {
	name := strings.TrimPrefix(strings.ToUpper(databaseTypeName), "UNSIGNED ")
	if dt, ok := dataTypes[name]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("%w: %q", database.ErrUnknownColumnType, databaseTypeName)
}

func init() {
	database.RegisterDialectHandler("tidb", tidbHandler)
	database.RegisterDialectHandler("mysql", mysqlOnlyHandler)
	database.RegisterDialectHandler("cloudsqlmysql", mysqlOnlyHandler)
}
