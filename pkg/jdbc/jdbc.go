package jdbc

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/jmoiron/sqlx"
)

// MySQLMasterStatusQuery returns the query to fetch the current binlog position in MySQL
func MySQLMasterStatusQuery() string {
	return "SHOW MASTER STATUS"
}

// MySQLBinaryLogStatusQuery replaces SHOW MASTER STATUS from MySQL 8.4 on
func MySQLBinaryLogStatusQuery() string {
	return "SHOW BINARY LOG STATUS"
}

// MySQLSchemaColumnsQuery returns every column of every base table of one database, in table and ordinal order
func MySQLSchemaColumnsQuery() string {
	return `
		SELECT 
			c.TABLE_NAME AS table_name,
			c.COLUMN_NAME AS column_name,
			c.ORDINAL_POSITION AS ordinal_position,
			c.DATA_TYPE AS data_type,
			c.COLUMN_TYPE AS column_type,
			c.IS_NULLABLE AS is_nullable,
			c.COLUMN_KEY AS column_key,
			c.CHARACTER_SET_NAME AS character_set_name
		FROM 
			INFORMATION_SCHEMA.COLUMNS c
			JOIN INFORMATION_SCHEMA.TABLES t
				ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE 
			c.TABLE_SCHEMA = ?
			AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY 
			c.TABLE_NAME, c.ORDINAL_POSITION
	`
}

// WithIsolation runs fn in a read-only REPEATABLE READ transaction
func WithIsolation(ctx context.Context, client *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := client.BeginTxx(ctx, &sql.TxOptions{
		Isolation: sql.LevelRepeatableRead,
		ReadOnly:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && rerr != sql.ErrTxDone {
			logger.Warnf("transaction rollback failed: %s", rerr)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
