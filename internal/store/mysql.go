package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is the database/sql + go-sql-driver/mysql implementation of
// Store.
type MySQLStore struct {
	db *sql.DB
}

// Open opens a connection pool against dsn (a go-sql-driver/mysql DSN, e.g.
// "user:pass@tcp(host:3306)/dbname?parseTime=true").
func Open(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

// Bootstrap creates the tables this store depends on if they don't already
// exist. The domain table columns here are intentionally minimal: the full
// catalogue for customers/products/movements is owned by the HTTP query
// layer, not by the sync engine, which only needs enough columns to prove
// the upsert/append-only write paths.
func (s *MySQLStore) Bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dbf_file_state (
			file_path VARCHAR(512) PRIMARY KEY,
			checksum_map MEDIUMTEXT NOT NULL,
			record_count INT NOT NULL DEFAULT 0,
			last_modified DATETIME NULL,
			status VARCHAR(16) NOT NULL,
			error_message TEXT NULL,
			last_processed DATETIME NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_log (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			file_path VARCHAR(512) NOT NULL,
			operation_type VARCHAR(16) NOT NULL,
			success BOOLEAN NOT NULL,
			records_processed INT NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_message TEXT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS customers (
			numcli VARCHAR(32) PRIMARY KEY,
			nomcli VARCHAR(255) NULL,
			ciudad VARCHAR(128) NULL,
			suspendido VARCHAR(8) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			numart VARCHAR(32) PRIMARY KEY,
			desc_product VARCHAR(255) NULL,
			series_control VARCHAR(64) NULL,
			existencia VARCHAR(32) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS movements (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			tipodoc VARCHAR(16) NULL,
			numdoc VARCHAR(32) NULL,
			numpar VARCHAR(32) NULL,
			numart VARCHAR(32) NULL,
			cant VARCHAR(32) NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify(fmt.Errorf("bootstrap schema: %w", err))
		}
	}

	return nil
}

func (s *MySQLStore) GetFileState(ctx context.Context, path string) (*FileState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT file_path, checksum_map, record_count, last_modified, status, error_message, last_processed
		FROM dbf_file_state WHERE file_path = ?`, path)

	var (
		fs           FileState
		checksumJSON string
		lastModified sql.NullTime
		errMsg       sql.NullString
		lastProc     sql.NullTime
	)

	err := row.Scan(&fs.FilePath, &checksumJSON, &fs.RecordCount, &lastModified, &fs.Status, &errMsg, &lastProc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get file state: %w", err))
	}

	fs.ChecksumMap, err = decodeChecksumMap(checksumJSON)
	if err != nil {
		return nil, fmt.Errorf("decode checksum map for %q: %w", path, err)
	}
	fs.LastModified = lastModified.Time
	fs.ErrorMessage = errMsg.String
	fs.LastProcessed = lastProc.Time

	return &fs, nil
}

func (s *MySQLStore) SaveFileState(ctx context.Context, state FileState) error {
	checksumJSON, err := encodeChecksumMap(state.ChecksumMap)
	if err != nil {
		return fmt.Errorf("encode checksum map: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dbf_file_state
			(file_path, checksum_map, record_count, last_modified, status, error_message, last_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			checksum_map = VALUES(checksum_map),
			record_count = VALUES(record_count),
			last_modified = VALUES(last_modified),
			status = VALUES(status),
			error_message = VALUES(error_message),
			last_processed = VALUES(last_processed)`,
		state.FilePath, checksumJSON, state.RecordCount, nullableTime(state.LastModified),
		state.Status, nullableString(state.ErrorMessage), nullableTime(state.LastProcessed))
	if err != nil {
		return classify(fmt.Errorf("save file state: %w", err))
	}

	return nil
}

func (s *MySQLStore) AppendSyncLog(ctx context.Context, entry SyncLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_log (file_path, operation_type, success, records_processed, duration_ms, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.FilePath, entry.OperationType, entry.Success, entry.RecordsProcessed,
		entry.DurationMS, nullableString(entry.ErrorMessage), entry.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("append sync log: %w", err))
	}

	return nil
}

// WithTx runs fn inside a single SQL transaction, committing on success and
// rolling back on any error fn returns or panics with.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(Tx) error) (rerr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if rerr != nil {
			_ = tx.Rollback()
			return
		}
		rerr = classify(tx.Commit())
	}()

	return fn(&sqlTx{tx: tx})
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) UpsertByKey(ctx context.Context, table, keyColumn, key string, row map[string]any) error {
	cols := sortedColumns(row)

	var placeholders, assignments []string
	args := make([]any, 0, len(cols)+1)

	for _, col := range cols {
		placeholders = append(placeholders, "?")
		assignments = append(assignments, fmt.Sprintf("%s = VALUES(%s)", col, col))
		args = append(args, row[col])
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(assignments, ", "),
	)

	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return classify(fmt.Errorf("upsert %s by %s=%q: %w", table, keyColumn, key, err))
	}

	return nil
}

func (t *sqlTx) InsertAppendOnly(ctx context.Context, table string, row map[string]any) error {
	cols := sortedColumns(row)

	var placeholders []string
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		placeholders = append(placeholders, "?")
		args = append(args, row[col])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return classify(fmt.Errorf("insert %s: %w", table, err))
	}

	return nil
}

func sortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeChecksumMap(m map[int]uint32) (string, error) {
	strKeyed := make(map[string]uint32, len(m))
	for idx, sum := range m {
		strKeyed[strconv.Itoa(idx)] = sum
	}
	b, err := json.Marshal(strKeyed)
	return string(b), err
}

func decodeChecksumMap(s string) (map[int]uint32, error) {
	var strKeyed map[string]uint32
	if err := json.Unmarshal([]byte(s), &strKeyed); err != nil {
		return nil, err
	}

	m := make(map[int]uint32, len(strKeyed))
	for k, v := range strKeyed {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("non-integer checksum map key %q: %w", k, err)
		}
		m[idx] = v
	}
	return m, nil
}
