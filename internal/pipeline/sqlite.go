package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// CreateDatabase 删除旧文件后新建 SQLite 数据库并执行建表脚本。
func CreateDatabase(logger *logrus.Logger, path, script string) (*sqlite.Conn, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := RemoveStale(logger, path); err != nil {
		return nil, err
	}
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, script, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema in %s: %w", path, err)
	}
	return conn, nil
}

// Exec 执行一条带参数的语句。
func Exec(conn *sqlite.Conn, query string, args ...any) error {
	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
}

// ReadStaticCache 读取 SQLite 形式的 .static 资源：表 cache(key, value)，value 为 JSON。
func ReadStaticCache(path string, fn func(key int64, value map[string]any) error) error {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer conn.Close()

	return sqlitex.Execute(conn, "SELECT key, value FROM cache ORDER BY key", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key := stmt.ColumnInt64(0)
			value, err := decodeJSONObject([]byte(stmt.ColumnText(1)))
			if err != nil {
				return fmt.Errorf("%s key %d: %w", filepath.Base(path), key, err)
			}
			return fn(key, value)
		},
	})
}

// WriteDatabase 新建数据库，在单个事务内执行 fill，最后关闭连接。
func WriteDatabase(logger *logrus.Logger, path, script string, fill func(conn *sqlite.Conn) error) (err error) {
	conn, err := CreateDatabase(logger, path, script)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conn.Close(); err == nil {
			err = closeErr
		}
	}()

	defer sqlitex.Save(conn)(&err)
	return fill(conn)
}

// NullInt 把空指针绑定为 NULL。
func NullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
