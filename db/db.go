package db

import (
	"fmt"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"eiprobe/resource"
)

type Connection struct {
	config resource.Config
	*sqlx.DB
}

var _ resource.Resource = Connection{}

// Teardown removes the database file of a fresh sqlite connection.
func (c Connection) Teardown() error {
	if config, ok := c.config.(SQLiteConfig); ok && config.Fresh {
		return os.Remove(config.Path)
	}
	return nil
}

func (c Connection) Close() error {
	return c.DB.Close()
}

func (c Connection) Type() resource.Type {
	return resource.DBConnection
}

//=================================
// SQLite config for db connection
//=================================

type SQLiteConfig struct {
	Path   string
	Schema Schema
	// Fresh drops any existing database file before opening.
	Fresh bool
}

func (conf SQLiteConfig) Materialize() (resource.Resource, error) {
	if conf.Fresh {
		if err := os.Remove(conf.Path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	DB, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", conf.Path))
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; a single connection avoids SQLITE_BUSY
	DB.SetMaxOpenConns(1)
	conn := Connection{config: conf, DB: DB}
	if err = SyncSchema(conn, conf.Schema); err != nil {
		return nil, err
	}
	return conn, nil
}

var _ resource.Config = SQLiteConfig{}

//=================================
// MySQL config for db connection
//=================================

type MySQLConfig struct {
	DBname   string
	Username string
	Password string
	Host     string
	Schema   Schema
}

var _ resource.Config = MySQLConfig{}

func (conf MySQLConfig) Materialize() (resource.Resource, error) {
	connectStr := fmt.Sprintf(
		"%s:%s@tcp(%s)/%s?tls=true",
		conf.Username, conf.Password, conf.Host, conf.DBname,
	)

	DB, err := sqlx.Open("mysql", connectStr)
	if err != nil {
		return nil, err
	}
	conn := Connection{config: conf, DB: DB}
	if err = SyncSchema(conn, conf.Schema); err != nil {
		return nil, err
	}
	return conn, nil
}
