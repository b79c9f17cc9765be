package models

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

var testQueries *Queries

// TestMain 在go test启动之后第一个执行, 用于全局资源管理.
// 未设置 LTI_TEST_DATABASE_URL 时不连接数据库, 依赖数据库的测试会跳过.
func TestMain(m *testing.M) {
	connString := os.Getenv("LTI_TEST_DATABASE_URL")
	if connString == "" {
		os.Exit(m.Run())
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		log.Fatalf("parse database config failed: %v", err)
	}

	// 链路追踪配置
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	conn, connErr := pgxpool.NewWithConfig(context.Background(), cfg)
	if connErr != nil {
		log.Fatalf("connect to database: %v", connErr)
	}

	if err := otelpgx.RecordStats(conn); err != nil {
		log.Fatalf("unable to record database stats: %v", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	schema, err := os.ReadFile("schema.sql")
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := conn.Exec(context.Background(), string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	testQueries = New(conn)
	code := m.Run()
	conn.Close()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testQueries == nil {
		t.Skip("需要设置 LTI_TEST_DATABASE_URL 连接真实数据库")
	}
}
