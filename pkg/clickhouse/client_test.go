package clickhouse

import (
	"context"
	"net/url"
	"os"
	"strconv"
	"testing"
	"testing/fstest"
	"time"
)

func TestDSN(t *testing.T) {
	dsn := Config{
		Host:             "ch.local",
		Port:             9000,
		Database:         "brentshift",
		User:             "default",
		Password:         "p@ss",
		DialTimeout:      5 * time.Second,
		WriteTimeout:     30 * time.Second,
		MaxExecutionTime: 60 * time.Second,
		AsyncInsert:      true,
		WaitForAsync:     true,
	}.dsn()

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9000" || u.Path != "" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password not preserved: %q", dsn)
	}
	q := u.Query()
	if q.Get("dial_timeout") != "5s" || q.Get("write_timeout") != "30s" || q.Get("max_execution_time") != "60" || q.Get("wait_for_async_insert") != "1" {
		t.Fatalf("unexpected query %v", q)
	}
	if q.Has("read_timeout") {
		t.Fatalf("unset read timeout should be omitted")
	}

	u, _ = url.Parse(Config{Host: "h", Port: 8123, UseHTTP: true}.dsn())
	if u.Scheme != "http" {
		t.Fatalf("unexpected scheme %q", u.Scheme)
	}
}

func TestNewClientRequiresHostAndDatabase(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Database: "d"}); err == nil {
		t.Fatalf("expected error without host")
	}
	if _, err := NewClient(context.Background(), Config{Host: "h"}); err == nil {
		t.Fatalf("expected error without database")
	}
}

// TestMigrate runs against a live server when CLICKHOUSE_ADDR=host:port is set.
func TestMigrate(t *testing.T) {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		t.Skip("CLICKHOUSE_ADDR not set")
	}
	u, err := url.Parse("//" + addr)
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	db := "brentshift_test_" + strconv.FormatInt(time.Now().UnixNano(), 36)

	ctx := context.Background()
	c, err := NewClient(ctx, Config{Host: u.Hostname(), Port: port, Database: db, User: "default", MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() {
		_, _ = c.DB().ExecContext(ctx, "DROP DATABASE IF EXISTS "+db)
		_ = c.Close()
	}()

	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("CREATE TABLE ${DATABASE}.a (x UInt8) ENGINE = Memory")},
		"002_b.sql":  {Data: []byte("CREATE TABLE ${DATABASE}.b (x UInt8) ENGINE = Memory")},
		"README.txt": {Data: []byte("ignored")},
	}
	ran, err := c.Migrate(ctx, fsys)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(ran) != 2 || ran[0] != "001_a.sql" {
		t.Fatalf("unexpected run %v", ran)
	}
	ran, err = c.Migrate(ctx, fsys)
	if err != nil || len(ran) != 0 {
		t.Fatalf("second run should be a no-op, got %v, %v", ran, err)
	}
}
