package database

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
}

// ClickHouseConfig locates the ClickHouse instance holding analytics_events.
type ClickHouseConfig struct {
	Host        string
	NativePort  int
	Database    string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// ClickHouseConfigFromEnv reads the CLICKHOUSE_* variables. Host, native
// port and database are required.
func ClickHouseConfigFromEnv() (ClickHouseConfig, error) {
	cfg := ClickHouseConfig{
		Host:        os.Getenv("CLICKHOUSE_HOST"),
		Database:    os.Getenv("CLICKHOUSE_DB_NAME"),
		Username:    os.Getenv("CLICKHOUSE_USERNAME"),
		Password:    os.Getenv("CLICKHOUSE_PASSWORD"),
		DialTimeout: 5 * time.Second,
	}
	portStr := os.Getenv("CLICKHOUSE_NATIVE_PORT")
	if cfg.Host == "" || portStr == "" || cfg.Database == "" {
		return ClickHouseConfig{}, fmt.Errorf("CLICKHOUSE_HOST, CLICKHOUSE_NATIVE_PORT, or CLICKHOUSE_DB_NAME environment variables are not set")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return ClickHouseConfig{}, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT %q", portStr)
	}
	cfg.NativePort = port
	return cfg, nil
}

// Options builds the native-protocol client options: LZ4 compression and the
// washday-api client name reported in system.query_log.
func (c ClickHouseConfig) Options() *clickhouse.Options {
	dialTimeout := c.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(c.Host, strconv.Itoa(c.NativePort))},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "washday-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: dialTimeout,
	}
}

// NewClickHouseDB connects using ClickHouseConfigFromEnv.
func NewClickHouseDB() (*ClickHouseClient, error) {
	cfg, err := ClickHouseConfigFromEnv()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return OpenClickHouse(ctx, cfg)
}

// OpenClickHouse connects, pings and makes sure the events table exists.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseClient, error) {
	conn, err := clickhouse.Open(cfg.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse at %s: %w", cfg.Host, err)
	}

	if err := ensureEventsTable(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("Connected to ClickHouse database %s at %s", cfg.Database, cfg.Host)
	return &ClickHouseClient{Conn: conn}, nil
}

func ensureEventsTable(ctx context.Context, conn clickhouse.Conn) error {
	err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analytics_events (
			event_id    String,
			event_type  LowCardinality(String),
			user_id     String,
			session_id  String,
			timestamp   DateTime64(3, 'UTC'),
			page_path   String,
			referrer    String,
			user_agent  String,
			ip_address  String,
			duration_ms Int64,
			location    String,
			event_data  String
		)
		ENGINE = MergeTree
		ORDER BY (event_type, timestamp)
	`)
	if err != nil {
		return fmt.Errorf("failed to create analytics_events table: %w", err)
	}
	return nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		c.Conn.Close()
		log.Println("ClickHouse connection closed.")
	}
}
