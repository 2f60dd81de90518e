package sim

import (
	"context"
	"log"
	"net"
	"strconv"

	"twinsim/internal/telemetry"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// GreptimeDBWriter writes tick records to GreptimeDB via the ingester client
type GreptimeDBWriter struct {
	client *greptime.Client
	db     string
	table  string
}

// NewGreptimeDBWriter creates a new GreptimeDB writer. The table is
// auto-created by GreptimeDB on first write, with a 30d TTL passed as an
// ingest hint.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host := endpoint
	port := 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		host = h
		port, _ = strconv.Atoi(p)
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return &GreptimeDBWriter{
		client: client,
		db:     database,
		table:  telemetry.TickTableName,
	}, nil
}

// Write inserts a single tick record.
func (w *GreptimeDBWriter) Write(rec telemetry.TickRecord) error {
	return w.WriteBatch([]telemetry.TickRecord{rec})
}

// WriteBatch inserts multiple tick records.
func (w *GreptimeDBWriter) WriteBatch(recs []telemetry.TickRecord) error {
	if len(recs) == 0 {
		return nil
	}

	ctx := ingesterContext.New(context.Background(),
		ingesterContext.WithHint([]*ingesterContext.Hint{{Key: "ttl", Value: "30d"}}))

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddFieldColumn("timestamp_s", types.FLOAT64)
	tbl.AddFieldColumn("cpu_utilization", types.FLOAT64)
	tbl.AddFieldColumn("memory_used_kb", types.FLOAT64)
	tbl.AddFieldColumn("battery_remaining_mah", types.FLOAT64)
	tbl.AddFieldColumn("battery_percent", types.FLOAT64)
	tbl.AddFieldColumn("temperature", types.FLOAT64)
	tbl.AddFieldColumn("humidity", types.FLOAT64)
	tbl.AddFieldColumn("light", types.FLOAT64)
	tbl.AddFieldColumn("bytes_sent", types.INT64)
	tbl.AddFieldColumn("bandwidth_utilization", types.FLOAT64)
	tbl.AddFieldColumn("packet_loss_rate", types.FLOAT64)
	tbl.AddFieldColumn("state_accuracy", types.FLOAT64)
	tbl.AddFieldColumn("state_drift", types.FLOAT64)
	tbl.AddFieldColumn("last_sync_tick", types.INT64)
	tbl.AddFieldColumn("sync_event", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	opt := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}
	for _, r := range recs {
		if err := tbl.AddRow(
			r.RunID,
			int64(r.Tick),
			r.TimestampS,
			r.CPUUtilization,
			r.MemoryUsedKB,
			r.BatteryRemainingMAh,
			r.BatteryPercent,
			opt(r.Temperature),
			opt(r.Humidity),
			opt(r.Light),
			r.BytesSent,
			r.BandwidthUtilization,
			r.PacketLossRate,
			r.StateAccuracy,
			r.StateDrift,
			int64(r.LastSyncTick),
			r.SyncEvent,
			r.Timestamp,
		); err != nil {
			return err
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		log.Printf("[GreptimeDBWriter] Write failed: %v", err)
		return err
	}
	return nil
}
