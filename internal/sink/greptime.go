package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"birdnest/internal/monitor"
)

// DefaultTable receives violation events when no table is configured.
const DefaultTable = "ndz_violations"

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes one row per update to GreptimeDB.
type GreptimeDBWriter struct {
	client  greptimeClient
	table   string
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, tableName string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port)
	if database != "" {
		cfg = cfg.WithDatabase(database)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = DefaultTable
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("greptimedb export enabled", "host", host, "port", port, "table", tableName)
	return &GreptimeDBWriter{client: client, table: tableName, timeout: 5 * time.Second, now: time.Now, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	if endpoint == "" {
		return "", 0, fmt.Errorf("greptimedb endpoint is empty")
	}
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptimedb port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) newTable() (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	cols := []struct {
		name string
		typ  types.ColumnType
		tag  bool
	}{
		{"serial_number", types.STRING, true},
		{"model", types.STRING, false},
		{"manufacturer", types.STRING, false},
		{"position_x", types.FLOAT64, false},
		{"position_y", types.FLOAT64, false},
		{"altitude", types.FLOAT64, false},
		{"closest_distance", types.FLOAT64, false},
		{"pilot_id", types.STRING, false},
		{"pilot_name", types.STRING, false},
		{"pilot_email", types.STRING, false},
		{"pilot_phone", types.STRING, false},
		{"expired", types.BOOLEAN, false},
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Write inserts a single update row.
func (w *GreptimeDBWriter) Write(u monitor.Update) error {
	tbl, err := w.newTable()
	if err != nil {
		return err
	}
	if err := addRow(tbl, u, w.now()); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptimedb write: %w", err)
	}
	w.log.Debug("greptimedb row written", "serial", u.Serial, "expired", u.Violation == nil)
	return nil
}

func addRow(tbl *table.Table, u monitor.Update, now time.Time) error {
	v := u.Violation
	if v == nil {
		return tbl.AddRow(u.Serial, "", "", 0.0, 0.0, 0.0, 0.0, "", "", "", "", true, now)
	}
	var pilotID, name, email, phone string
	if v.Pilot != nil {
		pilotID, name, email, phone = v.Pilot.PilotID, v.Pilot.Name(), v.Pilot.Email, v.Pilot.PhoneNumber
	}
	ts := v.LastSeen
	if ts.IsZero() {
		ts = now
	}
	return tbl.AddRow(u.Serial, v.Model, v.Manufacturer, v.PositionX, v.PositionY, v.Altitude,
		v.ClosestDistance, pilotID, name, email, phone, false, ts)
}
