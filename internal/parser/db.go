package parser

import (
	"database/sql"
	"fmt"
	"log/slog"

	"custom-device-manager/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDBProvider loads desired-state devices from a MariaDB inventory
// instead of a CSV file. Expected schema:
//
//	cd_device(name, author, description, disabled, extrahop_id, source)
//	cd_criteria(id, device_name, ipaddr, ipaddr_direction, ipaddr_peer,
//	            src_port_min, src_port_max, dst_port_min, dst_port_max,
//	            vlan_min, vlan_max)
//
// An optional source tag narrows the query to one slice of the inventory.
type MariaDBProvider struct {
	db     *sql.DB
	source string
}

// NewMariaDBProvider opens and pings the database.
func NewMariaDBProvider(dsn, source string) (*MariaDBProvider, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &MariaDBProvider{db: db, source: source}, nil
}

func (p *MariaDBProvider) Close() {
	p.db.Close()
}

// Devices loads and validates the desired-state device map. Criteria rows
// go through the same field validation as CSV rows: bad port values drop
// the field, peer constraints are normalized.
func (p *MariaDBProvider) Devices() (model.DeviceMap, error) {
	devices, err := p.loadDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}
	if err := p.loadCriteria(devices); err != nil {
		return nil, fmt.Errorf("failed to load criteria: %w", err)
	}
	if len(devices) == 0 {
		slog.Warn("No devices found in database, nothing to do", "source", p.source)
	}
	return devices, nil
}

func (p *MariaDBProvider) loadDevices() (model.DeviceMap, error) {
	query := "SELECT name, author, description, disabled, extrahop_id FROM cd_device"
	var args []any
	if p.source != "" {
		query += " WHERE source = ?"
		args = append(args, p.source)
	}
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	devices := model.DeviceMap{}
	for rows.Next() {
		var name string
		var author, description, extrahopID sql.NullString
		var disabled bool
		if err := rows.Scan(&name, &author, &description, &disabled, &extrahopID); err != nil {
			return nil, err
		}
		if name == "" {
			slog.Warn("Skipping device row with empty name")
			continue
		}
		a := author.String
		if a == "" {
			a = DefaultAuthor
		}
		devices[name] = &model.Device{
			Name:        name,
			Author:      a,
			Description: description.String,
			Disabled:    disabled,
			ExtraHopID:  extrahopID.String,
		}
	}
	return devices, rows.Err()
}

func (p *MariaDBProvider) loadCriteria(devices model.DeviceMap) error {
	query := `SELECT c.device_name, c.ipaddr, c.ipaddr_direction, c.ipaddr_peer,
		c.src_port_min, c.src_port_max, c.dst_port_min, c.dst_port_max,
		c.vlan_min, c.vlan_max
		FROM cd_criteria c`
	var args []any
	if p.source != "" {
		query += " JOIN cd_device d ON d.name = c.device_name WHERE d.source = ?"
		args = append(args, p.source)
	}
	query += " ORDER BY c.id"

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var deviceName string
		var ipaddr, direction, peer sql.NullString
		var srcMin, srcMax, dstMin, dstMax, vlanMin, vlanMax sql.NullInt64
		if err := rows.Scan(&deviceName, &ipaddr, &direction, &peer,
			&srcMin, &srcMax, &dstMin, &dstMax, &vlanMin, &vlanMax); err != nil {
			return err
		}
		device, ok := devices[deviceName]
		if !ok {
			slog.Warn("Skipping criteria row for unknown device", "device", deviceName)
			continue
		}

		c := model.Criteria{
			IPAddr:     ipaddr.String,
			Direction:  direction.String,
			PeerIPAddr: peer.String,
			SrcPortMin: portValue(deviceName, "src_port_min", srcMin),
			SrcPortMax: portValue(deviceName, "src_port_max", srcMax),
			DstPortMin: portValue(deviceName, "dst_port_min", dstMin),
			DstPortMax: portValue(deviceName, "dst_port_max", dstMax),
			VLANMin:    intValue(vlanMin),
			VLANMax:    intValue(vlanMax),
		}
		NormalizePeer(&c, deviceName)
		if !c.IsZero() {
			device.Criteria = append(device.Criteria, c)
		}
	}
	return rows.Err()
}

func portValue(device, column string, v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	if !ValidPort(n) {
		slog.Warn("Port value out of range 1-65535, skipping field",
			"device", device, "field", column, "value", n)
		return nil
	}
	return &n
}

func intValue(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
