// Package parser loads desired-state and roster inputs. Devices can come
// from CSV files or from a MariaDB inventory; both paths produce the same
// validated DeviceMap.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"custom-device-manager/internal/model"
)

// DefaultAuthor is used when a device row leaves the author column blank.
const DefaultAuthor = "API Automation"

// ParseDevices reads a device CSV and merges its rows into a DeviceMap.
// Rows sharing a name form one device: the first row supplies the scalar
// fields, and every row contributes at most one criteria entry. Field-level
// validation failures drop the field with a warning, never the row.
func ParseDevices(r io.Reader) (model.DeviceMap, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		slog.Warn("Device file is empty, nothing to do")
		return model.DeviceMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}

	colMap := make(map[string]int)
	for i, colName := range header {
		colMap[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	nameCol, ok := colMap["name"]
	if !ok {
		return nil, fmt.Errorf("could not find 'name' column in device file")
	}

	devices := model.DeviceMap{}
	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows++

		name := strings.TrimSpace(field(record, nameCol))
		if name == "" {
			slog.Warn("Skipping row with empty name", "row", record)
			continue
		}

		if _, seen := devices[name]; !seen {
			devices[name] = deviceFromRecord(name, colMap, record)
		}

		criteria := criteriaFromRecord(name, colMap, record)
		if !criteria.IsZero() {
			devices[name].Criteria = append(devices[name].Criteria, criteria)
		}
	}

	if rows == 0 {
		slog.Warn("No devices found in input, nothing to do")
	}
	return devices, nil
}

// deviceFromRecord builds the scalar part of a device from its first row.
func deviceFromRecord(name string, colMap map[string]int, record []string) *model.Device {
	col := func(key string) string {
		i, ok := colMap[key]
		if !ok {
			return ""
		}
		return strings.TrimSpace(field(record, i))
	}

	author := col("author")
	if author == "" {
		author = DefaultAuthor
	}
	return &model.Device{
		Name:        name,
		Author:      author,
		Description: col("description"),
		Disabled:    strings.EqualFold(col("disabled"), "true"),
		ExtraHopID:  col("extrahop_id"),
	}
}

// criteriaFromRecord extracts and validates one criteria entry from a row.
// Returns a zero Criteria when no field survives.
func criteriaFromRecord(name string, colMap map[string]int, record []string) model.Criteria {
	var c model.Criteria
	for _, key := range model.CriteriaColumns {
		i, ok := colMap[key]
		if !ok {
			continue
		}
		val := strings.TrimSpace(field(record, i))
		if val == "" {
			continue
		}
		switch key {
		case "ipaddr":
			c.IPAddr = val
		case "ipaddr_direction":
			c.Direction = val
		case "ipaddr_peer":
			c.PeerIPAddr = val
		default:
			n, err := strconv.Atoi(val)
			if err != nil {
				slog.Warn("Invalid integer value, skipping field",
					"device", name, "field", key, "value", val)
				continue
			}
			if isPortColumn(key) && !ValidPort(n) {
				slog.Warn("Port value out of range 1-65535, skipping field",
					"device", name, "field", key, "value", n)
				continue
			}
			setIntField(&c, key, n)
		}
	}
	NormalizePeer(&c, name)
	return c
}

// NormalizePeer drops ipaddr_peer when it cannot apply: without an ipaddr,
// or when the direction is "any".
func NormalizePeer(c *model.Criteria, device string) {
	if c.PeerIPAddr == "" {
		return
	}
	if c.IPAddr == "" {
		slog.Warn("ipaddr_peer specified without ipaddr, removing ipaddr_peer",
			"device", device)
		c.PeerIPAddr = ""
		return
	}
	if c.Direction == model.DirectionAny {
		slog.Warn("ipaddr_peer is not valid when ipaddr_direction is \"any\", removing ipaddr_peer",
			"device", device)
		c.PeerIPAddr = ""
	}
}

// ValidPort reports whether n is a usable TCP/UDP port number.
func ValidPort(n int) bool {
	return n >= 1 && n <= 65535
}

func isPortColumn(key string) bool {
	return strings.HasSuffix(key, "_port_min") || strings.HasSuffix(key, "_port_max")
}

func setIntField(c *model.Criteria, key string, n int) {
	v := n
	switch key {
	case "src_port_min":
		c.SrcPortMin = &v
	case "src_port_max":
		c.SrcPortMax = &v
	case "dst_port_min":
		c.DstPortMin = &v
	case "dst_port_max":
		c.DstPortMax = &v
	case "vlan_min":
		c.VLANMin = &v
	case "vlan_max":
		c.VLANMax = &v
	}
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a UTF-8 byte-order mark so headers written by Excel
// resolve correctly.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}
