package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"custom-device-manager/internal/model"
)

// ParseRoster reads the appliance roster CSV (hostname, api_key). Rows
// missing either value are skipped with a warning.
func ParseRoster(r io.Reader) ([]model.Appliance, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read roster header: %w", err)
	}
	colMap := make(map[string]int)
	for i, colName := range header {
		colMap[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	hostCol, ok := colMap["hostname"]
	if !ok {
		return nil, fmt.Errorf("could not find 'hostname' column in roster file")
	}
	keyCol, ok := colMap["api_key"]
	if !ok {
		return nil, fmt.Errorf("could not find 'api_key' column in roster file")
	}

	var appliances []model.Appliance
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		hostname := strings.TrimSpace(field(record, hostCol))
		apiKey := strings.TrimSpace(field(record, keyCol))
		if hostname == "" || apiKey == "" {
			slog.Warn("Skipping roster row with missing hostname or api_key",
				"row", record)
			continue
		}
		appliances = append(appliances, model.Appliance{
			Hostname: hostname,
			APIKey:   apiKey,
		})
	}
	return appliances, nil
}
