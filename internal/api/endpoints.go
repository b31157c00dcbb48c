package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"custom-device-manager/internal/model"
)

// metricLookback is how far back the bytes metric query reaches, in
// milliseconds (14 days).
const metricLookback = -1209600000

// SearchResult is one hit from the device search endpoint. Only the fields
// the audit needs are decoded.
type SearchResult struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

// CustomDevices lists all custom devices on the appliance, optionally with
// their criteria.
func (c *Client) CustomDevices(includeCriteria bool) ([]model.Device, error) {
	slog.Info("Retrieving custom devices", "host", c.host)
	path := "/api/v1/customdevices?include_criteria=" + strconv.FormatBool(includeCriteria)
	resp, err := c.Do("GET", path, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("listing custom devices: %s: %s", resp.Status, resp.Body)
	}
	var devices []model.Device
	if err := json.Unmarshal(resp.Body, &devices); err != nil {
		return nil, fmt.Errorf("decoding custom devices: %w", err)
	}
	return devices, nil
}

// CreateCustomDevice attempts to create a custom device. The raw response
// is returned because callers need to distinguish "already exists" from
// other failures by inspecting the body.
func (c *Client) CreateCustomDevice(payload model.DevicePayload) (*Response, error) {
	slog.Info("Creating custom device", "host", c.host, "name", payload.Name)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding create payload: %w", err)
	}
	return c.Do("POST", "/api/v1/customdevices", body)
}

// PatchCustomDevice updates a custom device by its remote id.
func (c *Client) PatchCustomDevice(id int64, payload any) (*Response, error) {
	slog.Info("Patching custom device", "host", c.host, "id", id)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding patch payload: %w", err)
	}
	return c.Do("PATCH", "/api/v1/customdevices/"+strconv.FormatInt(id, 10), body)
}

// DeleteCustomDevice deletes a custom device by its remote id.
func (c *Client) DeleteCustomDevice(id int64) (*Response, error) {
	slog.Info("Deleting custom device", "host", c.host, "id", id)
	return c.Do("DELETE", "/api/v1/customdevices/"+strconv.FormatInt(id, 10), nil)
}

// SearchDeviceByName looks up discovered devices whose name equals the
// given value. Custom devices show up here with role "custom" and a
// metrics-capable id distinct from the custom-device id.
func (c *Client) SearchDeviceByName(name string) ([]SearchResult, error) {
	slog.Debug("Searching for device", "host", c.host, "name", name)
	payload := map[string]any{
		"filter": map[string]any{
			"field":    "name",
			"operand":  name,
			"operator": "=",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding search payload: %w", err)
	}
	resp, err := c.Do("POST", "/api/v1/devices/search", body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("searching device %q: %s: %s", name, resp.Status, resp.Body)
	}
	var results []SearchResult
	if err := json.Unmarshal(resp.Body, &results); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	return results, nil
}

// DeviceBytes queries the net/bytes metric series for a device and returns
// the summed byte count over the lookback window.
func (c *Client) DeviceBytes(deviceID int64) (float64, error) {
	slog.Debug("Querying device metrics", "host", c.host, "device_id", deviceID)
	payload := map[string]any{
		"cycle":           "auto",
		"from":            metricLookback,
		"until":           0,
		"object_type":     "device",
		"object_ids":      []int64{deviceID},
		"metric_category": "net",
		"metric_specs":    []map[string]any{{"name": "bytes"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encoding metric payload: %w", err)
	}
	resp, err := c.Do("POST", "/api/v1/metrics", body)
	if err != nil {
		return 0, err
	}
	if !resp.OK() {
		return 0, fmt.Errorf("querying metrics for device %d: %s: %s", deviceID, resp.Status, resp.Body)
	}

	var metrics struct {
		Stats []struct {
			Values []any `json:"values"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(resp.Body, &metrics); err != nil {
		return 0, fmt.Errorf("decoding metrics: %w", err)
	}
	var total float64
	for _, stat := range metrics.Stats {
		for _, v := range stat.Values {
			if n, ok := v.(float64); ok {
				total += n
			}
		}
	}
	return total, nil
}
