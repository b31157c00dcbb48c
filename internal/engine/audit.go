package engine

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"custom-device-manager/internal/model"
)

// Audit writes the appliance's custom devices to a CSV report, one row per
// criteria entry. Scalar columns are only populated on the first row of
// each device; blank cells mean "same device, additional criteria line".
func (r *Reconciler) Audit(outputDir string, verbose, includeCriteria, includeMetrics bool) error {
	slog.Info("Auditing appliance", "host", r.Client.Host())
	devices, err := r.Client.CustomDevices(includeCriteria)
	if err != nil {
		slog.Error("Could not retrieve custom devices for audit",
			"host", r.Client.Host(), "error", err)
		return nil
	}
	if len(devices) == 0 {
		slog.Warn("No custom devices found, skipping audit", "host", r.Client.Host())
		return nil
	}

	filename := fmt.Sprintf("custom_devices_audit_%s.csv", r.Client.Host())
	if outputDir != "" {
		filename = filepath.Join(outputDir, filename)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create audit file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"name"}
	if verbose {
		header = append(header, "author", "description", "disabled",
			"extrahop_id", "id", "mod_time")
	}
	if includeCriteria {
		header = append(header, model.CriteriaColumns...)
	}
	if includeMetrics {
		header = append(header, "bytes")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("could not write audit header: %w", err)
	}

	for i := range devices {
		device := &devices[i]

		var bytesCell string
		if includeMetrics {
			bytesCell = r.deviceBytesCell(device.Name)
		}

		criteria := device.Criteria
		if !includeCriteria || len(criteria) == 0 {
			criteria = []model.Criteria{{}}
		}
		for index, c := range criteria {
			row := []string{device.Name}
			if verbose {
				if index == 0 {
					row = append(row,
						device.Author,
						device.Description,
						strconv.FormatBool(device.Disabled),
						device.ExtraHopID,
						strconv.FormatInt(device.ID, 10),
						strconv.FormatInt(device.ModTime, 10))
				} else {
					row = append(row, "", "", "", "", "", "")
				}
			}
			if includeCriteria {
				row = append(row,
					c.IPAddr, c.Direction, c.PeerIPAddr,
					intCell(c.SrcPortMin), intCell(c.SrcPortMax),
					intCell(c.DstPortMin), intCell(c.DstPortMax),
					intCell(c.VLANMin), intCell(c.VLANMax))
			}
			if includeMetrics {
				if index == 0 {
					row = append(row, bytesCell)
				} else {
					row = append(row, "")
				}
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("could not write audit row: %w", err)
			}
			r.Summary.Audited++
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("could not write audit file: %w", err)
	}
	slog.Info("Custom devices written", "file", filename)
	return nil
}

// deviceBytesCell sums the byte metrics of the custom-role devices matching
// the name. Lookup failures degrade to a zero count rather than aborting
// the audit.
func (r *Reconciler) deviceBytesCell(name string) string {
	results, err := r.Client.SearchDeviceByName(name)
	if err != nil {
		slog.Error("Device search failed", "name", name, "error", err)
		return "0"
	}
	var total float64
	for _, result := range results {
		if result.Role != "custom" {
			continue
		}
		n, err := r.Client.DeviceBytes(result.ID)
		if err != nil {
			slog.Error("Metric query failed", "name", name, "device_id", result.ID, "error", err)
			continue
		}
		total += n
	}
	return strconv.FormatFloat(total, 'f', -1, 64)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
