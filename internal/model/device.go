package model

// CriteriaColumns are the criteria field names used both by the CSV inputs
// and by the appliance API. Order matters: audit output and row parsing
// walk this list.
var CriteriaColumns = []string{
	"ipaddr", "ipaddr_direction", "ipaddr_peer",
	"src_port_min", "src_port_max",
	"dst_port_min", "dst_port_max",
	"vlan_min", "vlan_max",
}

// DirectionAny is the appliance's "either direction" value. ipaddr_peer is
// not valid in combination with it.
const DirectionAny = "any"

// Criteria is one traffic-matching rule of a custom device. Every field is
// optional; integer fields are pointers so an absent value is
// distinguishable from zero.
type Criteria struct {
	IPAddr     string `json:"ipaddr,omitempty"`
	Direction  string `json:"ipaddr_direction,omitempty"`
	PeerIPAddr string `json:"ipaddr_peer,omitempty"`
	SrcPortMin *int   `json:"src_port_min,omitempty"`
	SrcPortMax *int   `json:"src_port_max,omitempty"`
	DstPortMin *int   `json:"dst_port_min,omitempty"`
	DstPortMax *int   `json:"dst_port_max,omitempty"`
	VLANMin    *int   `json:"vlan_min,omitempty"`
	VLANMax    *int   `json:"vlan_max,omitempty"`
}

// IsZero reports whether no criteria field is set.
func (c Criteria) IsZero() bool {
	return c.IPAddr == "" && c.Direction == "" && c.PeerIPAddr == "" &&
		c.SrcPortMin == nil && c.SrcPortMax == nil &&
		c.DstPortMin == nil && c.DstPortMax == nil &&
		c.VLANMin == nil && c.VLANMax == nil
}

// Device is one custom device, either parsed from desired-state input or
// fetched from an appliance. ID and ModTime are only ever populated on
// fetched devices.
type Device struct {
	ID          int64      `json:"id,omitempty"`
	Name        string     `json:"name"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	Disabled    bool       `json:"disabled"`
	ExtraHopID  string     `json:"extrahop_id,omitempty"`
	ModTime     int64      `json:"mod_time,omitempty"`
	Criteria    []Criteria `json:"criteria"`
}

// DevicePayload is the body sent on create and full-patch calls. It never
// carries the remote id, and ExtraHopID is omitted on patches because the
// API rejects changes to it after creation.
type DevicePayload struct {
	Name        string     `json:"name"`
	Author      string     `json:"author"`
	Description string     `json:"description"`
	Disabled    bool       `json:"disabled"`
	ExtraHopID  string     `json:"extrahop_id,omitempty"`
	Criteria    []Criteria `json:"criteria"`
}

// CriteriaPatch is the body for patches that only replace the criteria list.
type CriteriaPatch struct {
	Criteria []Criteria `json:"criteria"`
}

// CreatePayload builds the create body for a desired device. Criteria is
// always a list on the wire: a device without criteria sends [], never null,
// because on a full patch null would not clear the live entries.
func (d *Device) CreatePayload() DevicePayload {
	criteria := d.Criteria
	if criteria == nil {
		criteria = []Criteria{}
	}
	return DevicePayload{
		Name:        d.Name,
		Author:      d.Author,
		Description: d.Description,
		Disabled:    d.Disabled,
		ExtraHopID:  d.ExtraHopID,
		Criteria:    criteria,
	}
}

// PatchPayload builds the full-patch body for a desired device.
func (d *Device) PatchPayload() DevicePayload {
	p := d.CreatePayload()
	p.ExtraHopID = ""
	return p
}

// DeviceMap maps device name to its merged desired-state record.
type DeviceMap map[string]*Device

// Appliance is one row of the appliance roster.
type Appliance struct {
	Hostname string
	APIKey   string
}
