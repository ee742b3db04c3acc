package hubdata

import (
	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

// CurrentVersion is the document schema version written after a successful
// registration. Documents at an older version are reset and re-registered.
const CurrentVersion = 3

// legacyVersion marks documents written by the previous registration scheme.
const legacyVersion = 2

// hubSVersion in versions.global identifies the Hub-S hardware variant.
const hubSVersion = "0.2.0"

// Document is the persisted hub identity document (canvas-hub-data.yml).
type Document struct {
	Hub      HubSection      `yaml:"canvas-hub"`
	User     UserSection     `yaml:"canvas-user"`
	Versions VersionsSection `yaml:"versions"`
	MQTT     MQTTSection     `yaml:"mqtt"`
}

// HubSection holds the device identity and its cloud credentials.
type HubSection struct {
	Version      int     `yaml:"version,omitempty"`
	SerialNumber string  `yaml:"serial-number,omitempty"`
	Secret       string  `yaml:"secret,omitempty"`
	Device       *Device `yaml:"device,omitempty"`
	AccessToken  string  `yaml:"accessToken,omitempty"`
	RefreshToken string  `yaml:"refreshToken,omitempty"`
	ClientID     string  `yaml:"clientId,omitempty"`
}

// Device is the cloud-assigned device record.
type Device struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	SerialNumber string `yaml:"serialNumber,omitempty" json:"serialNumber,omitempty"`
	Type         string `yaml:"type,omitempty" json:"type,omitempty"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`
	Hostname     string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
}

// UserSection holds the linked account and user preferences.
type UserSection struct {
	ID          string      `yaml:"id,omitempty"`
	Username    string      `yaml:"username,omitempty"`
	ActiveSetup ActiveSetup `yaml:"active-setup,omitempty"`
}

// ActiveSetup is the user-selected printer setup.
type ActiveSetup struct {
	ID string `yaml:"id,omitempty"`
}

// VersionsSection records hardware and plugin versions.
type VersionsSection struct {
	Global        string `yaml:"global,omitempty"`
	CanvasPlugin  string `yaml:"canvas-plugin,omitempty"`
	PalettePlugin string `yaml:"palette-plugin,omitempty"`
}

// MQTTSection holds broker settings and provisioned topics.
type MQTTSection struct {
	Broker  BrokerSection  `yaml:"broker"`
	Topics  TopicsSection  `yaml:"topics"`
	Publish PublishSection `yaml:"publish"`
}

// BrokerSection describes the cloud broker.
type BrokerSection struct {
	Endpoint     string `yaml:"endpoint"`
	Port         int    `yaml:"port"`
	Protocol     string `yaml:"protocol"`
	Retain       bool   `yaml:"retain"`
	CleanSession bool   `yaml:"cleanSession"`
}

// TopicsSection holds the topics derived at registration.
type TopicsSection struct {
	Requests   RequestTopics   `yaml:"requests"`
	Broadcasts BroadcastTopics `yaml:"broadcasts"`
}

// RequestTopics are the topics the hub listens on.
type RequestTopics struct {
	AllDevices               string `yaml:"allDevices,omitempty"`
	AllCanvasHubs            string `yaml:"allCanvasHubs,omitempty"`
	DeviceTopicPrefix        string `yaml:"deviceTopicPrefix,omitempty"`
	DeviceRequestTopicPrefix string `yaml:"deviceRequestTopicPrefix,omitempty"`
}

// BroadcastTopics are the topics the hub publishes on.
type BroadcastTopics struct {
	HealthTopic string `yaml:"healthTopic,omitempty"`
	StateTopic  string `yaml:"stateTopic,omitempty"`
}

// PublishSection holds the inputs for topic derivation.
type PublishSection struct {
	TopicPrefix string `yaml:"topicPrefix"`
	OriginName  string `yaml:"originName"`
}

// Defaults returns the document written on first run and after a reset.
func Defaults(mqttCfg config.MQTTConfig) Document {
	return Document{
		MQTT: MQTTSection{
			Broker: BrokerSection{
				Endpoint:     mqttCfg.Broker.Endpoint,
				Port:         mqttCfg.Broker.Port,
				Protocol:     mqttCfg.Broker.Protocol,
				Retain:       mqttCfg.Broker.Retain,
				CleanSession: mqttCfg.Broker.CleanSession,
			},
			Publish: PublishSection{
				TopicPrefix: mqttCfg.TopicPrefix,
				OriginName:  mqttCfg.OriginName,
			},
		},
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	if d.Hub.Device != nil {
		dev := *d.Hub.Device
		out.Hub.Device = &dev
	}
	return out
}

// Registered reports whether the document carries a current registration.
func (d Document) Registered() bool {
	return d.Hub.Version == CurrentVersion && d.DeviceID() != ""
}

// NeedsReset reports whether the document predates the current schema.
func (d Document) NeedsReset() bool {
	return d.Hub.Version == 0 || d.Hub.Version == legacyVersion
}

// DeviceID returns the cloud device id, or "" when unregistered.
func (d Document) DeviceID() string {
	if d.Hub.Device == nil {
		return ""
	}
	return d.Hub.Device.ID
}

// IsHubS reports whether the hardware is the Hub-S variant.
func (d Document) IsHubS() bool {
	return d.Versions.Global == hubSVersion
}

// Linked reports whether a user account is linked.
func (d Document) Linked() bool {
	return d.User.ID != ""
}
