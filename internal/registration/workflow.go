package registration

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/canvas-link/internal/cloud"
	"github.com/nerrad567/canvas-link/internal/credentials"
	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
)

// Device models sent at registration.
const (
	ModelDIY     = "diy"
	ModelMosaic  = "mosaic"
	ModelMosaicS = "mosaic-s"
)

// hubHostnameSuffix is appended to the serial number to form the default
// hostname of a Canvas Hub.
const hubHostnameSuffix = "-canvas-hub.local/"

// diyNameSpace bounds the random number in a DIY device name (13 digits).
const diyNameSpace = 10_000_000_000_000

// defaultLinkPollInterval is how often the linked account is refreshed.
const defaultLinkPollInterval = 5 * time.Minute

// UI notification commands.
const (
	CommandDeviceRegistrationError = "DeviceRegistrationError"
	CommandNewActivationCode       = "newActivationCode"
	CommandAccountUnlinked         = "AccountUnlinked"
	CommandAccountUnlinkError      = "AccountUnlinkError"
	CommandUpdateLinkedUsers       = "UpdateLinkedUsers"
	CommandUpdateIotConnection     = "UpdateIotConnection"
	CommandResetCanvasData         = "resetCanvasData"
)

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// CloudAPI is the subset of the cloud client used by the workflow.
type CloudAPI interface {
	Register(ctx context.Context, req cloud.RegisterRequest) (cloud.Registration, error)
	RefreshAccessToken(ctx context.Context, deviceID, refreshToken string) (string, error)
	GetLink(ctx context.Context, accessToken, deviceID string) (*cloud.LinkedUser, error)
	DeleteLink(ctx context.Context, accessToken, deviceID string) error
	ActivationCode(ctx context.Context, accessToken, deviceID string) (string, error)
	UpdateHostname(ctx context.Context, accessToken, deviceID, hostname string) error
	DeleteDevice(ctx context.Context, accessToken, deviceID string) error
}

// Session is the broker session the workflow connects once credentials
// exist.
type Session interface {
	State() mqtt.State
	IsConnected() bool
	Reconfigure(cfg mqtt.Config) error
	Connect() error
}

// CredentialStore persists issued key material and builds the TLS config.
type CredentialStore interface {
	WriteIssued(b credentials.Bundle) error
	TLSConfig(protocol string) (*tls.Config, error)
}

// Notifier delivers commands to the local UI.
type Notifier interface {
	Notify(command string, data any)
}

// Options holds the dependencies of a Workflow.
type Options struct {
	// Store is the persisted hub document. Required.
	Store *hubdata.Store

	// Credentials stores certificate files. Required.
	Credentials CredentialStore

	// API is the cloud device API. Required.
	API CloudAPI

	// Session is connected after registration. Optional.
	Session Session

	// Notifier receives UI commands. Optional.
	Notifier Notifier

	// Logger is optional.
	Logger Logger

	// Config supplies the hub, MQTT and registration settings. Required.
	Config *config.Config

	// Hostname returns the machine's current network address, or "" when
	// unknown. Defaults to LocalAddress.
	Hostname func() string

	// Now is the clock used for token expiry. Defaults to time.Now.
	Now func() time.Time
}

// Workflow owns the device identity: registration, access tokens, the
// linked account and the hostname record.
//
// Thread Safety: All methods are safe for concurrent use. Run is meant to
// be started once on its own goroutine.
type Workflow struct {
	store    *hubdata.Store
	creds    CredentialStore
	api      CloudAPI
	session  Session
	notifier Notifier
	logger   Logger

	hubCfg      config.HubConfig
	mqttCfg     config.MQTTConfig
	policy      RetryPolicy
	pollEvery   time.Duration
	hostname    func() string
	now         func() time.Time
	registered  atomic.Bool
	iotOnline   atomic.Bool
	tokenMu     sync.Mutex
	randomDigit func() int64
}

// New creates a Workflow. Call Prepare before Run.
func New(opts Options) (*Workflow, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("hub document store is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if opts.API == nil {
		return nil, fmt.Errorf("cloud API is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	w := &Workflow{
		store:    opts.Store,
		creds:    opts.Credentials,
		api:      opts.API,
		session:  opts.Session,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		hubCfg:   opts.Config.Hub,
		mqttCfg:  opts.Config.MQTT,
		policy: RetryPolicy{
			Interval:    time.Duration(opts.Config.Registration.RetryInterval) * time.Second,
			MaxAttempts: opts.Config.Registration.MaxAttempts,
		},
		pollEvery:   time.Duration(opts.Config.Registration.LinkPollInterval) * time.Second,
		hostname:    opts.Hostname,
		now:         opts.Now,
		randomDigit: func() int64 { return rand.Int64N(diyNameSpace) },
	}
	if w.logger == nil {
		w.logger = noopLogger{}
	}
	if w.hostname == nil {
		w.hostname = LocalAddress
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.pollEvery <= 0 {
		w.pollEvery = defaultLinkPollInterval
	}
	w.registered.Store(w.store.Snapshot().Registered())
	return w, nil
}

// SetPolicy overrides the retry policy.
func (w *Workflow) SetPolicy(p RetryPolicy) {
	w.policy = p
}

// Registered reports whether the device holds a current registration.
func (w *Workflow) Registered() bool {
	return w.registered.Load()
}

// Prepare checks the document schema on startup.
//
// A document at the current version is registered. A document without a
// version or at the legacy version is reset to defaults. The configured
// serial number and a local secret are recorded when the document has
// none. It returns whether the device is registered.
func (w *Workflow) Prepare() (bool, error) {
	doc := w.store.Snapshot()
	if doc.NeedsReset() {
		w.logger.Info("hub document predates current schema, resetting", "version", doc.Hub.Version)
		if err := w.store.Reset(); err != nil {
			return false, err
		}
	}

	err := w.store.Update(func(d *hubdata.Document) error {
		if d.Hub.SerialNumber == "" && w.hubCfg.SerialNumber != "" {
			d.Hub.SerialNumber = w.hubCfg.SerialNumber
		}
		if d.Hub.Secret == "" {
			d.Hub.Secret = w.hubCfg.Secret
		}
		if d.Hub.Secret == "" {
			d.Hub.Secret = uuid.NewString()
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	registered := w.store.Snapshot().Registered()
	w.registered.Store(registered)
	return registered, nil
}

// RecordVersions stores the plugin versions when they changed.
func (w *Workflow) RecordVersions(canvasPlugin, palettePlugin string) error {
	doc := w.store.Snapshot()
	if doc.Versions.CanvasPlugin == canvasPlugin && (palettePlugin == "" || doc.Versions.PalettePlugin == palettePlugin) {
		return nil
	}
	return w.store.Update(func(d *hubdata.Document) error {
		d.Versions.CanvasPlugin = canvasPlugin
		if palettePlugin != "" {
			d.Versions.PalettePlugin = palettePlugin
		}
		return nil
	})
}

// Run registers the device, retrying at the policy interval until it
// succeeds, the attempts run out or ctx is cancelled. It returns nil at
// once when the device is already registered.
func (w *Workflow) Run(ctx context.Context) error {
	if w.Registered() {
		return nil
	}
	w.logger.Info("registering device")

	err := w.policy.Do(ctx, w.attempt, func(attempt uint, err error) {
		w.logger.Warn("device registration failed, retrying",
			"attempt", attempt,
			"retry_in", w.policy.Interval,
			"error", err,
		)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("registering device: %w", err)
	}
	return nil
}

// attempt performs one registration round trip.
func (w *Workflow) attempt(ctx context.Context) error {
	req := w.registerRequest(w.store.Snapshot())
	reg, err := w.api.Register(ctx, req)
	if err != nil {
		return err
	}
	if !reg.Complete() {
		w.logger.Debug("registration response has no refresh token")
		return ErrIncompleteRegistration
	}
	return w.complete(ctx, reg)
}

// registerRequest builds the PUT devices body for doc.
func (w *Workflow) registerRequest(doc hubdata.Document) cloud.RegisterRequest {
	var req cloud.RegisterRequest
	if serial := doc.Hub.SerialNumber; serial != "" {
		req = cloud.RegisterRequest{
			Name:         serial,
			SerialNumber: serial,
			Hostname:     serial + hubHostnameSuffix,
			Model:        ModelMosaic,
		}
	} else {
		req = cloud.RegisterRequest{
			Name:  fmt.Sprintf("%d", w.randomDigit()) + doc.Hub.Secret,
			Model: ModelDIY,
		}
	}
	req.Type = mqtt.HubDeviceType

	if host := w.hostname(); host != "" {
		req.Hostname = host
	}
	if doc.IsHubS() {
		req.Model = ModelMosaicS
	}
	return req
}

// complete persists an accepted registration and brings the session up.
// Certificate files are written before the document records the device id.
func (w *Workflow) complete(ctx context.Context, reg cloud.Registration) error {
	err := w.creds.WriteIssued(credentials.Bundle{
		CertificatePEM: reg.Certificate.PEM,
		PrivateKey:     reg.Certificate.PrivateKey,
		PublicKey:      reg.Certificate.PublicKey,
	})
	if err != nil {
		return fmt.Errorf("writing issued credentials: %w", err)
	}

	device := reg.Device
	err = w.store.Update(func(d *hubdata.Document) error {
		d.Hub.RefreshToken = reg.RefreshToken
		d.Hub.AccessToken = reg.AccessToken
		d.Hub.ClientID = reg.ClientID
		d.Hub.Device = &device
		storeTopics(d, mqtt.DeriveTopics(d.MQTT.Publish.TopicPrefix, device.ID, d.MQTT.Publish.OriginName))
		d.Hub.Version = hubdata.CurrentVersion
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}

	w.registered.Store(true)
	w.logger.Info("device registered", "device_id", device.ID, "model", device.Model)

	if err := w.ConnectSession(); err != nil {
		w.logger.Error("connecting session after registration", "error", err)
	}
	if err := w.SyncLinkedAccount(ctx); err != nil {
		w.logger.Error("syncing linked account after registration", "error", err)
	}
	return nil
}

// AccessTokenValid reports whether the stored access token is usable.
func (w *Workflow) AccessTokenValid() bool {
	return credentials.AccessTokenValid(w.store.Snapshot().Hub.AccessToken, w.now())
}

// EnsureAccessToken returns a valid access token, exchanging the refresh
// token for a new one first when the stored token has expired.
func (w *Workflow) EnsureAccessToken(ctx context.Context) (string, error) {
	w.tokenMu.Lock()
	defer w.tokenMu.Unlock()

	doc := w.store.Snapshot()
	if credentials.AccessTokenValid(doc.Hub.AccessToken, w.now()) {
		return doc.Hub.AccessToken, nil
	}
	if doc.DeviceID() == "" {
		return "", ErrNotRegistered
	}
	if doc.Hub.RefreshToken == "" {
		return "", ErrNoRefreshToken
	}

	w.logger.Debug("refreshing access token", "device_id", doc.DeviceID())
	token, err := w.api.RefreshAccessToken(ctx, doc.DeviceID(), doc.Hub.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}
	if err := w.store.Update(func(d *hubdata.Document) error {
		d.Hub.AccessToken = token
		return nil
	}); err != nil {
		return "", err
	}
	return token, nil
}

// HandleConnectionStatus forwards broker connectivity to the UI. It is
// installed as the session's status callback.
func (w *Workflow) HandleConnectionStatus(connected bool) {
	w.iotOnline.Store(connected)
	w.logger.Info("IoT connection status changed", "connected", connected)
	w.notify(CommandUpdateIotConnection, map[string]any{
		"iotConnected": connected,
		"userLinked":   w.store.Snapshot().Linked(),
	})
}

// IoTConnected reports the last status delivered to HandleConnectionStatus.
func (w *Workflow) IoTConnected() bool {
	return w.iotOnline.Load()
}

func (w *Workflow) notify(command string, data any) {
	if w.notifier != nil {
		w.notifier.Notify(command, data)
	}
}
