package registration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nerrad567/canvas-link/internal/hubdata"
)

// hostnameProbe is a non-routable address used to find the outbound
// interface. Dialling UDP sends no packets.
const hostnameProbe = "10.255.255.255:1"

// SyncLinkedAccount fetches the linked account and stores it. A 204 from
// the cloud clears the local account. Errors are returned once and not
// retried.
func (w *Workflow) SyncLinkedAccount(ctx context.Context) error {
	doc := w.store.Snapshot()
	deviceID := doc.DeviceID()
	if deviceID == "" {
		return ErrNotRegistered
	}

	token, err := w.EnsureAccessToken(ctx)
	if err != nil {
		return err
	}
	user, err := w.api.GetLink(ctx, token, deviceID)
	if err != nil {
		return fmt.Errorf("fetching linked account: %w", err)
	}

	err = w.store.Update(func(d *hubdata.Document) error {
		if user == nil {
			d.User = hubdata.UserSection{}
			return nil
		}
		d.User.ID = user.ID
		d.User.Username = user.Username
		return nil
	})
	if err != nil {
		return err
	}

	if user == nil {
		w.logger.Debug("no linked account")
	} else {
		w.logger.Debug("linked account synced", "username", user.Username)
	}
	w.NotifyLinkedUsers()
	return nil
}

// PollLinkedAccount refreshes the linked account every poll interval
// until ctx is done. Ticks before registration are skipped.
func (w *Workflow) PollLinkedAccount(ctx context.Context) error {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !w.Registered() {
				continue
			}
			if err := w.SyncLinkedAccount(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("linked account poll failed", "error", err)
			}
		}
	}
}

// NotifyLinkedUsers sends the linked username list to the UI.
func (w *Workflow) NotifyLinkedUsers() {
	users := []map[string]string{}
	if name := w.store.Snapshot().User.Username; name != "" {
		users = append(users, map[string]string{"username": name})
	}
	w.notify(CommandUpdateLinkedUsers, map[string]any{"users": users})
}

// AddUser requests an activation code the user enters in the cloud app
// to link this hub. It does nothing when an account is already linked.
func (w *Workflow) AddUser(ctx context.Context) error {
	if !w.Registered() {
		w.notify(CommandDeviceRegistrationError, nil)
		return ErrNotRegistered
	}
	doc := w.store.Snapshot()
	if doc.User.Username != "" {
		w.logger.Info("account already linked", "username", doc.User.Username)
		return nil
	}

	token, err := w.EnsureAccessToken(ctx)
	if err != nil {
		return err
	}
	code, err := w.api.ActivationCode(ctx, token, doc.DeviceID())
	if err != nil {
		return fmt.Errorf("fetching activation code: %w", err)
	}
	w.notify(CommandNewActivationCode, code)
	return nil
}

// UnlinkUser removes the linked account in the cloud and locally.
func (w *Workflow) UnlinkUser(ctx context.Context) error {
	if !w.Registered() {
		w.notify(CommandAccountUnlinkError, nil)
		return ErrNotRegistered
	}
	doc := w.store.Snapshot()
	username := doc.User.Username
	if username == "" {
		w.logger.Info("device is not linked to any account")
		return nil
	}

	token, err := w.EnsureAccessToken(ctx)
	if err != nil {
		w.notify(CommandAccountUnlinkError, nil)
		return err
	}
	if err := w.api.DeleteLink(ctx, token, doc.DeviceID()); err != nil {
		w.logger.Error("unlinking account", "error", err)
		w.notify(CommandAccountUnlinkError, nil)
		return fmt.Errorf("unlinking account: %w", err)
	}

	if err := w.store.Update(func(d *hubdata.Document) error {
		d.User = hubdata.UserSection{}
		return nil
	}); err != nil {
		return err
	}
	w.NotifyLinkedUsers()
	w.notify(CommandAccountUnlinked, map[string]string{"username": username})
	return nil
}

// ResetCanvasData deregisters the device and deletes the hub document.
//
// Cloud failures are logged and do not stop the local reset. The UI is
// told "true" when a document was deleted and "false" when none existed.
func (w *Workflow) ResetCanvasData(ctx context.Context) error {
	w.logger.Info("resetting canvas data")
	doc := w.store.Snapshot()

	if id := doc.DeviceID(); id != "" {
		if token, err := w.EnsureAccessToken(ctx); err != nil {
			w.logger.Error("access token unavailable for deregistration", "error", err)
		} else if err := w.api.DeleteDevice(ctx, token, id); err != nil {
			w.logger.Error("deleting device", "device_id", id, "error", err)
		} else {
			w.logger.Debug("device deleted", "device_id", id)
		}
	}

	_, statErr := os.Stat(w.store.Path())
	existed := statErr == nil

	if err := w.store.Remove(); err != nil {
		w.notify(CommandResetCanvasData, "false")
		return err
	}
	w.registered.Store(false)

	if existed {
		w.notify(CommandResetCanvasData, "true")
	} else {
		w.logger.Info("hub document not found")
		w.notify(CommandResetCanvasData, "false")
	}
	return nil
}

// SyncHostname reports a changed network address to the cloud.
//
// Only devices whose record carries a hostname are synced. The new
// hostname is stored before the cloud call, which is attempted once.
func (w *Workflow) SyncHostname(ctx context.Context) error {
	doc := w.store.Snapshot()
	if doc.Hub.Device == nil || doc.Hub.Device.Hostname == "" {
		return nil
	}
	host := w.hostname()
	if host == "" || host == doc.Hub.Device.Hostname {
		return nil
	}

	w.logger.Info("hostname changed", "old", doc.Hub.Device.Hostname, "new", host)
	if err := w.store.Update(func(d *hubdata.Document) error {
		if d.Hub.Device == nil {
			return errors.New("device record removed")
		}
		d.Hub.Device.Hostname = host
		return nil
	}); err != nil {
		return err
	}

	token, err := w.EnsureAccessToken(ctx)
	if err != nil {
		return err
	}
	if err := w.api.UpdateHostname(ctx, token, doc.DeviceID(), host); err != nil {
		return fmt.Errorf("updating hostname: %w", err)
	}
	return nil
}

// LocalAddress returns the IP of the interface used for outbound traffic,
// or "" when it cannot be determined.
func LocalAddress() string {
	conn, err := net.Dial("udp", hostnameProbe)
	if err != nil {
		return ""
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}
