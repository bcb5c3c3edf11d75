package notify

import (
	"fmt"
	"log"
	"os/exec"

	"github.com/godbus/dbus/v5"
)

const appName = "Voicetext"

type Notifier interface {
	ListeningChanged(on bool)
	Error(msg string)
}

// runCommand is swapped in tests.
var runCommand = func(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

func listeningMessage(on bool) string {
	state := "Stopped"
	if on {
		state = "Started"
	}
	return fmt.Sprintf("Voicetext: %s Listening", state)
}

// Desktop shells out to notify-send.
type Desktop struct{}

func (Desktop) ListeningChanged(on bool) {
	if err := runCommand("notify-send", "-a", appName, listeningMessage(on)); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

func (Desktop) Error(msg string) {
	if err := runCommand("notify-send", "-a", appName, "-u", "critical", msg); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

const (
	notificationsDest   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsMethod = "org.freedesktop.Notifications.Notify"
)

// Urgency hint values understood by org.freedesktop.Notifications.
const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// caller is the part of *dbus.Conn the DBus notifier needs.
type caller interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// DBus talks to the notification daemon directly over the session bus.
// Listening notifications replace each other instead of stacking.
type DBus struct {
	conn   caller
	lastID uint32
}

// NewDBus connects to the session bus.
func NewDBus() (*DBus, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &DBus{conn: conn}, nil
}

func (d *DBus) notify(replaces uint32, summary string, urgency byte) (uint32, error) {
	obj := d.conn.Object(notificationsDest, notificationsPath)
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	call := obj.Call(notificationsMethod, 0,
		appName, replaces, "", summary, "", []string{}, hints, int32(-1))
	if call.Err != nil {
		return 0, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *DBus) ListeningChanged(on bool) {
	id, err := d.notify(d.lastID, listeningMessage(on), urgencyNormal)
	if err != nil {
		log.Printf("Failed to send notification: %v", err)
		return
	}
	d.lastID = id
}

func (d *DBus) Error(msg string) {
	if _, err := d.notify(0, msg, urgencyCritical); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

// Log writes notifications to the standard logger.
type Log struct{}

func (Log) ListeningChanged(on bool) {
	log.Printf("Notify: %s", listeningMessage(on))
}

func (Log) Error(msg string) {
	log.Printf("Notify: error: %s", msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) ListeningChanged(on bool) {}
func (Nop) Error(msg string)         {}

// FromConfig picks a notifier for the [notifications] section. A DBus
// notifier that cannot connect falls back to Desktop.
func FromConfig(enabled bool, typ string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch typ {
	case "log":
		return Log{}
	case "none":
		return Nop{}
	case "dbus":
		d, err := NewDBus()
		if err != nil {
			log.Printf("Notify: dbus unavailable, using notify-send: %v", err)
			return Desktop{}
		}
		return d
	default:
		return Desktop{}
	}
}
