package usm

import (
	"time"

	"github.com/cornelk/hashmap"
	"github.com/pkg/errors"
)

// LocalConfigurationDatastore holds the USM user table and the time cache of
// remote authoritative engines.
type LocalConfigurationDatastore interface {
	USMUserTable
	USMTimeTable
}

type USMUserTable interface {
	AddUser(USMUserEntry) error
	GetUser(engineID EngineID, name string) (*USMUserEntry, error)
	DeleteUser(engineID EngineID, name string) error
}

type USMTimeTable interface {
	GetTime(engineID EngineID) (*USMTimeEntry, error)
	SetTime(USMTimeEntry) error
}

// USMUserEntry is a row of the user table. An entry with an empty EngineID
// matches every engine; keys are localized to the engine of each message.
type USMUserEntry struct {
	Name         string
	EngineID     EngineID
	AuthProtocol AuthProtocol
	AuthPassword string
	PrivProtocol PrivProtocol
	PrivPassword string
}

// SecurityLevel is the highest level the entry can serve.
func (u USMUserEntry) SecurityLevel() SecurityLevel {
	switch {
	case u.AuthProtocol == NoAuth:
		return NoAuthNoPriv
	case u.PrivProtocol == NoPriv:
		return AuthNoPriv
	}
	return AuthPriv
}

func (u USMUserEntry) validate() error {
	if u.Name == "" || len(u.Name) > 32 {
		return errors.Errorf("user name must be 1 to 32 octets, got %d", len(u.Name))
	}
	if u.AuthProtocol == NoAuth && u.PrivProtocol != NoPriv {
		return errors.Wrapf(ErrUnsupportedSecurityLevel, "user %s has privacy without authentication", u.Name)
	}
	if u.AuthProtocol != NoAuth && u.AuthPassword == "" {
		return errors.Wrapf(ErrWeakCredential, "user %s has no authentication password", u.Name)
	}
	if u.PrivProtocol != NoPriv && len(u.PrivPassword) < minPrivPasswordLength {
		return errors.Wrapf(ErrWeakCredential, "user %s privacy password", u.Name)
	}
	return nil
}

var GenerateUSMUserKey func(engineID EngineID, name string) string = generateUSMUserKey

func generateUSMUserKey(engineID EngineID, name string) string {
	key := make([]byte, 0, len(name)+len(engineID)+1)
	key = append(key, name...)
	key = append(key, ':')
	key = append(key, engineID...)
	return string(key)
}

// USMTimeEntry is what this engine knows about the clock of a remote
// authoritative engine.
type USMTimeEntry struct {
	EngineID       EngineID
	Boots          uint32
	Time           uint32
	LatestReceived uint32
	Updated        time.Time
}

// EstimatedTime is Time advanced by the local time elapsed since Updated.
func (e USMTimeEntry) EstimatedTime(now time.Time) uint32 {
	elapsed := now.Sub(e.Updated) / time.Second
	if elapsed < 0 {
		elapsed = 0
	}
	t := uint64(e.Time) + uint64(elapsed)
	if t > maxEngineTime {
		t = maxEngineTime
	}
	return uint32(t)
}

// MemoryDatastore is a LocalConfigurationDatastore kept in lock-free maps.
type MemoryDatastore struct {
	users hashmap.HashMap
	times hashmap.HashMap
}

func NewMemoryDatastore() *MemoryDatastore {
	return &MemoryDatastore{}
}

func (d *MemoryDatastore) AddUser(u USMUserEntry) error {
	if err := u.validate(); err != nil {
		return err
	}
	u.EngineID = EngineID(cloneBytes(u.EngineID))
	d.users.Set(GenerateUSMUserKey(u.EngineID, u.Name), &u)
	return nil
}

// GetUser prefers an entry bound to engineID over one that matches any engine.
func (d *MemoryDatastore) GetUser(engineID EngineID, name string) (*USMUserEntry, error) {
	v, ok := d.users.GetStringKey(GenerateUSMUserKey(engineID, name))
	if !ok {
		v, ok = d.users.GetStringKey(GenerateUSMUserKey(nil, name))
	}
	if !ok {
		return nil, errors.Wrapf(ErrUnknownUserName, "user %q at engine %v", name, engineID)
	}
	u := *v.(*USMUserEntry)
	u.EngineID = EngineID(cloneBytes(u.EngineID))
	return &u, nil
}

func (d *MemoryDatastore) DeleteUser(engineID EngineID, name string) error {
	key := GenerateUSMUserKey(engineID, name)
	if _, ok := d.users.GetStringKey(key); !ok {
		return errors.Wrapf(ErrUnknownUserName, "user %q at engine %v", name, engineID)
	}
	d.users.Del(key)
	return nil
}

func (d *MemoryDatastore) GetTime(engineID EngineID) (*USMTimeEntry, error) {
	v, ok := d.times.GetStringKey(string(engineID))
	if !ok {
		return nil, ErrCachedSecurityDataNotFound
	}
	e := *v.(*USMTimeEntry)
	e.EngineID = EngineID(cloneBytes(e.EngineID))
	return &e, nil
}

func (d *MemoryDatastore) SetTime(e USMTimeEntry) error {
	if len(e.EngineID) == 0 {
		return errors.Wrap(ErrUnknownEngineID, "time entry without engine ID")
	}
	e.EngineID = EngineID(cloneBytes(e.EngineID))
	d.times.Set(string(e.EngineID), &e)
	return nil
}
