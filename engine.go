package usm

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const (
	maxEngineBoots = math.MaxInt32
	maxEngineTime  = math.MaxInt32

	engineIDFormatText = 0x04
)

// EngineID is an snmpEngineID: 5 to 32 octets.
type EngineID []byte

func NewEngineID(d []byte) (EngineID, error) {
	if len(d) < 5 || len(d) > 32 {
		return nil, errors.Wrapf(ErrInvalidMessage, "invalid engine ID length %d", len(d))
	}
	return EngineID(cloneBytes(d)), nil
}

// EngineIDFromText builds an RFC 3411 engine ID in the administratively assigned
// text format for the given IANA enterprise number.
func EngineIDFromText(enterprise uint32, text string) (EngineID, error) {
	if enterprise >= 1<<31 {
		return nil, errors.Errorf("enterprise number %d out of range", enterprise)
	}
	if len(text) == 0 || len(text) > 27 {
		return nil, errors.Errorf("engine ID text must be 1 to 27 octets, got %d", len(text))
	}
	d := make([]byte, 5, 5+len(text))
	binary.BigEndian.PutUint32(d, enterprise|0x80000000)
	d[4] = engineIDFormatText
	d = append(d, text...)
	return NewEngineID(d)
}

// ParseEngineID accepts hex, with or without a 0x prefix, or
// "text:<enterprise>:<text>".
func ParseEngineID(s string) (EngineID, error) {
	if strings.HasPrefix(s, "text:") {
		parts := strings.SplitN(s, ":", 3)
		if len(parts) != 3 {
			return nil, errors.Errorf("invalid engine ID %q", s)
		}
		enterprise, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid enterprise number in engine ID %q", s)
		}
		return EngineIDFromText(uint32(enterprise), parts[2])
	}
	d, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid engine ID %q", s)
	}
	return NewEngineID(d)
}

func (e EngineID) Equal(o EngineID) bool {
	return bytes.Equal(e, o)
}

func (e EngineID) String() string {
	return hex.EncodeToString(e)
}

// LocalEngine is the snmpEngineID, snmpEngineBoots and snmpEngineTime of this
// engine. Time counts seconds since the engine was created.
type LocalEngine struct {
	id    EngineID
	boots uint32
	start time.Time
	now   func() time.Time
}

func NewLocalEngine(id EngineID, boots uint32) *LocalEngine {
	return newLocalEngine(id, boots, time.Now)
}

func newLocalEngine(id EngineID, boots uint32, now func() time.Time) *LocalEngine {
	if boots > maxEngineBoots {
		boots = maxEngineBoots
	}
	return &LocalEngine{
		id:    EngineID(cloneBytes(id)),
		boots: boots,
		start: now(),
		now:   now,
	}
}

func (e *LocalEngine) ID() EngineID {
	return EngineID(cloneBytes(e.id))
}

// BootsTime returns the current snmpEngineBoots and snmpEngineTime. When the
// time wraps, boots advances; boots latches at 2147483647.
func (e *LocalEngine) BootsTime() (uint32, uint32) {
	d := e.now().Sub(e.start)
	if d < 0 {
		d = 0
	}
	elapsed := uint64(d / time.Second)
	boots := uint64(e.boots) + elapsed/(maxEngineTime+1)
	if boots > maxEngineBoots {
		boots = maxEngineBoots
	}
	return uint32(boots), uint32(elapsed % (maxEngineTime + 1))
}

// Engine ties the configured local engine, the user datastore and the message
// processing model together.
type Engine struct {
	local       *LocalEngine
	lcd         *MemoryDatastore
	coordinator *Coordinator
	mpm         *MessageProcessingModel
	boots       *BootStore

	closeOnce sync.Once
}

// NewEngine builds an Engine from cfg. When cfg names a boots file, the boot
// counter stored there is advanced and used.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id, err := ParseEngineID(cfg.Engine.ID)
	if err != nil {
		return nil, err
	}

	boots := cfg.Engine.Boots
	var store *BootStore
	if cfg.Engine.BootsFile != "" {
		store, err = OpenBootStore(cfg.Engine.BootsFile)
		if err != nil {
			return nil, err
		}
		if boots, err = store.Increment(id); err != nil {
			store.Close()
			return nil, err
		}
	}

	lcd := NewMemoryDatastore()
	users, err := cfg.UserEntries()
	if err != nil {
		closeBootStore(store)
		return nil, err
	}
	for _, u := range users {
		if err := lcd.AddUser(u); err != nil {
			closeBootStore(store)
			return nil, err
		}
	}

	local := NewLocalEngine(id, boots)
	coordinator, err := NewCoordinator(lcd, local,
		WithTimeWindow(cfg.TimeWindow()),
		WithKeyCache(NewKeyCache()))
	if err != nil {
		closeBootStore(store)
		return nil, err
	}

	getLogger().WithFields(log.Fields{
		"engine_id": id.String(),
		"boots":     boots,
		"users":     len(users),
	}).Info("local engine started")

	return &Engine{
		local:       local,
		lcd:         lcd,
		coordinator: coordinator,
		mpm:         NewMessageProcessingModel(coordinator),
		boots:       store,
	}, nil
}

func closeBootStore(s *BootStore) {
	if s != nil {
		s.Close()
	}
}

func (e *Engine) LocalEngine() *LocalEngine {
	return e.local
}

func (e *Engine) Datastore() *MemoryDatastore {
	return e.lcd
}

func (e *Engine) Coordinator() *Coordinator {
	return e.coordinator
}

func (e *Engine) PrepareDataElements(data []byte) (Message, error) {
	return e.mpm.PrepareDataElements(data)
}

func (e *Engine) PrepareOutgoingMessage(req OutgoingRequest) ([]byte, error) {
	return e.mpm.PrepareOutgoingMessage(req)
}

func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.boots != nil {
			err = e.boots.Close()
		}
	})
	return err
}
