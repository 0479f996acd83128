package usm

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/cornelk/hashmap"
	"github.com/pkg/errors"
)

// DefaultTimeWindow is the RFC 3414 time window.
const DefaultTimeWindow = 150 * time.Second

// Validator checks the engine ID and timeliness of authenticated messages.
// Messages from the local engine are checked against its own clock; messages
// from remote authoritative engines are checked against, and update, the time
// cache.
type Validator struct {
	local  *LocalEngine
	times  USMTimeTable
	window uint32
	now    func() time.Time

	// per remote engine lock, so a check and the cache update it implies are atomic
	locks hashmap.HashMap
}

func NewValidator(local *LocalEngine, times USMTimeTable, opts ...Option) *Validator {
	return newValidator(local, times, newOptions(opts))
}

func newValidator(local *LocalEngine, times USMTimeTable, o options) *Validator {
	return &Validator{
		local:  local,
		times:  times,
		window: uint32(o.timeWindow / time.Second),
		now:    o.now,
	}
}

// CheckEngineID fails with ErrUnknownEngineID for an empty engine ID, which is
// how a discovery request presents itself.
func (v *Validator) CheckEngineID(id EngineID) error {
	if len(id) == 0 {
		return errors.Wrap(ErrUnknownEngineID, "empty authoritative engine ID")
	}
	return nil
}

// CheckLocalEngineID fails with ErrUnknownEngineID unless id names the local
// engine. Requests are only accepted by the engine they are addressed to.
func (v *Validator) CheckLocalEngineID(id EngineID) error {
	if v.local == nil || !v.local.id.Equal(id) {
		return errors.Wrapf(ErrUnknownEngineID, "request addressed to engine %v", id)
	}
	return nil
}

// CheckTimeliness fails with ErrNotInTimeWindow when the boots and time of sp
// fall outside the time window.
func (v *Validator) CheckTimeliness(sp SecurityParameters) error {
	if v.local != nil && v.local.id.Equal(sp.AuthoritativeEngineID) {
		return v.checkAuthoritative(sp)
	}
	return v.checkNonAuthoritative(sp)
}

func (v *Validator) checkAuthoritative(sp SecurityParameters) error {
	boots, engineTime := v.local.BootsTime()
	switch {
	case boots >= maxEngineBoots:
		return errors.Wrap(ErrNotInTimeWindow, "local engine boots exhausted")
	case sp.AuthoritativeEngineBoots != boots:
		return errors.Wrapf(ErrNotInTimeWindow, "boots %d, local boots %d", sp.AuthoritativeEngineBoots, boots)
	case absDiff(sp.AuthoritativeEngineTime, engineTime) > v.window:
		return errors.Wrapf(ErrNotInTimeWindow, "time %d, local time %d", sp.AuthoritativeEngineTime, engineTime)
	}
	return nil
}

func (v *Validator) checkNonAuthoritative(sp SecurityParameters) error {
	if v.times == nil {
		return errors.Wrap(ErrUnknownEngineID, "no time cache for remote engines")
	}
	mu := v.lock(sp.AuthoritativeEngineID)
	mu.Lock()
	defer mu.Unlock()

	now := v.now()
	entry, err := v.times.GetTime(sp.AuthoritativeEngineID)
	if errors.Is(err, ErrCachedSecurityDataNotFound) {
		getLogger().WithFields(log.Fields{
			"engine_id": sp.AuthoritativeEngineID.String(),
			"boots":     sp.AuthoritativeEngineBoots,
			"time":      sp.AuthoritativeEngineTime,
		}).Info("learned remote engine time")
		return v.times.SetTime(USMTimeEntry{
			EngineID:       sp.AuthoritativeEngineID,
			Boots:          sp.AuthoritativeEngineBoots,
			Time:           sp.AuthoritativeEngineTime,
			LatestReceived: sp.AuthoritativeEngineTime,
			Updated:        now,
		})
	}
	if err != nil {
		return err
	}

	if sp.AuthoritativeEngineBoots > entry.Boots ||
		(sp.AuthoritativeEngineBoots == entry.Boots && sp.AuthoritativeEngineTime > entry.LatestReceived) {
		entry = &USMTimeEntry{
			EngineID:       sp.AuthoritativeEngineID,
			Boots:          sp.AuthoritativeEngineBoots,
			Time:           sp.AuthoritativeEngineTime,
			LatestReceived: sp.AuthoritativeEngineTime,
			Updated:        now,
		}
		if err := v.times.SetTime(*entry); err != nil {
			return err
		}
	}

	estimated := entry.EstimatedTime(now)
	switch {
	case entry.Boots >= maxEngineBoots:
		return errors.Wrap(ErrNotInTimeWindow, "remote engine boots exhausted")
	case sp.AuthoritativeEngineBoots < entry.Boots:
		return errors.Wrapf(ErrNotInTimeWindow, "boots %d, cached boots %d", sp.AuthoritativeEngineBoots, entry.Boots)
	case uint64(sp.AuthoritativeEngineTime)+uint64(v.window) < uint64(estimated):
		return errors.Wrapf(ErrNotInTimeWindow, "time %d, estimated time %d", sp.AuthoritativeEngineTime, estimated)
	}
	return nil
}

func (v *Validator) lock(id EngineID) *sync.Mutex {
	key := string(id)
	if mu, ok := v.locks.GetStringKey(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := v.locks.GetOrInsert(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
