package usm

import (
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

type messageState int

const (
	statePlain messageState = iota
	stateEncrypted
	stateAuthenticated
	stateReady

	stateReceived
	stateAuthVerified
	stateTimeWindowChecked
	stateDecrypted
	stateDelivered
)

func (s messageState) String() string {
	switch s {
	case statePlain:
		return "plain"
	case stateEncrypted:
		return "encrypted"
	case stateAuthenticated:
		return "authenticated"
	case stateReady:
		return "ready"
	case stateReceived:
		return "received"
	case stateAuthVerified:
		return "auth-verified"
	case stateTimeWindowChecked:
		return "time-window-checked"
	case stateDecrypted:
		return "decrypted"
	case stateDelivered:
		return "delivered"
	}
	return "unknown"
}

// Coordinator runs the user-based security model over whole messages.
// Outgoing messages are encrypted and then authenticated; incoming messages are
// authenticated, checked for timeliness and then decrypted. Algorithms and
// passwords always come from the user table, never from the message.
type Coordinator struct {
	lcd       LocalConfigurationDatastore
	local     *LocalEngine
	validator *Validator
	now       func() time.Time

	auth map[AuthProtocol]*AuthenticationModule
	priv map[PrivProtocol]*PrivacyModule

	stats usmStats
}

// NewCoordinator builds a coordinator over lcd. local may be nil for an engine
// that is never authoritative.
func NewCoordinator(lcd LocalConfigurationDatastore, local *LocalEngine, opts ...Option) (*Coordinator, error) {
	if lcd == nil {
		return nil, errors.New("nil local configuration datastore")
	}
	o := newOptions(opts)
	if o.keys == nil {
		o.keys = NewKeyCache()
	}

	c := &Coordinator{
		lcd:       lcd,
		local:     local,
		validator: newValidator(local, lcd, o),
		now:       o.now,
		auth:      make(map[AuthProtocol]*AuthenticationModule),
		priv:      make(map[PrivProtocol]*PrivacyModule),
	}
	for _, p := range []AuthProtocol{MD5, SHA1, SHA224, SHA256, SHA384, SHA512} {
		m, err := newAuthenticationModule(p, o)
		if err != nil {
			return nil, err
		}
		c.auth[p] = m
	}
	for _, p := range []PrivProtocol{DES, AES128, AES192, AES256} {
		m, err := newPrivacyModule(p, o)
		if err != nil {
			return nil, err
		}
		c.priv[p] = m
	}
	return c, nil
}

func (c *Coordinator) authModule(p AuthProtocol) (*AuthenticationModule, error) {
	m, ok := c.auth[p]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "authentication protocol %v", p)
	}
	return m, nil
}

func (c *Coordinator) privModule(p PrivProtocol) (*PrivacyModule, error) {
	m, ok := c.priv[p]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "privacy protocol %v", p)
	}
	return m, nil
}

// Stats returns the usmStats counters.
func (c *Coordinator) Stats() Statistics {
	return c.stats.snapshot()
}

// ReportVarBind returns the usmStats variable binding a Report PDU carries for
// an error returned by ProcessIncomingMsg.
func (c *Coordinator) ReportVarBind(err error) (VarBind, bool) {
	return c.stats.reportVarBind(err)
}

func (c *Coordinator) trace(msg Message, s messageState) {
	getLogger().WithFields(log.Fields{
		"msg_id": msg.Header.ID,
		"user":   msg.SecurityParameters.UserName,
		"state":  s.String(),
	}).Debug("security state")
}

// lookupUser fetches the user and checks it can serve level.
func (c *Coordinator) lookupUser(sp SecurityParameters, level SecurityLevel) (*USMUserEntry, error) {
	user, err := c.lcd.GetUser(sp.AuthoritativeEngineID, sp.UserName)
	if err != nil {
		return nil, err
	}
	if user.SecurityLevel() < level {
		return nil, errors.Wrapf(ErrUnsupportedSecurityLevel, "user %s supports %v, message requires %v",
			user.Name, user.SecurityLevel(), level)
	}
	return user, nil
}

// fillTimeliness sets the outgoing boots and time from the local engine or the
// time cache. Unknown remote engines keep what the caller supplied.
func (c *Coordinator) fillTimeliness(sp *SecurityParameters) {
	if c.local != nil && c.local.id.Equal(sp.AuthoritativeEngineID) {
		sp.AuthoritativeEngineBoots, sp.AuthoritativeEngineTime = c.local.BootsTime()
		return
	}
	if len(sp.AuthoritativeEngineID) == 0 {
		return
	}
	entry, err := c.lcd.GetTime(sp.AuthoritativeEngineID)
	if err != nil {
		return
	}
	sp.AuthoritativeEngineBoots = entry.Boots
	sp.AuthoritativeEngineTime = entry.EstimatedTime(c.now())
}

// GenerateOutgoingMsg secures msg at the level given by its flags.
func (c *Coordinator) GenerateOutgoingMsg(msg Message) (Message, error) {
	out, err := c.generateOutgoingMsg(msg)
	if err != nil {
		getLogger().WithError(err).WithFields(log.Fields{
			"msg_id": msg.Header.ID,
			"user":   msg.SecurityParameters.UserName,
		}).Warn("outgoing message rejected")
		return Message{}, err
	}
	return out, nil
}

func (c *Coordinator) generateOutgoingMsg(msg Message) (Message, error) {
	if err := msg.Header.Flags.validate(); err != nil {
		return Message{}, err
	}
	if msg.ScopedPDU == nil {
		return Message{}, errors.Wrap(ErrInvalidMessage, "no scoped PDU")
	}
	level := msg.Header.Flags.SecurityLevel()

	out := msg.Clone()
	out.raw = nil
	out.EncryptedPDU = nil
	out.SecurityParameters.AuthenticationParameters = nil
	out.SecurityParameters.PrivacyParameters = nil
	c.fillTimeliness(&out.SecurityParameters)
	c.trace(out, statePlain)

	if level == NoAuthNoPriv {
		if out.SecurityParameters.UserName != "" {
			if _, err := c.lookupUser(out.SecurityParameters, level); err != nil {
				return Message{}, err
			}
		}
		c.trace(out, stateReady)
		return out, nil
	}

	user, err := c.lookupUser(out.SecurityParameters, level)
	if err != nil {
		return Message{}, err
	}
	auth, err := c.authModule(user.AuthProtocol)
	if err != nil {
		return Message{}, err
	}

	if level == AuthPriv {
		priv, err := c.privModule(user.PrivProtocol)
		if err != nil {
			return Message{}, err
		}
		if out, err = priv.EncryptData(out, auth, user.PrivPassword); err != nil {
			return Message{}, err
		}
		c.trace(out, stateEncrypted)
	}

	if out, err = auth.AuthenticateOutgoingMsg(out, user.AuthPassword); err != nil {
		return Message{}, err
	}
	c.trace(out, stateAuthenticated)
	c.trace(out, stateReady)
	return out, nil
}

// ProcessIncomingMsg verifies msg and returns it with its scoped PDU in the
// clear. Any failure drops the message and increments the matching usmStats
// counter. Reportable messages must name the local engine; other messages may
// come from a remote authoritative engine, whose clock is learned on first
// contact.
func (c *Coordinator) ProcessIncomingMsg(msg Message) (Message, error) {
	out, err := c.processIncomingMsg(msg)
	if err != nil {
		c.stats.record(err)
		getLogger().WithError(err).WithFields(log.Fields{
			"msg_id":    msg.Header.ID,
			"user":      msg.SecurityParameters.UserName,
			"engine_id": msg.SecurityParameters.AuthoritativeEngineID.String(),
		}).Warn("incoming message dropped")
		return Message{}, err
	}
	return out, nil
}

func (c *Coordinator) processIncomingMsg(msg Message) (Message, error) {
	c.trace(msg, stateReceived)
	if err := msg.Header.Flags.validate(); err != nil {
		return Message{}, err
	}
	level := msg.Header.Flags.SecurityLevel()
	sp := msg.SecurityParameters

	if err := c.validator.CheckEngineID(sp.AuthoritativeEngineID); err != nil {
		return Message{}, err
	}
	// a reportable message is a request and this engine is its authoritative
	// engine; only responses, reports and notifications carry a remote engine ID
	if msg.Header.Flags.Reportable() && c.local != nil {
		if err := c.validator.CheckLocalEngineID(sp.AuthoritativeEngineID); err != nil {
			return Message{}, err
		}
	}

	if level == NoAuthNoPriv {
		if msg.EncryptedPDU != nil {
			return Message{}, errors.Wrap(ErrInvalidMessage, "encrypted PDU without privacy flag")
		}
		if sp.UserName != "" {
			if _, err := c.lookupUser(sp, level); err != nil {
				return Message{}, err
			}
		}
		c.trace(msg, stateDelivered)
		return msg.Clone(), nil
	}

	user, err := c.lookupUser(sp, level)
	if err != nil {
		return Message{}, err
	}
	auth, err := c.authModule(user.AuthProtocol)
	if err != nil {
		return Message{}, err
	}
	out, err := auth.AuthenticateIncomingMsg(msg, user.AuthPassword)
	if err != nil {
		return Message{}, err
	}
	c.trace(out, stateAuthVerified)

	if err := c.validator.CheckTimeliness(sp); err != nil {
		return Message{}, err
	}
	c.trace(out, stateTimeWindowChecked)

	if level == AuthPriv {
		priv, err := c.privModule(user.PrivProtocol)
		if err != nil {
			return Message{}, err
		}
		if out, err = priv.DecryptData(out, auth, user.PrivPassword); err != nil {
			return Message{}, err
		}
		c.trace(out, stateDecrypted)
	} else if out.EncryptedPDU != nil {
		return Message{}, errors.Wrap(ErrInvalidMessage, "encrypted PDU without privacy flag")
	}

	c.trace(out, stateDelivered)
	return out, nil
}
