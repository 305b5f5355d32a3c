package attribute

// Properties are the access rules of an attribute.
type Properties uint8

const (
	// PropRead allows reading the value.
	PropRead Properties = 1 << iota

	// PropWrite allows writing the value.
	PropWrite

	// PropNotify publishes changes to subscribers.
	PropNotify

	// PropAuthenticated requires an authenticated caller. Writes arrive with
	// an authentication envelope; reads need a prior authenticated operation
	// in the session.
	PropAuthenticated

	// PropEncrypted marks command-style writes whose value is an encrypted
	// payload rather than a plain value. Implies PropAuthenticated.
	PropEncrypted
)

// Common property combinations.
const (
	PropReadOnly     = PropRead
	PropReadNotify   = PropRead | PropNotify
	PropWriteAuth    = PropWrite | PropAuthenticated
	PropWriteEncrypt = PropWrite | PropAuthenticated | PropEncrypted
)

// CanRead reports whether reads are allowed.
func (p Properties) CanRead() bool { return p&PropRead != 0 }

// CanWrite reports whether writes are allowed.
func (p Properties) CanWrite() bool { return p&PropWrite != 0 }

// CanNotify reports whether changes are published.
func (p Properties) CanNotify() bool { return p&PropNotify != 0 }

// RequiresAuth reports whether access needs an authenticated caller.
func (p Properties) RequiresAuth() bool { return p&(PropAuthenticated|PropEncrypted) != 0 }

// Encrypted reports whether writes carry an encrypted payload.
func (p Properties) Encrypted() bool { return p&PropEncrypted != 0 }

// String returns the properties as flags, e.g. "RWN+A".
func (p Properties) String() string {
	var s string
	if p.CanRead() {
		s += "R"
	}
	if p.CanWrite() {
		s += "W"
	}
	if p.CanNotify() {
		s += "N"
	}
	if s == "" {
		s = "-"
	}
	switch {
	case p.Encrypted():
		s += "+E"
	case p.RequiresAuth():
		s += "+A"
	}
	return s
}
