package config

// Bounds and defaults for the relay capacity
const (
	MinClients        = 2   // Smallest relay that makes sense
	MaxClients        = 999 // Largest relay the tunnel accepts
	DefaultMaxClients = 8   // Value the form starts with
)

// RawInput holds the operator's unvalidated form values
type RawInput struct {
	Name       string
	Password   string
	MaxClients int
	Register   bool // "Register to master server" checkbox
}

// StartupConfig is the validated parameter set handed to the relay engine.
// Fields are unexported so a value can't be changed after Build returns it.
type StartupConfig struct {
	name       string
	hasName    bool
	password   string
	hasPass    bool
	maxClients int
	register   bool
}

// NormalizeMaxClients clamps raw into [MinClients, MaxClients]
func NormalizeMaxClients(raw int) int {
	if raw < MinClients {
		return MinClients
	}
	if raw > MaxClients {
		return MaxClients
	}
	return raw
}

// Build turns raw form input into a StartupConfig.
//
// Name and password are each present only when their own field is non-empty;
// an empty field means "use the default name" or "no password" respectively.
func Build(raw RawInput) StartupConfig {
	return StartupConfig{
		name:       raw.Name,
		hasName:    raw.Name != "",
		password:   raw.Password,
		hasPass:    raw.Password != "",
		maxClients: NormalizeMaxClients(raw.MaxClients),
		register:   raw.Register,
	}
}

// Name returns the tunnel name and whether one was supplied
func (c StartupConfig) Name() (string, bool) {
	return c.name, c.hasName
}

// Password returns the relay password and whether one was supplied
func (c StartupConfig) Password() (string, bool) {
	return c.password, c.hasPass
}

// MaxClients returns the relay capacity, always within [MinClients, MaxClients]
func (c StartupConfig) MaxClients() int {
	return NormalizeMaxClients(c.maxClients)
}

// RegisterWithMaster reports whether the relay should announce itself
func (c StartupConfig) RegisterWithMaster() bool {
	return c.register
}

// DisableMasterRegistration is the negated form the relay engine consumes
func (c StartupConfig) DisableMasterRegistration() bool {
	return !c.register
}
