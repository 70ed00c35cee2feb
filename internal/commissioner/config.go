package commissioner

// Config is the commissioner identity and credentials. Immutable once a
// session starts; it only feeds the staged init payload.
type Config struct {
	// ID names this commissioner towards the border agent.
	ID string

	// CCM enables commercial commissioning mode. The key/cert/anchor
	// files below are only staged in CCM mode.
	CCM bool

	// PSKc is the pre-shared commissioner key (16 bytes).
	PSKc []byte

	// DomainName is the Thread domain for CCM networks.
	DomainName string

	// Local file paths, staged to the remote side before init.
	PrivateKeyFile  string
	CertificateFile string
	TrustAnchorFile string

	// Tuning for the staged init payload. Zero values get the defaults
	// below.
	DTLSDebugLogging  bool
	LogLevel          string
	KeepAliveInterval int
	MaxConnectionNum  int
	LogFile           string
}

func (c Config) withDefaults() Config {
	if c.LogLevel == "" {
		c.LogLevel = "debug"
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 40
	}
	if c.MaxConnectionNum == 0 {
		c.MaxConnectionNum = 100
	}
	if c.LogFile == "" {
		c.LogFile = "/tmp/commissioner.log"
	}
	return c
}
