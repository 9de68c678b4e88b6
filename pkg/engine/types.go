package engine

import "time"

// TransportType selects the SIP transport for TransportCreate.
type TransportType int

const (
	TransportUnspecified TransportType = iota
	TransportUDP
	TransportTCP
	TransportTLS
	TransportWS
)

func (t TransportType) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	case TransportTLS:
		return "tls"
	case TransportWS:
		return "ws"
	default:
		return "unspecified"
	}
}

// CallRole tells which side initiated the call.
type CallRole int

const (
	RoleCaller CallRole = iota
	RoleCallee
)

// CallState is the engine's view of call signaling progress.
type CallState int

const (
	CallNull CallState = iota
	CallCalling
	CallIncoming
	CallEarly
	CallConnecting
	CallConfirmed
	CallDisconnected
)

func (s CallState) String() string {
	switch s {
	case CallCalling:
		return "calling"
	case CallIncoming:
		return "incoming"
	case CallEarly:
		return "early"
	case CallConnecting:
		return "connecting"
	case CallConfirmed:
		return "confirmed"
	case CallDisconnected:
		return "disconnected"
	default:
		return "null"
	}
}

// MediaState is the engine's view of the call's media session.
type MediaState int

const (
	MediaNone MediaState = iota
	MediaActive
	MediaLocalHold
	MediaRemoteHold
	MediaError
)

// MediaDir is the media flow direction.
type MediaDir int

const (
	DirNone MediaDir = iota
	DirEncoding
	DirDecoding
	DirEncodingDecoding
)

// PresenceActivity refines a presence status.
type PresenceActivity int

const (
	ActivityUnknown PresenceActivity = iota
	ActivityAway
	ActivityBusy
)

// EndpointConfig configures the engine endpoint, passed to Init.
type EndpointConfig struct {
	MaxCalls   int
	UserAgent  string
	Nameserver []string
	STUNServer string
}

// DefaultEndpointConfig mirrors the engine's config-default factory.
func DefaultEndpointConfig() *EndpointConfig {
	return &EndpointConfig{
		MaxCalls:  4,
		UserAgent: "softphone",
	}
}

// LogConfig configures engine-level logging, passed to Init.
type LogConfig struct {
	Level        int
	ConsoleLevel int
	MsgLogging   bool
	Filename     string

	// Callback, when set, receives every engine log line instead of
	// the engine writing it itself.
	Callback func(level int, msg string)
}

func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:        5,
		ConsoleLevel: 4,
		MsgLogging:   true,
	}
}

// MediaConfig configures the engine media subsystem, passed to Init.
// Signaling-only engine builds accept and ignore it.
type MediaConfig struct {
	ClockRate     int
	ChannelCount  int
	PTime         int
	MaxMediaPorts int
	Quality       int
	NoVAD         bool
	ECTailLen     int
	JBMin         int
	JBMax         int
	EnableICE     bool
	EnableTURN    bool
	TURNServer    string
}

func DefaultMediaConfig() *MediaConfig {
	return &MediaConfig{
		ClockRate:     16000,
		ChannelCount:  1,
		MaxMediaPorts: 32,
		Quality:       6,
		ECTailLen:     256,
		JBMin:         -1,
		JBMax:         -1,
		EnableICE:     true,
	}
}

// TransportConfig configures a single SIP transport.
type TransportConfig struct {
	Port       int
	BoundAddr  string
	PublicAddr string
}

func DefaultTransportConfig() *TransportConfig {
	return &TransportConfig{Port: 5060}
}

// TransportInfo describes a created transport.
type TransportInfo struct {
	Type        TransportType
	Description string
	IsReliable  bool
	IsSecure    bool
	IsDatagram  bool
	Host        string
	Port        int
	RefCount    int
}

// AuthCredential authenticates an account against registrars and proxies.
type AuthCredential struct {
	Scheme   string
	Realm    string
	Username string
	Password string
}

// AccountConfig describes an account to create.
type AccountConfig struct {
	Priority       int
	ID             string // SIP URI of the account, mandatory
	RegistrarURI   string
	RegTimeout     time.Duration
	ForceContact   string
	Proxy          []string
	Credentials    []AuthCredential
	TransportID    int
	KAInterval     time.Duration
	PublishEnabled bool
}

func DefaultAccountConfig() *AccountConfig {
	return &AccountConfig{
		TransportID: -1,
		RegTimeout:  300 * time.Second,
		KAInterval:  15 * time.Second,
	}
}

// TypicalAccountConfig builds the conventional registrar setup for a
// domain/username/password triple: registrar at the domain, one outbound
// proxy with loose routing, and a wildcard-realm digest credential.
func TypicalAccountConfig(domain, username, password string) *AccountConfig {
	cfg := DefaultAccountConfig()
	cfg.ID = "sip:" + username + "@" + domain
	cfg.RegistrarURI = "sip:" + domain
	cfg.Proxy = []string{"sip:" + domain + ";lr"}
	cfg.Credentials = []AuthCredential{{
		Scheme:   "digest",
		Realm:    "*",
		Username: username,
		Password: password,
	}}
	return cfg
}

// AccountInfo is a snapshot of account state.
type AccountInfo struct {
	IsDefault    bool
	URI          string
	RegActive    bool
	RegExpires   time.Duration
	RegStatus    int
	RegReason    string
	OnlineStatus bool
	OnlineText   string
}

// CallInfo is a snapshot of call state.
type CallInfo struct {
	Role          CallRole
	AccountID     int
	LocalURI      string
	LocalContact  string
	RemoteURI     string
	RemoteContact string
	SIPCallID     string
	State         CallState
	StateText     string
	LastStatus    int
	LastReason    string
	MediaState    MediaState
	MediaDir      MediaDir
	ConnectTime   time.Duration
	TotalTime     time.Duration
}

// BuddyConfig describes a buddy to add.
type BuddyConfig struct {
	URI       string
	Subscribe bool
}

// BuddyInfo is a snapshot of buddy presence state.
type BuddyInfo struct {
	URI          string
	Contact      string
	OnlineStatus bool
	OnlineText   string
	Activity     PresenceActivity
	Subscribed   bool
}
