// Package types contains SMB2 protocol constants, NT status codes and the
// small wire structures shared by the header, the handlers and the adapter.
//
// Reference: [MS-SMB2] Server Message Block Protocol Versions 2 and 3.
package types

import "fmt"

// SMB1ProtocolID is the SMB1 protocol identifier (little-endian: 0xFF 'S' 'M' 'B')
const SMB1ProtocolID uint32 = 0x424D53FF

// SMB2ProtocolID is the SMB2 protocol identifier (little-endian: 0xFE 'S' 'M' 'B')
const SMB2ProtocolID uint32 = 0x424D53FE

// SMB1CommandNegotiate is the only SMB1 command the server understands.
const SMB1CommandNegotiate uint8 = 0x72

// Command is an SMB2 command code. [MS-SMB2] 2.2.1
type Command uint16

const (
	CommandNegotiate      Command = 0x0000
	CommandSessionSetup   Command = 0x0001
	CommandLogoff         Command = 0x0002
	CommandTreeConnect    Command = 0x0003
	CommandTreeDisconnect Command = 0x0004
	CommandCreate         Command = 0x0005
	CommandClose          Command = 0x0006
	CommandFlush          Command = 0x0007
	CommandRead           Command = 0x0008
	CommandWrite          Command = 0x0009
	CommandLock           Command = 0x000A
	CommandIoctl          Command = 0x000B
	CommandCancel         Command = 0x000C
	CommandEcho           Command = 0x000D
	CommandQueryDirectory Command = 0x000E
	CommandChangeNotify   Command = 0x000F
	CommandQueryInfo      Command = 0x0010
	CommandSetInfo        Command = 0x0011
	CommandOplockBreak    Command = 0x0012
)

var commandNames = [...]string{
	"NEGOTIATE", "SESSION_SETUP", "LOGOFF", "TREE_CONNECT", "TREE_DISCONNECT",
	"CREATE", "CLOSE", "FLUSH", "READ", "WRITE", "LOCK", "IOCTL", "CANCEL",
	"ECHO", "QUERY_DIRECTORY", "CHANGE_NOTIFY", "QUERY_INFO", "SET_INFO",
	"OPLOCK_BREAK",
}

// String returns the command name as used in [MS-SMB2], e.g. SESSION_SETUP.
func (c Command) String() string {
	if int(c) < len(commandNames) {
		return commandNames[c]
	}
	return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(c))
}

// HeaderFlags are the SMB2 header flags. [MS-SMB2] 2.2.1.1
type HeaderFlags uint32

const (
	FlagResponse   HeaderFlags = 0x00000001
	FlagAsync      HeaderFlags = 0x00000002
	FlagRelated    HeaderFlags = 0x00000004
	FlagSigned     HeaderFlags = 0x00000008
	FlagPriority   HeaderFlags = 0x00000070
	FlagDFS        HeaderFlags = 0x10000000
	FlagReplayOp   HeaderFlags = 0x20000000
	flagsKnownMask             = FlagResponse | FlagAsync | FlagRelated | FlagSigned | FlagPriority | FlagDFS | FlagReplayOp
)

func (f HeaderFlags) IsResponse() bool { return f&FlagResponse != 0 }
func (f HeaderFlags) IsAsync() bool    { return f&FlagAsync != 0 }
func (f HeaderFlags) IsRelated() bool  { return f&FlagRelated != 0 }
func (f HeaderFlags) IsSigned() bool   { return f&FlagSigned != 0 }

// Unknown returns the bits that are not defined by the protocol.
func (f HeaderFlags) Unknown() HeaderFlags { return f &^ flagsKnownMask }

// Dialect is an SMB2 dialect revision. [MS-SMB2] 2.2.3
type Dialect uint16

const (
	Dialect0202     Dialect = 0x0202 // SMB 2.0.2
	Dialect0210     Dialect = 0x0210 // SMB 2.1
	Dialect0300     Dialect = 0x0300 // SMB 3.0
	Dialect0302     Dialect = 0x0302 // SMB 3.0.2
	Dialect0311     Dialect = 0x0311 // SMB 3.1.1
	DialectWildcard Dialect = 0x02FF // SMB 2.???, only used in SMB1 upgrade responses
)

// SupportedDialects lists the dialects the server implements, highest first.
var SupportedDialects = []Dialect{Dialect0311, Dialect0302, Dialect0300, Dialect0210, Dialect0202}

func (d Dialect) String() string {
	switch d {
	case Dialect0202:
		return "2.0.2"
	case Dialect0210:
		return "2.1"
	case Dialect0300:
		return "3.0"
	case Dialect0302:
		return "3.0.2"
	case Dialect0311:
		return "3.1.1"
	case DialectWildcard:
		return "2.???"
	default:
		return fmt.Sprintf("0x%04X", uint16(d))
	}
}

// ParseDialect parses a dialect name as written in configuration files,
// e.g. "2.1" or "3.1.1". The wildcard is not accepted.
func ParseDialect(s string) (Dialect, bool) {
	for _, d := range SupportedDialects {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// IsSMB3 reports whether d belongs to the SMB 3.x family.
func (d Dialect) IsSMB3() bool {
	return d >= Dialect0300 && d != DialectWildcard
}

// Capabilities advertised in NEGOTIATE. [MS-SMB2] 2.2.3
const (
	CapDFS               uint32 = 0x00000001
	CapLeasing           uint32 = 0x00000002
	CapLargeMTU          uint32 = 0x00000004
	CapMultiChannel      uint32 = 0x00000008
	CapPersistentHandles uint32 = 0x00000010
	CapDirectoryLeasing  uint32 = 0x00000020
	CapEncryption        uint32 = 0x00000040
)

// Security mode bits of NEGOTIATE and SESSION_SETUP. [MS-SMB2] 2.2.3
const (
	NegotiateSigningEnabled  uint16 = 0x0001
	NegotiateSigningRequired uint16 = 0x0002
)

// Session flags of the SESSION_SETUP response. [MS-SMB2] 2.2.6
const (
	SessionFlagIsGuest     uint16 = 0x0001
	SessionFlagIsNull      uint16 = 0x0002
	SessionFlagEncryptData uint16 = 0x0004
)

// SESSION_SETUP request flags. [MS-SMB2] 2.2.5
const (
	SessionSetupFlagBinding uint8 = 0x01
)

// Negotiate context types. [MS-SMB2] 2.2.3.1
const (
	NegCtxPreauthIntegrity uint16 = 0x0001
	NegCtxEncryptionCaps   uint16 = 0x0002
	NegCtxCompressionCaps  uint16 = 0x0003
	NegCtxNetnameContextID uint16 = 0x0005
	NegCtxTransportCaps    uint16 = 0x0006
	NegCtxRDMATransformCap uint16 = 0x0007
	NegCtxSigningCaps      uint16 = 0x0008
)

// Preauth integrity hash algorithms. [MS-SMB2] 2.2.3.1.1
const HashAlgSHA512 uint16 = 0x0001

// Encryption ciphers. [MS-SMB2] 2.2.3.1.2
const (
	CipherNone      uint16 = 0x0000
	CipherAES128CCM uint16 = 0x0001
	CipherAES128GCM uint16 = 0x0002
	CipherAES256CCM uint16 = 0x0003
	CipherAES256GCM uint16 = 0x0004
)
