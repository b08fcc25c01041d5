package types

import "fmt"

// Status represents an NT_STATUS code returned in SMB2 responses.
//
// The two high bits carry the severity: 00 success, 01 informational,
// 10 warning, 11 error. [MS-ERREF] 2.3
type Status uint32

const (
	StatusSuccess                Status = 0x00000000
	StatusPending                Status = 0x00000103
	StatusInvalidParameter       Status = 0xC000000D
	StatusMoreProcessingRequired Status = 0xC0000016
	StatusAccessDenied           Status = 0xC0000022
	StatusLogonFailure           Status = 0xC000006D
	StatusAccountDisabled        Status = 0xC0000072
	StatusInsufficientResources  Status = 0xC000009A
	StatusNotSupported           Status = 0xC00000BB
	StatusRequestNotAccepted     Status = 0xC00000D0
	StatusInternalError          Status = 0xC00000E5
	StatusUserSessionDeleted     Status = 0xC0000203
	StatusNetworkSessionExpired  Status = 0xC000035C
	StatusInvalidNetworkResponse Status = 0xC00000C3

	StatusNoPreauthIntegrityHashOverlap Status = 0xC05D0000
)

var statusNames = map[Status]string{
	StatusSuccess:                "STATUS_SUCCESS",
	StatusPending:                "STATUS_PENDING",
	StatusInvalidParameter:       "STATUS_INVALID_PARAMETER",
	StatusMoreProcessingRequired: "STATUS_MORE_PROCESSING_REQUIRED",
	StatusAccessDenied:           "STATUS_ACCESS_DENIED",
	StatusLogonFailure:           "STATUS_LOGON_FAILURE",
	StatusAccountDisabled:        "STATUS_ACCOUNT_DISABLED",
	StatusInsufficientResources:  "STATUS_INSUFFICIENT_RESOURCES",
	StatusNotSupported:           "STATUS_NOT_SUPPORTED",
	StatusRequestNotAccepted:     "STATUS_REQUEST_NOT_ACCEPTED",
	StatusInternalError:          "STATUS_INTERNAL_ERROR",
	StatusUserSessionDeleted:     "STATUS_USER_SESSION_DELETED",
	StatusNetworkSessionExpired:  "STATUS_NETWORK_SESSION_EXPIRED",
	StatusInvalidNetworkResponse: "STATUS_INVALID_NETWORK_RESPONSE",

	StatusNoPreauthIntegrityHashOverlap: "STATUS_SMB_NO_PREAUTH_INTEGRITY_HASH_OVERLAP",
}

// String returns a human-readable name for the status code.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_0x%08X", uint32(s))
}

// IsSuccess returns true for success and informational codes.
func (s Status) IsSuccess() bool {
	return uint32(s)&0x80000000 == 0
}

// IsError returns true if both severity bits are set.
func (s Status) IsError() bool {
	return uint32(s)&0xC0000000 == 0xC0000000
}

// IsWarning returns true for severity 10.
func (s Status) IsWarning() bool {
	return uint32(s)&0xC0000000 == 0x80000000
}

// Severity returns the severity level (0-3) of the status.
func (s Status) Severity() int {
	return int(uint32(s)>>30) & 0x3
}

// ErrorResponseStatus reports whether a response with status s is sent with
// the 9-byte SMB2 ERROR body instead of the command's own response body.
// MORE_PROCESSING_REQUIRED keeps the command body so SESSION_SETUP can carry
// its security buffer.
func (s Status) ErrorResponseStatus() bool {
	return s.IsError() && s != StatusMoreProcessingRequired
}
