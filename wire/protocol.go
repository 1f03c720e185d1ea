package wire

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------------------------- //

// Verbs recognized anywhere in the system (§4.1).
const (
	VerbListFiles      = "LIST_FILES"
	VerbDownload       = "DOWNLOAD"
	VerbMD5            = "MD5"
	VerbTokenRequest   = "TOKEN_REQUEST"
	VerbDownloadToken  = "DOWNLOAD_TOKEN"
	VerbCloseConn      = "CLOSE_CONNECTION"
	ReplySending       = "SENDING"
	ReplyToken         = "TOKEN"
	ReplyCorrect       = "CORRECT"
	ReplyWrong         = "WRONG"
	ReplyDenied        = "CLIENT DENIED THE TOKEN REQUEST"
	ReplyInvalidToken  = "INVALID_TOKEN"
	ReplyEndOfList     = "END_OF_LIST"
	ReplyUnknownVerb   = "UNKNOWN_COMMAND"
	replyErrorPrefix   = "ERROR: "
	fileListLinePrefix = "Name: "
	fileListIDMarker   = "ID: "
)

// --------------------------------------------------------------------------------------------- //

/*
ErrorLine formats an ERROR: reply line. It never closes the
connection; the caller keeps reading the next command.

Parameters:
  - format, args: fmt.Sprintf-style message describing the failure.

Returns:
  - string: a line ready for WriteLine.
*/
func ErrorLine(format string, args ...interface{}) string {
	return replyErrorPrefix + fmt.Sprintf(format, args...)
}

// --------------------------------------------------------------------------------------------- //

/*
FileListLine formats one LIST_FILES entry per §6's literal format.

Parameters:
  - name: the catalog file's name.
  - sha256Hex: the file id.

Returns:
  - string: "Name: <name>, ID: <sha256>".
*/
func FileListLine(name, sha256Hex string) string {
	return fmt.Sprintf("%s%s, %s%s", fileListLinePrefix, name, fileListIDMarker, sha256Hex)
}

// --------------------------------------------------------------------------------------------- //

/*
ParseFileListLine extracts the id from a LIST_FILES entry, splitting on
the literal substring "ID: " per §6.

Parameters:
  - line: one line received before END_OF_LIST.

Returns:
  - string: the trailing id field.
  - bool: false if the line does not contain "ID: ".
*/
func ParseFileListLine(line string) (string, bool) {
	idx := strings.Index(line, fileListIDMarker)
	if idx < 0 {
		return "", false
	}

	return line[idx+len(fileListIDMarker):], true
}

// --------------------------------------------------------------------------------------------- //

/*
TokenLine formats a TOKEN reply carrying the peer a requester should
continue against.

Parameters:
  - tokenID: hex token id.
  - host: peer host.
  - port: peer listen port.

Returns:
  - string: "TOKEN <id> <host> <port>".
*/
func TokenLine(tokenID, host string, port int) string {
	return fmt.Sprintf("%s %s %s %d", ReplyToken, tokenID, host, port)
}

// --------------------------------------------------------------------------------------------- //
