package util

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// FieldRemote is the logrus field carrying the session's remote address.
const FieldRemote = "remote"

// isoMillis matches the wire and log timestamp shape used throughout:
// UTC with millisecond precision and a literal Z.
const isoMillis = "2006-01-02T15:04:05.000Z"

// ISOTime formats t as an ISO-8601 UTC timestamp with millisecond
// precision, the shape used in log lines and chat entries.
func ISOTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// LineFormatter renders every entry as
//
//	<ISO-timestamp> <remoteAddr>: <message>
//
// with the remote address taken from the "remote" field and left empty when
// the entry has none. Any other fields are appended to the message as
// key=value pairs so context set with WithField survives the fixed shape.
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	remote, _ := entry.Data[FieldRemote].(string)

	var buf bytes.Buffer
	buf.WriteString(ISOTime(entry.Time))
	buf.WriteByte(' ')
	buf.WriteString(remote)
	buf.WriteString(": ")
	buf.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			if k == FieldRemote {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, entry.Data[k])
		}
	}

	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// SessionLogger returns an entry tagged with the session's remote address so
// every line it emits carries the address in the fixed log shape.
func SessionLogger(log *logrus.Logger, remote string) *logrus.Entry {
	return log.WithField(FieldRemote, remote)
}
