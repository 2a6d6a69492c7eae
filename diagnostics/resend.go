package diagnostics

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/xattr"
	"github.com/relex/bulk-sink/base"
	"github.com/relex/bulk-sink/defs"
	"github.com/relex/bulk-sink/util"
	"github.com/relex/gotils/logger"
)

// DeadLetter is a payload saved by DeadLetterEmitter
type DeadLetter struct {
	Filename string
	Kind     base.DiagnosticKind // empty if unlabelled
	Payload  base.BulkPayload
}

// ResendResult summarizes one run of ResendDeadLetters
type ResendResult struct {
	Resent  int // delivered and removed
	Failed  int // still failing and kept
	Invalid int // unreadable and kept
}

func (result ResendResult) String() string {
	return fmt.Sprintf("resent=%d failed=%d invalid=%d", result.Resent, result.Failed, result.Invalid)
}

// ListDeadLetters lists the names of saved payload files in the directory, sorted by name
func ListDeadLetters(dir *os.File) ([]string, error) {
	names, err := dir.Readdirnames(0)
	if err != nil {
		return nil, err
	}
	filenames := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, defs.DeadLetterFileExt) {
			filenames = append(filenames, name)
		}
	}
	sort.Strings(filenames)
	return filenames, nil
}

// LoadDeadLetter reads a saved payload and its failure kind
func LoadDeadLetter(dir *os.File, filename string) (DeadLetter, error) {
	data, err := util.ReadFileAt(dir, filename)
	if err != nil {
		return DeadLetter{}, err
	}
	kind, xerr := xattr.Get(filepath.Join(dir.Name(), filename), defs.DeadLetterKindXattr)
	if xerr != nil {
		kind = nil
	}
	return DeadLetter{
		Filename: filename,
		Kind:     base.DiagnosticKind(kind),
		Payload: base.BulkPayload{
			ID:         strings.TrimSuffix(filename, defs.DeadLetterFileExt),
			Data:       data,
			NumEntries: bytes.Count(data, []byte{'\n'}) / 2,
		},
	}, nil
}

// ResendDeadLetters sends all payloads saved in the directory through the transport, one by one
//
// Payloads accepted by remote are removed, including partially accepted ones since rejected items would fail again.
// Others are kept for another try.
func ResendDeadLetters(parentLogger logger.Logger, path string, transport base.BulkTransport) (ResendResult, error) {
	resendLogger := parentLogger.WithFields(logger.Fields{defs.LabelComponent: "DeadLetterResender", defs.LabelPath: path})
	result := ResendResult{}

	dir, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("failed to open dead-letter dir: %w", err)
	}
	defer dir.Close()

	filenames, lerr := ListDeadLetters(dir)
	if lerr != nil {
		return result, fmt.Errorf("failed to list dead-letter dir: %w", lerr)
	}
	resendLogger.Infof("found %d saved payloads", len(filenames))

	for _, filename := range filenames {
		letter, rerr := LoadDeadLetter(dir, filename)
		if rerr != nil {
			resendLogger.Errorf("failed to read %s: %s", filename, rerr.Error())
			result.Invalid++
			continue
		}
		if letter.Payload.NumEntries == 0 {
			resendLogger.Warnf("skip empty or malformed %s", filename)
			result.Invalid++
			continue
		}
		outcome := transport.Send(letter.Payload)
		switch outcome.Kind {
		case base.OutcomeSuccess, base.OutcomePartialFailure:
			if outcome.Kind == base.OutcomePartialFailure {
				resendLogger.Warnf("partially resent %s: %s", letter.Payload.String(), outcome.String())
			} else {
				resendLogger.Infof("resent %s, previously %s", letter.Payload.String(), letter.Kind)
			}
			if uerr := util.UnlinkFileAt(dir, filename); uerr != nil {
				resendLogger.Errorf("failed to remove %s: %s", filename, uerr.Error())
			}
			result.Resent++
		default:
			resendLogger.Warnf("failed to resend %s: %s", letter.Payload.String(), outcome.String())
			result.Failed++
		}
	}
	return result, nil
}
