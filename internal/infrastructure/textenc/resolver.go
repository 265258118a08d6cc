// Package textenc resolves a text encoding that can losslessly decode an
// arbitrary byte stream, combining a statistical detector with trial
// decodes of a small probe window.
package textenc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	htmlcharset "golang.org/x/net/html/charset"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultProbeLines is how many lines a candidate must decode
	// cleanly before it is accepted for the whole file.
	DefaultProbeLines = 3

	// DefaultMinConfidence gates the statistical pre-guess: chardet
	// scores 0-100 and single-byte Western encodings are routinely
	// confused below this threshold.
	DefaultMinConfidence = 70
)

// candidate pairs an encoding name with its decoder. A nil encoding marks
// the ASCII candidate, which is a pure byte-range check.
type candidate struct {
	name string
	enc  encoding.Encoding
}

// priorityCandidates is the fixed trial order. BOM-aware variants come
// first so a byte-order mark is never misread by a laxer sibling.
var priorityCandidates = []candidate{
	{"utf-8-sig", unicode.UTF8BOM},
	{"utf-16", unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)},
	{"utf-16le", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	{"utf-16be", unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
	{"utf-8", unicode.UTF8},
	{"ascii", nil},
	{"iso-8859-1", charmap.ISO8859_1},
	{"windows-1252", charmap.Windows1252},
}

// Resolution is an encoding proven to decode the probe window of a file.
// It must be reused for the full decode of that file; re-resolving
// mid-file would allow inconsistent partial decodes.
type Resolution struct {
	Name string
	enc  encoding.Encoding
}

// Reader decodes src to UTF-8 under the resolved encoding.
func (r Resolution) Reader(src io.Reader) io.Reader {
	if r.enc == nil {
		return src
	}
	return transform.NewReader(src, r.enc.NewDecoder())
}

// Resolver picks the first candidate encoding whose trial decode of the
// probe window succeeds. Resolution is strict: when no candidate decodes
// the probe, Resolve fails with ErrEncodingUndetermined instead of
// silently guessing, since a wrong guess corrupts all downstream text.
type Resolver struct {
	candidates    []candidate
	probeLines    int
	minConfidence int
	detector      *chardet.Detector
}

func NewResolver(probeLines, minConfidence int) *Resolver {
	if probeLines <= 0 {
		probeLines = DefaultProbeLines
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Resolver{
		candidates:    priorityCandidates,
		probeLines:    probeLines,
		minConfidence: minConfidence,
		detector:      chardet.NewTextDetector(),
	}
}

// Resolve returns an encoding under which the first few lines of data
// decode without error. Empty input resolves trivially to the first
// candidate.
func (r *Resolver) Resolve(data []byte) (Resolution, error) {
	candidates := r.candidates
	if guess, ok := r.statisticalGuess(data); ok {
		candidates = append([]candidate{guess}, candidates...)
	}

	var firstErr error
	for _, c := range candidates {
		if err := r.probe(c, data); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return Resolution{Name: c.name, enc: c.enc}, nil
	}

	if firstErr == nil {
		firstErr = errors.New("no candidate encodings configured")
	}
	return Resolution{}, domain.WrapError(domain.ErrEncodingUndetermined, "resolve encoding", firstErr)
}

// statisticalGuess runs the byte-distribution detector over the full
// input and, when confident enough, maps its charset label to a decoder.
func (r *Resolver) statisticalGuess(data []byte) (candidate, bool) {
	if len(data) == 0 {
		return candidate{}, false
	}
	best, err := r.detector.DetectBest(data)
	if err != nil || best == nil || best.Confidence <= r.minConfidence {
		return candidate{}, false
	}
	enc, name := htmlcharset.Lookup(strings.ToLower(best.Charset))
	if enc == nil {
		return candidate{}, false
	}
	return candidate{name: name, enc: enc}, true
}

// probe trial-decodes the first probeLines lines of data. The x/text
// decoders substitute U+FFFD rather than erroring, so a probe succeeds
// only when the transform reports no error and the decoded text carries
// no replacement runes.
func (r *Resolver) probe(c candidate, data []byte) error {
	if c.enc == nil {
		return probeASCII(data, r.probeLines)
	}

	reader := bufio.NewReader(transform.NewReader(bytes.NewReader(data), c.enc.NewDecoder()))
	for i := 0; i < r.probeLines; i++ {
		line, err := reader.ReadString('\n')
		if strings.ContainsRune(line, utf8.RuneError) {
			return fmt.Errorf("%s: invalid byte sequence in probe", c.name)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// probeASCII accepts inputs whose probe window is pure 7-bit ASCII.
func probeASCII(data []byte, lines int) error {
	seen := 0
	for _, b := range data {
		if b >= 0x80 {
			return errors.New("ascii: byte outside 7-bit range in probe")
		}
		if b == '\n' {
			seen++
			if seen >= lines {
				return nil
			}
		}
	}
	return nil
}
