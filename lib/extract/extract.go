package extract

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Distinct failure kinds so callers can tell "user not in today's dump"
// apart from a corrupt download. Match with errors.Is.
var (
	ErrDecompress        = errors.New("decompress user summary")
	ErrUserNotFound      = errors.New("user not found in summary")
	ErrMalformedLine     = errors.New("malformed summary line")
	ErrFieldTypeMismatch = errors.New("field type mismatch")
)

// UserStats is one user's row from the daily summary, re-typed from the
// raw text fields.
type UserStats struct {
	Username  string
	Score     int64
	WorkUnits int64
	Team      string
}

// name, score, work units, team
const numFields = 4

var (
	bzip2Magic = []byte("BZh")
	gzipMagic  = []byte{0x1f, 0x8b}
)

// Decompress inflates a downloaded summary document. The provider ships
// the dump as .txt.bz2, but the format is sniffed from the magic bytes
// rather than the URL so a gzip-served mirror works too.
func Decompress(doc []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(doc, bzip2Magic):
		text, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(doc)))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
		}
		return text, nil
	case bytes.HasPrefix(doc, gzipMagic):
		reader, err := gzip.NewReader(bytes.NewReader(doc))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
		}
		defer reader.Close()
		text, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
		}
		return text, nil
	}
	return nil, fmt.Errorf("%w: unrecognized compression format", ErrDecompress)
}

// the dump has shipped both tab-separated and comma-separated over the
// years, so treat runs of either as one separator
func splitFields(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Extract decompresses a summary document and returns the stats row for
// username. Matching is case-sensitive on the leading name field; the
// first matching line wins. Pure: same bytes in, same result out.
func Extract(doc []byte, username string) (UserStats, error) {
	text, err := Decompress(doc)
	if err != nil {
		return UserStats{}, err
	}
	return find(text, username)
}

func find(text []byte, username string) (UserStats, error) {
	var seen []string

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := splitFields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] != username {
			seen = append(seen, fields[0])
			continue
		}
		return parseFields(fields)
	}
	if err := scanner.Err(); err != nil {
		return UserStats{}, fmt.Errorf("%w: %s", ErrMalformedLine, err)
	}

	if closest := closestName(seen, username); closest != "" {
		return UserStats{}, fmt.Errorf("%w: %q (closest match: %q)", ErrUserNotFound, username, closest)
	}
	return UserStats{}, fmt.Errorf("%w: %q", ErrUserNotFound, username)
}

func parseFields(fields []string) (UserStats, error) {
	if len(fields) != numFields {
		return UserStats{}, fmt.Errorf(
			"%w: row for %q has %d fields, want %d",
			ErrMalformedLine, fields[0], len(fields), numFields,
		)
	}
	score, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return UserStats{}, fmt.Errorf("%w: score %q is not an integer", ErrFieldTypeMismatch, fields[1])
	}
	workunits, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return UserStats{}, fmt.Errorf("%w: work unit count %q is not an integer", ErrFieldTypeMismatch, fields[2])
	}
	return UserStats{
		Username:  fields[0],
		Score:     score,
		WorkUnits: workunits,
		Team:      fields[3],
	}, nil
}

// only suggest a name when it is plausibly a typo of the request
const suggestThreshold = 0.88

func closestName(names []string, username string) string {
	best := ""
	bestSim := suggestThreshold
	for _, name := range names {
		sim := matchr.JaroWinkler(name, username, false)
		if sim > bestSim {
			best = name
			bestSim = sim
		}
	}
	return best
}
