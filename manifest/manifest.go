package manifest

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"repocore"
)

// Manifest is the parsed form of a check-in artifact. Other
// artifact kinds (control, cluster, ticket-change, wiki-change, attachment)
// share the same card grammar but use a subset of cards; Manifest covers
// the check-in superset that exercises every card type.
type Manifest struct {
	Comment string
	Date    time.Time
	Files   []FileCard
	Parents []repocore.UUID // Parents[0] is the primary parent
	RCheck  string
	Tags    []TagCard
	User    string

	// Self is set by the caller after Insert computes the manifest's own
	// UUID; Parse does not know it (the UUID is a hash of these bytes).
	Self repocore.UUID
}

// encodeField escapes backslash, space, and newline so fields round-trip
// through whitespace-delimited tokens.
func encodeField(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case ' ':
			b.WriteString(`\s`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func decodeField(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
			case 's':
				b.WriteByte(' ')
			case 'n':
				b.WriteByte('\n')
			default:
				b.WriteByte(s[i])
				b.WriteByte(s[i+1])
			}
			i += 2
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Parse decodes raw manifest bytes per the card grammar's strict rules:
// unknown cards, out-of-order cards, duplicate singleton cards, or invalid
// field syntax all fail with a *repocore.Error of kind KindMalformed, and
// the artifact is not linked.
func Parse(content []byte) (*Manifest, error) {
	m := &Manifest{}
	seen := map[CardKind]bool{}
	lastOrder := -1

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var zLine string
	haveZ := false

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		kind := CardKind(line[0])
		order, known := cardOrder[kind]
		if !known {
			return nil, malformed(fmt.Errorf("unknown card kind %q", line[0]))
		}
		if kind == CardZ {
			zLine = line
			haveZ = true
			break // Z is always last; anything after is invalid, checked below
		}
		if isSingleton(kind) && seen[kind] {
			return nil, malformed(fmt.Errorf("duplicate %c card", kind))
		}
		if order < lastOrder {
			return nil, malformed(fmt.Errorf("%c card out of order", kind))
		}
		lastOrder = order
		seen[kind] = true

		fields := strings.Fields(line[1:])
		switch kind {
		case CardComment:
			if len(fields) < 1 {
				return nil, malformed(fmt.Errorf("C card missing comment"))
			}
			m.Comment = decodeField(fields[0])
		case CardDate:
			if len(fields) < 1 {
				return nil, malformed(fmt.Errorf("D card missing date"))
			}
			t, err := time.Parse(time.RFC3339, fields[0])
			if err != nil {
				return nil, malformed(fmt.Errorf("D card: %w", err))
			}
			m.Date = t
		case CardFile:
			fc, err := parseFileCard(fields)
			if err != nil {
				return nil, malformed(err)
			}
			m.Files = append(m.Files, fc)
		case CardParent:
			if len(fields) < 1 {
				return nil, malformed(fmt.Errorf("P card missing UUIDs"))
			}
			for _, tok := range fields {
				u, err := repocore.ParseUUID(tok)
				if err != nil {
					return nil, malformed(fmt.Errorf("P card: %w", err))
				}
				m.Parents = append(m.Parents, u)
			}
		case CardRCheck:
			if len(fields) != 1 || len(fields[0]) != 32 {
				return nil, malformed(fmt.Errorf("R card: expected 32-hex md5"))
			}
			m.RCheck = fields[0]
		case CardTag:
			tc, err := parseTagCard(fields)
			if err != nil {
				return nil, malformed(err)
			}
			m.Tags = append(m.Tags, tc)
		case CardUser:
			if len(fields) < 1 {
				return nil, malformed(fmt.Errorf("U card missing user"))
			}
			m.User = decodeField(fields[0])
		}
	}
	if haveZ {
		for scanner.Scan() {
			if scanner.Text() != "" {
				return nil, malformed(fmt.Errorf("content after Z card"))
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed(err)
	}
	if !haveZ {
		return nil, malformed(fmt.Errorf("missing Z self-checksum card"))
	}

	// Verify the trailing Z checksum against everything before it.
	zIdx := bytes.LastIndex(content, []byte("\nZ "))
	var prefix []byte
	if zIdx >= 0 {
		prefix = content[:zIdx+1]
	} else if bytes.HasPrefix(content, []byte("Z ")) {
		prefix = nil
	} else {
		return nil, malformed(fmt.Errorf("cannot locate Z card prefix"))
	}
	sum := md5.Sum(prefix)
	want := strings.TrimPrefix(zLine, "Z ")
	if hex.EncodeToString(sum[:]) != want {
		return nil, malformed(fmt.Errorf("Z checksum mismatch: manifest corrupt"))
	}

	if !isSorted(m.Files) {
		return nil, malformed(fmt.Errorf("F cards not lexicographically sorted"))
	}

	return m, nil
}

func isSorted(files []FileCard) bool {
	for i := 1; i < len(files); i++ {
		if files[i-1].Path >= files[i].Path {
			return false
		}
	}
	return true
}

func parseFileCard(fields []string) (FileCard, error) {
	var fc FileCard
	if len(fields) < 2 {
		return fc, fmt.Errorf("F card: expected at least path and uuid")
	}
	fc.Path = decodeField(fields[0])
	if err := validatePath(fc.Path); err != nil {
		return fc, fmt.Errorf("F card: %w", err)
	}
	u, err := repocore.ParseUUID(fields[1])
	if err != nil {
		return fc, fmt.Errorf("F card: %w", err)
	}
	fc.UUID = u
	if len(fields) >= 3 && fields[2] != "-" {
		fc.Perm = fields[2]
	}
	if len(fields) >= 4 {
		fc.OldPath = decodeField(fields[3])
		if err := validatePath(fc.OldPath); err != nil {
			return fc, fmt.Errorf("F card: oldpath: %w", err)
		}
	}
	return fc, nil
}

func parseTagCard(fields []string) (TagCard, error) {
	var tc TagCard
	if len(fields) < 2 {
		return tc, fmt.Errorf("T card: expected op+name and target")
	}
	opname := fields[0]
	if len(opname) < 2 {
		return tc, fmt.Errorf("T card: malformed op+name %q", opname)
	}
	switch opname[0] {
	case '+':
		tc.Op = TagApply
	case '-':
		tc.Op = TagCancel
	case '*':
		tc.Op = TagPropagating
	default:
		return tc, fmt.Errorf("T card: unknown op %q", opname[0])
	}
	tc.Name = decodeField(opname[1:])
	tc.Target = fields[1]
	if len(fields) >= 3 {
		tc.Value = decodeField(fields[2])
	}
	return tc, nil
}

// String re-serializes the manifest to canonical bytes. Parse(m.String())
// must be byte-identical to the input that produced m.
func (m *Manifest) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "C %s\n", encodeField(m.Comment))
	fmt.Fprintf(&b, "D %s\n", m.Date.UTC().Format(time.RFC3339))

	files := append([]FileCard(nil), m.Files...)
	sortFileCards(files)
	for _, f := range files {
		b.WriteString("F ")
		b.WriteString(encodeField(f.Path))
		b.WriteByte(' ')
		b.WriteString(f.UUID.String())
		if f.Perm != "" || f.OldPath != "" {
			b.WriteByte(' ')
			if f.Perm != "" {
				b.WriteString(f.Perm)
			} else {
				b.WriteString("-")
			}
		}
		if f.OldPath != "" {
			b.WriteByte(' ')
			b.WriteString(encodeField(f.OldPath))
		}
		b.WriteByte('\n')
	}

	if len(m.Parents) > 0 {
		b.WriteString("P")
		for _, p := range m.Parents {
			b.WriteByte(' ')
			b.WriteString(p.String())
		}
		b.WriteByte('\n')
	}

	if m.RCheck != "" {
		fmt.Fprintf(&b, "R %s\n", m.RCheck)
	}

	for _, t := range m.Tags {
		b.WriteByte('T')
		b.WriteByte(byte(t.Op))
		b.WriteString(encodeField(t.Name))
		b.WriteByte(' ')
		b.WriteString(t.Target)
		if t.Value != "" {
			b.WriteByte(' ')
			b.WriteString(encodeField(t.Value))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "U %s\n", encodeField(m.User))

	prefix := b.String()
	sum := md5.Sum([]byte(prefix))
	fmt.Fprintf(&b, "Z %s\n", hex.EncodeToString(sum[:]))
	return b.String()
}

func malformed(err error) error {
	return repocore.NewError("manifest.Parse", repocore.KindMalformed, err)
}
