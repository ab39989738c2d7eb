package metricscalculator

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// RecogPair is the reference and hypothesis of one utterance in a recogs dump.
type RecogPair struct {
	UttID string
	Ref   []string
	Hyp   []string
}

// ParseRecogs reads a recogs-*.txt dump. Each utterance has two lines:
//
//	1089-134686-0000-0:	ref=['HE', 'HOPED']
//	1089-134686-0000-0:	hyp=['HE', 'HOPE']
//
// Pairs are returned in the order their first line appears.
func ParseRecogs(r io.Reader) ([]RecogPair, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	index := make(map[string]int)
	var pairs []RecogPair
	seenRef := make(map[string]bool)
	seenHyp := make(map[string]bool)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		uttID, rest, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("line %d: missing utterance id", lineNo)
		}
		rest = strings.TrimSpace(rest)

		var isRef bool
		switch {
		case strings.HasPrefix(rest, "ref="):
			isRef = true
		case strings.HasPrefix(rest, "hyp="):
		default:
			return nil, fmt.Errorf("line %d: expected ref= or hyp= after %q", lineNo, uttID)
		}
		tokens, err := parseTokenList(rest[len("ref="):])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		i, ok := index[uttID]
		if !ok {
			i = len(pairs)
			index[uttID] = i
			pairs = append(pairs, RecogPair{UttID: uttID})
		}
		if isRef {
			if seenRef[uttID] {
				return nil, fmt.Errorf("line %d: duplicate ref for %s", lineNo, uttID)
			}
			seenRef[uttID] = true
			pairs[i].Ref = tokens
		} else {
			if seenHyp[uttID] {
				return nil, fmt.Errorf("line %d: duplicate hyp for %s", lineNo, uttID)
			}
			seenHyp[uttID] = true
			pairs[i].Hyp = tokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recogs: %w", err)
	}

	for _, p := range pairs {
		if !seenRef[p.UttID] || !seenHyp[p.UttID] {
			return nil, fmt.Errorf("utterance %s is missing its ref or hyp line", p.UttID)
		}
	}
	return pairs, nil
}

// ScoreRecogs computes the corpus error rate of a recogs dump.
func ScoreRecogs(r io.Reader) (ErrorStats, error) {
	var stats ErrorStats
	pairs, err := ParseRecogs(r)
	if err != nil {
		return stats, err
	}
	for _, p := range pairs {
		stats.Add(p.Ref, p.Hyp)
	}
	return stats, nil
}

// ScoreRecogsFile opens name in fsys and returns its error rate in percent.
func ScoreRecogsFile(fsys fs.FS, name string) (float64, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stats, err := ScoreRecogs(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	rate, err := stats.Rate()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return rate, nil
}

// parseTokenList parses a printed list of quoted strings such as
// ['HE', "DON'T"] into its elements.
func parseTokenList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("token list %q is not bracketed", s)
	}
	body := []rune(s[1 : len(s)-1])

	var tokens []string
	for i := 0; i < len(body); {
		switch c := body[i]; {
		case c == ' ' || c == ',':
			i++
		case c == '\'' || c == '"':
			var sb strings.Builder
			j := i + 1
			for ; j < len(body) && body[j] != c; j++ {
				if body[j] == '\\' && j+1 < len(body) {
					j++
				}
				sb.WriteRune(body[j])
			}
			if j >= len(body) {
				return nil, fmt.Errorf("unterminated token in %q", s)
			}
			tokens = append(tokens, sb.String())
			i = j + 1
		default:
			return nil, fmt.Errorf("unexpected %q in token list %q", c, s)
		}
	}
	return tokens, nil
}
