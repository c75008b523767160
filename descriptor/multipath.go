package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lightninglabs/outputdesc/keyexpr"
)

// ResolveMultipath implements spec §4.C: it rewrites `/**` shorthand and
// resolves every `/<a;b;...>` tuple in text against change, returning the
// descriptor text with every tuple replaced by a singleton `<v>` tuple
// holding its resolved value (`/<0;1>/*` with change 1 becomes `/<1>/*`).
//
// If text contains no multipath syntax at all, it is returned unchanged and
// change may be nil.
func ResolveMultipath(text string, change *int) (string, error) {
	text = strings.ReplaceAll(text, "/**", "/<0;1>/*")

	tuples, err := findMultipathTuples(text)
	if err != nil {
		return "", err
	}
	if len(tuples) == 0 {
		return text, nil
	}

	card := len(tuples[0].values)
	for _, tup := range tuples[1:] {
		if len(tup.values) != card {
			return "", fmt.Errorf("%w: multipath tuples have "+
				"mismatched cardinality (%d vs %d)", keyexpr.ErrParse,
				len(tup.values), card)
		}
	}

	if change == nil {
		return "", fmt.Errorf("%w: descriptor contains multipath "+
			"tuples but no change value was supplied", keyexpr.ErrRange)
	}

	for _, tup := range tuples {
		found := false
		for _, v := range tup.values {
			if v == *change {
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("%w: change value %d is not "+
				"one of the multipath tuple's values",
				keyexpr.ErrRange, *change)
		}
	}

	// Replace each tuple occurrence (rightmost-first so earlier byte
	// offsets stay valid) with its resolved value.
	out := text
	for i := len(tuples) - 1; i >= 0; i-- {
		tup := tuples[i]
		replacement := fmt.Sprintf("<%d>", *change)
		out = out[:tup.start] + replacement + out[tup.end:]
	}
	return out, nil
}

type multipathTuple struct {
	start, end int
	values     []int
}

// findMultipathTuples scans text for every `/<...>` segment and parses its
// body as a `;`-separated list of strictly increasing non-negative
// integers.
func findMultipathTuples(text string) ([]multipathTuple, error) {
	var tuples []multipathTuple

	i := 0
	for i < len(text) {
		if text[i] != '<' {
			i++
			continue
		}
		// A multipath tuple must be introduced by "/<".
		if i == 0 || text[i-1] != '/' {
			i++
			continue
		}

		close := strings.IndexByte(text[i:], '>')
		if close < 0 {
			return nil, fmt.Errorf("%w: unterminated multipath "+
				"tuple", keyexpr.ErrParse)
		}
		body := text[i+1 : i+close]
		if !strings.Contains(body, ";") {
			// A singleton "/<n>" is already a resolved tuple
			// (spec §8 multipath idempotence); leave it alone.
			i += close + 1
			continue
		}
		values, err := parseMultipathBody(body)
		if err != nil {
			return nil, err
		}

		tuples = append(tuples, multipathTuple{
			start:  i,
			end:    i + close + 1,
			values: values,
		})
		i += close + 1
	}
	return tuples, nil
}

func parseMultipathBody(body string) ([]int, error) {
	parts := strings.Split(body, ";")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: multipath tuple must have at "+
			"least two values", keyexpr.ErrParse)
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: multipath tuple value "+
				"%q is not a non-negative integer", keyexpr.ErrParse, p)
		}
		values[i] = n
		if i > 0 && values[i] <= values[i-1] {
			return nil, fmt.Errorf("%w: multipath tuple values "+
				"must be strictly increasing", keyexpr.ErrParse)
		}
	}
	return values, nil
}
