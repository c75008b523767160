package descriptor

import "strings"

// The descriptor checksum algorithm, grounded on the teacher's
// btc/descriptors.go (itself a port of Bitcoin Core's DescriptorChecksum).
var (
	inputCharset = "0123456789()[],'/*abcdefgh@:$%{}IJKLMNOPQRSTUVWXYZ" +
		"&+-.;<=>?!^_|~ijklmnopqrstuvwxyzABCDEFGH`#\"\\ "
	checksumCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	checksumGenerator = []uint64{
		0xf5dee51989, 0xa9fdca3312, 0x1bab10e32d, 0x3706b1677a,
		0x644d626ffd,
	}
)

func checksumPolymod(symbols []uint64) uint64 {
	chk := uint64(1)
	for _, value := range symbols {
		top := chk >> 35
		chk = (chk&0x7ffffffff)<<5 ^ value
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= checksumGenerator[i]
			}
		}
	}
	return chk
}

func checksumExpand(s string) []uint64 {
	groups := []uint64{}
	symbols := []uint64{}
	for _, c := range s {
		v := strings.IndexRune(inputCharset, c)
		if v < 0 {
			return nil
		}
		symbols = append(symbols, uint64(v&31))
		groups = append(groups, uint64(v>>5))
		if len(groups) == 3 {
			symbols = append(
				symbols, groups[0]*9+groups[1]*3+groups[2],
			)
			groups = []uint64{}
		}
	}
	if len(groups) == 1 {
		symbols = append(symbols, groups[0])
	} else if len(groups) == 2 {
		symbols = append(symbols, groups[0]*3+groups[1])
	}
	return symbols
}

// ChecksumCreate appends the 8-character descriptor checksum to s, in the
// `s#abcdefgh` form.
func ChecksumCreate(s string) string {
	symbols := append(checksumExpand(s), 0, 0, 0, 0, 0, 0, 0, 0)
	checksum := checksumPolymod(symbols) ^ 1
	builder := strings.Builder{}
	for i := 0; i < 8; i++ {
		builder.WriteByte(checksumCharset[(checksum>>(5*(7-i)))&31])
	}
	return s + "#" + builder.String()
}

// ChecksumStrip removes a trailing "#xxxxxxxx" checksum from s, if present,
// returning the bare descriptor text.
func ChecksumStrip(s string) string {
	if idx := strings.LastIndexByte(s, '#'); idx == len(s)-9 {
		return s[:idx]
	}
	return s
}

// ChecksumVerify checks s's trailing checksum. If require is false, a
// missing checksum is tolerated (returns true); a present-but-wrong
// checksum is always rejected.
func ChecksumVerify(s string, require bool) bool {
	if !strings.Contains(s, "#") {
		return !require
	}
	if len(s) < 9 || s[len(s)-9] != '#' {
		return false
	}
	for _, c := range s[len(s)-8:] {
		if !strings.ContainsRune(checksumCharset, c) {
			return false
		}
	}
	symbols := checksumExpand(s[:len(s)-9])
	for _, c := range s[len(s)-8:] {
		symbols = append(
			symbols, uint64(strings.IndexRune(checksumCharset, c)),
		)
	}
	return checksumPolymod(symbols) == 1
}
