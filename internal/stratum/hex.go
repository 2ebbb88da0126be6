package stratum

import hex "github.com/tmthrgd/go-hex"

func decodeHexField(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
