package star

import (
	"bytes"
	"strings"

	"github.com/thereceipt/thermal-bridge/internal/scanner"
)

// ProbePort is the UDP port Star network interfaces answer discovery on.
const ProbePort = 22222

var probeHeader = []byte("STR_BCAST")

// Probe returns the Star broadcast search exchange.
func Probe(port int) scanner.Probe {
	if port == 0 {
		port = ProbePort
	}
	payload := make([]byte, 16)
	copy(payload, probeHeader)
	payload = append(payload, []byte("RQ1.0.0")...)
	payload = append(payload, 0x00, 0x00, 0x1C, 0x64, 0x31)

	return scanner.Probe{
		Name:    name,
		Port:    port,
		Payload: payload,
		Parse:   parseReply,
	}
}

// parseReply accepts replies carrying the search header. The model is the
// first printable field after the fixed header that is not a version tag.
func parseReply(ip string, data []byte) (scanner.Found, bool, bool) {
	if !bytes.HasPrefix(data, probeHeader) {
		return scanner.Found{}, false, false
	}
	f := scanner.Found{Address: ip, Manufacturer: "Star"}
	if len(data) > 16 {
		for _, field := range printableFields(data[16:]) {
			if strings.HasPrefix(field, "RS") || strings.HasPrefix(field, "RQ") {
				continue
			}
			f.Model = field
			break
		}
	}
	return f, true, false
}

func printableFields(data []byte) []string {
	var fields []string
	start := -1
	for i, c := range data {
		printable := c >= 0x21 && c <= 0x7E
		switch {
		case printable && start < 0:
			start = i
		case !printable && start >= 0:
			if i-start >= 3 {
				fields = append(fields, string(data[start:i]))
			}
			start = -1
		}
	}
	if start >= 0 && len(data)-start >= 3 {
		fields = append(fields, string(data[start:]))
	}
	return fields
}
