package rongta

import (
	"bytes"
	"strings"

	"github.com/thereceipt/thermal-bridge/internal/scanner"
)

// ProbePort is the UDP port Rongta network modules answer discovery on.
const ProbePort = 1460

// Probe returns the Rongta network search exchange. Replies carry the
// module's identification as text.
func Probe(port int) scanner.Probe {
	if port == 0 {
		port = ProbePort
	}
	return scanner.Probe{
		Name:    name,
		Port:    port,
		Payload: []byte("MP4200FIND"),
		Parse:   parseReply,
	}
}

func parseReply(ip string, data []byte) (scanner.Found, bool, bool) {
	// The request is broadcast too, so our own datagram may come back.
	if len(data) == 0 || bytes.Equal(data, []byte("MP4200FIND")) {
		return scanner.Found{}, false, false
	}
	text := strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return ' '
		}
		return r
	}, string(data)))
	return scanner.Found{
		Address:      ip,
		Manufacturer: "Rongta",
		Model:        strings.Join(strings.Fields(text), " "),
	}, true, false
}
