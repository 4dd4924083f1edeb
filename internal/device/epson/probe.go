package epson

import (
	"bytes"
	"regexp"

	"github.com/thereceipt/thermal-bridge/internal/scanner"
)

// ProbePort is the UDP port Epson network interfaces answer discovery on.
const ProbePort = 3289

var modelPattern = regexp.MustCompile(`TM-[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*`)

// Probe returns the ENPC discovery exchange.
func Probe(port int) scanner.Probe {
	if port == 0 {
		port = ProbePort
	}
	return scanner.Probe{
		Name:    name,
		Port:    port,
		Payload: []byte{'E', 'P', 'S', 'O', 'N', 'Q', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00},
		Parse:   parseReply,
	}
}

func parseReply(ip string, data []byte) (scanner.Found, bool, bool) {
	if len(data) < 6 || !bytes.HasPrefix(data, []byte("EPSON")) || data[5] != 'q' {
		return scanner.Found{}, false, false
	}
	return scanner.Found{
		Address:      ip,
		Manufacturer: "EPSON",
		Model:        string(modelPattern.Find(data)),
	}, true, false
}
