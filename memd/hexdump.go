package memd

import "fmt"

func bytesToHexAsciiString(bytes []byte) string {
	out := ""
	var ascii [16]byte
	n := (len(bytes) + 15) &^ 15
	for i := 0; i < n; i++ {
		// include the line numbering at beginning of every line
		if i%16 == 0 {
			out += fmt.Sprintf("%4d", i)
		}

		// extra space between blocks of 8 bytes
		if i%8 == 0 {
			out += " "
		}

		// if we have bytes left, print the hex
		if i < len(bytes) {
			out += fmt.Sprintf(" %02X", bytes[i])
		} else {
			out += "   "
		}

		// build the ascii
		if i >= len(bytes) {
			ascii[i%16] = ' '
		} else if bytes[i] < 32 || bytes[i] > 126 {
			ascii[i%16] = '.'
		} else {
			ascii[i%16] = bytes[i]
		}

		// at the end of the line, print the newline.
		if i%16 == 15 {
			out += fmt.Sprintf("  %s\n", string(ascii[:]))
		}
	}
	return out
}

// PacketStringer lazily renders a full packet dump, suitable for use with
// zap.Stringer so the formatting cost is only paid when the log level is
// actually enabled.
type PacketStringer struct {
	Packet *Packet
}

func (p PacketStringer) String() string {
	pak := p.Packet
	return fmt.Sprintf(
		"%s\nKey:\n%sExtras:\n%sValue:\n%s",
		pak.String(),
		bytesToHexAsciiString(pak.Key),
		bytesToHexAsciiString(pak.Extras),
		bytesToHexAsciiString(pak.Value))
}
