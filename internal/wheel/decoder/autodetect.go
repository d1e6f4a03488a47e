package decoder

import (
	"time"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// AutoDetect wraps a connection whose vendor is initially unknown between
// Gotway and Veteran: it inspects the first bytes of the stream and, once
// it recognizes a header, delegates every subsequent call to the matching
// decoder for the lifetime of the connection.
type AutoDetect struct {
	buf      []byte
	detected Decoder
}

func NewAutoDetect() *AutoDetect { return &AutoDetect{} }

func (a *AutoDetect) WheelType() wheel.WheelType { return wheel.WheelTypeGotwayVirtual }

func (a *AutoDetect) Reset() {
	a.buf = nil
	a.detected = nil
}

func (a *AutoDetect) IsReady() bool {
	return a.detected != nil && a.detected.IsReady()
}

func (a *AutoDetect) InitCommands() []wheel.WheelCommand {
	if a.detected != nil {
		return a.detected.InitCommands()
	}
	return nil
}

func (a *AutoDetect) KeepaliveCommand() (wheel.WheelCommand, time.Duration, bool) {
	if a.detected != nil {
		return a.detected.KeepaliveCommand()
	}
	return nil, 0, false
}

func (a *AutoDetect) BuildCommand(semantic wheel.WheelCommand) []wheel.WheelCommand {
	if a.detected != nil {
		return a.detected.BuildCommand(semantic)
	}
	return nil
}

func (a *AutoDetect) Decode(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	if a.detected == nil {
		a.buf = append(a.buf, chunk...)
		if len(a.buf) < 3 {
			return nil, nil
		}
		switch {
		case a.buf[0] == 0xDC && a.buf[1] == 0x5A && a.buf[2] == 0x5C:
			a.detected = NewVeteran()
		case a.buf[0] == 0x55 && a.buf[1] == 0xAA:
			a.detected = NewGotway()
		default:
			// Neither header matched at this position; drop the leading
			// byte and keep waiting for a recognizable prefix.
			a.buf = a.buf[1:]
			return nil, nil
		}
		pending := a.buf
		a.buf = nil
		return a.delegate(pending, prior, cfg)
	}
	return a.delegate(chunk, prior, cfg)
}

func (a *AutoDetect) delegate(chunk []byte, prior *wheel.WheelState, cfg Config) (*DecodedData, error) {
	dd, err := a.detected.Decode(chunk, prior, cfg)
	if dd != nil {
		// the emitted state is stamped with the real detected vendor
		// (Gotway/Veteran), overriding AutoDetect's own GotwayVirtual
		// type — the one sanctioned exception to decoder purity.
		dd.NewState.WheelType = a.detected.WheelType()
	}
	return dd, err
}
