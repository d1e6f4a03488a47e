// Package detect classifies a wheel from its discovered GATT
// services/characteristics and advertised name.
package detect

import (
	"regexp"
	"strings"

	"github.com/eucdash/wheelcore/internal/wheel"
)

// Known service/characteristic UUIDs.
const (
	ServiceFFE0 = "0000ffe0-0000-1000-8000-00805f9b34fb" // Kingsong/Gotway/Veteran
	ServiceFFF0 = "0000fff0-0000-1000-8000-00805f9b34fb" // Kingsong-only extra
	ServiceFFE5 = "0000ffe5-0000-1000-8000-00805f9b34fb" // InMotion V1 write
	CharFFE4    = "0000ffe4-0000-1000-8000-00805f9b34fb" // InMotion V1 read char
	CharFFE9    = "0000ffe9-0000-1000-8000-00805f9b34fb" // InMotion V1 write char

	ServiceNordicUART = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	CharNUSRx         = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	CharNUSTx         = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// Confidence is the detector's certainty in its classification.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// Service is one discovered GATT service and its characteristics.
type Service struct {
	UUID            string
	Characteristics []string
}

// DiscoveredServices is the full GATT service table presented to the
// detector for one peripheral.
type DiscoveredServices struct {
	Services []Service
}

func (d DiscoveredServices) hasService(uuid string) (Service, bool) {
	for _, s := range d.Services {
		if strings.EqualFold(s.UUID, uuid) {
			return s, true
		}
	}
	return Service{}, false
}

func (s Service) hasChar(uuid string) bool {
	for _, c := range s.Characteristics {
		if strings.EqualFold(c, uuid) {
			return true
		}
	}
	return false
}

// Result is the detector's verdict. Ambiguous is true when only the
// FFE0 service is present and the name matches no vendor pattern
// (Gotway, Veteran, Kingsong and Ninebot remain candidates); AutoDetect
// can tell only Gotway from Veteran on the wire.
type Result struct {
	WheelType    wheel.WheelType
	ReadService  string
	ReadChar     string
	WriteService string
	WriteChar    string
	Confidence   Confidence
	Ambiguous    bool
	Unknown      bool
}

var (
	veteranNamePattern = regexp.MustCompile(`(?i)VETERAN|SHERMAN|LYNX|PATTON|ABRAMS`)
	gotwayNamePattern  = regexp.MustCompile(`(?i)GW|GOTWAY|BEGODE|MCMASTER|NIKOLA|MONSTER|MSP|RSHS|EX\.N|HERO|MASTER`)
	kingsongNamePattern = regexp.MustCompile(`(?i)KS-|KINGSONG|^KS`)
	ninebotNamePattern  = regexp.MustCompile(`(?i)NINEBOT|NB-`)
)

// Detect classifies a peripheral from its GATT table and optional
// advertised name, applying the following rules in order.
func Detect(services DiscoveredServices, deviceName string) Result {
	_, hasNordic := services.hasService(ServiceNordicUART)

	// 1. Nordic UART + FFE0/FFE4 char => InMotion V2 (High).
	if hasNordic {
		if ffe0, ok := services.hasService(ServiceFFE0); ok && ffe0.hasChar(CharFFE4) {
			return Result{
				WheelType: wheel.WheelTypeInMotionV2, Confidence: ConfidenceHigh,
				ReadService: ServiceNordicUART, ReadChar: CharNUSTx,
				WriteService: ServiceNordicUART, WriteChar: CharNUSRx,
			}
		}
		// 2. Nordic UART alone => NinebotZ (High).
		return Result{
			WheelType: wheel.WheelTypeNinebotZ, Confidence: ConfidenceHigh,
			ReadService: ServiceNordicUART, ReadChar: CharNUSTx,
			WriteService: ServiceNordicUART, WriteChar: CharNUSRx,
		}
	}

	// 3. Distinct FFE0/FFE4 read + FFE5/FFE9 write services => InMotion V1 (High).
	if ffe0, ok := services.hasService(ServiceFFE0); ok && ffe0.hasChar(CharFFE4) {
		if ffe5, ok := services.hasService(ServiceFFE5); ok && ffe5.hasChar(CharFFE9) {
			return Result{
				WheelType: wheel.WheelTypeInMotion, Confidence: ConfidenceHigh,
				ReadService: ServiceFFE0, ReadChar: CharFFE4,
				WriteService: ServiceFFE5, WriteChar: CharFFE9,
			}
		}
	}

	// 4. FFF0 service => KingSong (High).
	if _, ok := services.hasService(ServiceFFF0); ok {
		return Result{WheelType: wheel.WheelTypeKingsong, Confidence: ConfidenceHigh, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
	}

	// 5. Only FFE0/FFE1 => consult device-name patterns.
	if _, ok := services.hasService(ServiceFFE0); ok {
		switch {
		case veteranNamePattern.MatchString(deviceName):
			return Result{WheelType: wheel.WheelTypeVeteran, Confidence: ConfidenceMedium, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
		case gotwayNamePattern.MatchString(deviceName):
			return Result{WheelType: wheel.WheelTypeGotway, Confidence: ConfidenceMedium, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
		case kingsongNamePattern.MatchString(deviceName):
			return Result{WheelType: wheel.WheelTypeKingsong, Confidence: ConfidenceMedium, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
		case ninebotNamePattern.MatchString(deviceName):
			return Result{WheelType: wheel.WheelTypeNinebot, Confidence: ConfidenceMedium, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
		default:
			return Result{Ambiguous: true, Confidence: ConfidenceLow, ReadService: ServiceFFE0, WriteService: ServiceFFE0}
		}
	}

	// 6. None of the above => Unknown.
	return Result{Unknown: true}
}
